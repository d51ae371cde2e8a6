package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPDeliveryClient posts signed event bodies to subscription endpoints.
// It issues exactly one request per Deliver call; no HTTP-level retries.
type HTTPDeliveryClient struct {
	client *http.Client
	signer Signer
	now    func() time.Time
}

func NewHTTPDeliveryClient(timeout time.Duration, signer Signer) *HTTPDeliveryClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if signer == nil {
		signer = HMACSigner{}
	}
	return &HTTPDeliveryClient{
		client: &http.Client{Timeout: timeout},
		signer: signer,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c *HTTPDeliveryClient) Deliver(ctx context.Context, event Event, subscription Subscription) DeliveryResult {
	if c == nil || c.client == nil {
		return DeliveryResult{
			Outcome: OutcomeRetryable,
			Cause:   "infrastructure: delivery client is not configured",
		}
	}

	body, err := event.CanonicalBody()
	if err != nil {
		return DeliveryResult{
			Outcome: OutcomeTerminal,
			Cause:   "encode: " + err.Error(),
		}
	}

	targetURL := strings.TrimSpace(subscription.TargetURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{
			Outcome: OutcomeTerminal,
			Cause:   "request: " + err.Error(),
		}
	}

	timestamp := c.now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, c.signer.Sign(subscription.Secret, timestamp, body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp.Unix(), 10))
	req.Header.Set(HeaderEventID, event.ID)

	resp, err := c.client.Do(req)
	if err != nil {
		return DeliveryResult{
			Outcome: OutcomeRetryable,
			Cause:   "transport: " + err.Error(),
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	outcome := ClassifyStatus(resp.StatusCode)
	result := DeliveryResult{
		Outcome:    outcome,
		HTTPStatus: resp.StatusCode,
	}
	if outcome != OutcomeSucceeded {
		result.Cause = fmt.Sprintf("http_%d: receiver returned %s", resp.StatusCode, resp.Status)
	}
	return result
}

// ClassifyStatus maps an HTTP response code to a delivery outcome: 2xx
// succeeds, 429 and 5xx are retryable, every other 4xx is terminal because
// the receiver has rejected the request and retrying cannot help.
func ClassifyStatus(status int) DeliveryOutcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSucceeded
	case status == http.StatusTooManyRequests:
		return OutcomeRetryable
	case status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeTerminal
	}
}

var _ DeliveryClient = (*HTTPDeliveryClient)(nil)
