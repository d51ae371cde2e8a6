package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderEventID   = "X-Event-Id"
)

// SignatureSkewWindow bounds how stale a signed request may be before a
// receiver should reject it.
const SignatureSkewWindow = 5 * time.Minute

// HMACSigner signs `<unix seconds>.<body>` with HMAC-SHA256 and renders the
// digest as lowercase hex.
type HMACSigner struct{}

func (HMACSigner) Sign(secret string, timestamp time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp.UTC().Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyInput carries the receiver-side material for signature verification.
type VerifyInput struct {
	Secret          string
	TimestampHeader string
	SignatureHeader string
	Body            []byte
	Now             time.Time
}

// VerifySignature checks an inbound webhook the way receivers are expected
// to: parse the timestamp header, reject anything outside the skew window,
// then compare signatures in constant time.
func VerifySignature(in VerifyInput) error {
	tsHeader := strings.TrimSpace(in.TimestampHeader)
	sigHeader := strings.TrimSpace(in.SignatureHeader)

	tsInt, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("core: invalid %s header: %w", HeaderTimestamp, err)
	}
	signedAt := time.Unix(tsInt, 0).UTC()

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	if signedAt.Before(now.Add(-SignatureSkewWindow)) || signedAt.After(now.Add(SignatureSkewWindow)) {
		return fmt.Errorf("core: %s outside allowed window", HeaderTimestamp)
	}

	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		return fmt.Errorf("core: invalid %s header: %w", HeaderSignature, err)
	}
	expected := HMACSigner{}.Sign(in.Secret, signedAt, in.Body)
	expectedBytes, _ := hex.DecodeString(expected)
	if !hmac.Equal(provided, expectedBytes) {
		return fmt.Errorf("core: signature mismatch")
	}
	return nil
}

var _ Signer = HMACSigner{}
