package core

import "testing"

func TestSubscription_Matches(t *testing.T) {
	cases := []struct {
		name      string
		patterns  []string
		eventType string
		want      bool
	}{
		{"exact", []string{"user.created"}, "user.created", true},
		{"exact miss", []string{"user.created"}, "user.deleted", false},
		{"prefix wildcard", []string{"user.*"}, "user.created", true},
		{"prefix wildcard deep", []string{"user.*"}, "user.profile.updated", true},
		{"prefix wildcard miss", []string{"user.*"}, "order.created", false},
		{"prefix is not a substring match", []string{"user.*"}, "username.created", false},
		{"global wildcard", []string{"*"}, "anything.at.all", true},
		{"empty patterns", nil, "user.created", false},
		{"empty event type", []string{"*"}, "", false},
		{"one of many", []string{"order.created", "user.*"}, "user.updated", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subscription := Subscription{EventTypes: tc.patterns}
			if got := subscription.Matches(tc.eventType); got != tc.want {
				t.Fatalf("Matches(%q) = %v, want %v", tc.eventType, got, tc.want)
			}
		})
	}
}

func TestAttemptStatus_Terminal(t *testing.T) {
	if !AttemptStatusSucceeded.Terminal() {
		t.Fatalf("succeeded should be terminal")
	}
	if !AttemptStatusFailedTerminal.Terminal() {
		t.Fatalf("failed_terminal should be terminal")
	}
	for _, status := range []AttemptStatus{AttemptStatusPending, AttemptStatusInFlight, AttemptStatusFailedRetryable} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
}

func TestDeadLetterStatus_Terminal(t *testing.T) {
	if !DeadLetterStatusResolved.Terminal() || !DeadLetterStatusIgnored.Terminal() {
		t.Fatalf("resolved and ignored should be terminal")
	}
	if DeadLetterStatusPending.Terminal() || DeadLetterStatusRetried.Terminal() {
		t.Fatalf("pending and retried should not be terminal")
	}
}

func TestFailureReasonBucket(t *testing.T) {
	cases := map[string]string{
		"http_404: receiver returned 404 Not Found": "http_404",
		"transport: dial tcp: connection refused":   "transport",
		"exhausted: 6 attempts, last failure x":     "exhausted",
		"no separator":                              "no separator",
		"":                                          "unknown",
		"  ":                                        "unknown",
	}
	for reason, want := range cases {
		if got := FailureReasonBucket(reason); got != want {
			t.Fatalf("FailureReasonBucket(%q) = %q, want %q", reason, got, want)
		}
	}
}

func TestDedupeKeys(t *testing.T) {
	if got := FanOutDedupeKey("evt", "sub"); got != "evt:sub" {
		t.Fatalf("unexpected fan-out key %q", got)
	}
	if got := RetryDedupeKey("evt", "sub", "dl"); got != "evt:sub:retry:dl" {
		t.Fatalf("unexpected retry key %q", got)
	}
	if FanOutDedupeKey("evt", "sub") == RetryDedupeKey("evt", "sub", "dl") {
		t.Fatalf("retry key must not collide with fan-out key")
	}
}
