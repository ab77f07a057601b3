package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

var errNoServers = errors.New("no servers available")

func TestClassifierRules(t *testing.T) {
	classify := Classifier(
		RetryStatus(http.StatusServiceUnavailable),
		RetryNetwork(),
		RetryOn(errNoServers),
	)
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "nil", err: nil, want: Ignored},
		{name: "canceled", err: fmt.Errorf("wrapped: %w", context.Canceled), want: Ignored},
		{name: "deadline", err: context.DeadlineExceeded, want: Ignored},
		{name: "open breaker", err: gobreaker.ErrOpenState, want: Transient},
		{name: "listed status", err: &StatusError{StatusCode: http.StatusServiceUnavailable}, want: Transient},
		{name: "other status", err: &StatusError{StatusCode: http.StatusBadRequest}, want: Ignored},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("boom")}, want: Transient},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: Transient},
		{name: "sentinel", err: fmt.Errorf("publish: %w", errNoServers), want: Transient},
		{name: "unknown", err: errors.New("bad payload"), want: Permanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("classify(%v) = %+v, want %+v", tc.err, got, tc.want)
			}
		})
	}
}

func TestNewStatusErrorTrimsBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       io.NopCloser(strings.NewReader("  model not found\n")),
	}
	err := NewStatusError("ollama", "embed", resp)
	if err.Error() != "ollama embed status: 404 Not Found: model not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !HasStatus(fmt.Errorf("call: %w", err), http.StatusNotFound) || HasStatus(err, http.StatusConflict) {
		t.Fatalf("HasStatus mismatch for %v", err)
	}
}

func TestTemporaryWrapsOnlyRetryable(t *testing.T) {
	classify := Classifier(RetryOn(errNoServers))
	if err := Temporary("nats publish", errNoServers, classify); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", err)
	}
	plain := errors.New("bad payload")
	if err := Temporary("nats publish", plain, classify); err != plain {
		t.Fatalf("non-retryable errors stay as-is, got %v", err)
	}
	if err := Temporary("nats publish", nil, classify); err != nil {
		t.Fatalf("nil stays nil, got %v", err)
	}
}

func TestBackoffsAreCappedAndSumToBudget(t *testing.T) {
	cfg := Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     250 * time.Millisecond,
		RetryMultiplier:     2,
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	got := cfg.Backoffs()
	if len(got) != len(want) {
		t.Fatalf("Backoffs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Backoffs() = %v, want %v", got, want)
		}
	}
	if cfg.RetryBudget() != 550*time.Millisecond {
		t.Fatalf("RetryBudget() = %v", cfg.RetryBudget())
	}
	if single := (Config{RetryMaxAttempts: 1}).Backoffs(); len(single) != 0 {
		t.Fatalf("single attempt must not wait, got %v", single)
	}
}

func TestDefaultBudgetFitsQueryTimeout(t *testing.T) {
	if budget := DefaultConfig().RetryBudget(); budget >= 8*time.Second {
		t.Fatalf("default retry budget %v exceeds the query timeout", budget)
	}
}
