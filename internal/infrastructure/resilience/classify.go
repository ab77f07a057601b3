package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures count against the breaker but are not retried.
	Permanent = ErrorClassification{RecordFailure: true}
	// Ignored failures neither retry nor trip the breaker.
	Ignored = ErrorClassification{}
)

// StatusError is a non-2xx reply from an HTTP dependency such as Qdrant or Ollama.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, e.Body)
}

// NewStatusError keeps at most 2 KiB of the response body.
func NewStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// HasStatus reports whether err wraps a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// Rule classifies the errors it recognises and returns false for the rest.
type Rule func(err error) (ErrorClassification, bool)

// Classifier evaluates rules in order. Cancellation is Ignored and an open
// breaker is Transient before any rule runs; unmatched errors are Permanent.
func Classifier(rules ...Rule) ErrorClassifier {
	return func(err error) ErrorClassification {
		switch {
		case err == nil:
			return Ignored
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Ignored
		case IsCircuitOpen(err):
			return Transient
		}
		for _, rule := range rules {
			if class, ok := rule(err); ok {
				return class
			}
		}
		return Permanent
	}
}

// RetryStatus treats the listed codes as Transient. Any other StatusError is
// a caller problem and is Ignored.
func RetryStatus(codes ...int) Rule {
	return func(err error) (ErrorClassification, bool) {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			return ErrorClassification{}, false
		}
		for _, code := range codes {
			if statusErr.StatusCode == code {
				return Transient, true
			}
		}
		return Ignored, true
	}
}

// RetryNetwork matches dial and I/O failures.
func RetryNetwork() Rule {
	return func(err error) (ErrorClassification, bool) {
		var netErr net.Error
		if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
			return Transient, true
		}
		return ErrorClassification{}, false
	}
}

// RetryOn matches any of the given sentinel errors.
func RetryOn(targets ...error) Rule {
	return func(err error) (ErrorClassification, bool) {
		for _, target := range targets {
			if errors.Is(err, target) {
				return Transient, true
			}
		}
		return ErrorClassification{}, false
	}
}

// Temporary tags err as domain.ErrTemporary when classify would have retried it.
func Temporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classify(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
