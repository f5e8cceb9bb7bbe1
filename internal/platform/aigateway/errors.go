package aigateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRateLimited      = errors.New("ai gateway rate limit exceeded, please try again later")
	ErrPaymentRequired  = errors.New("ai gateway payment required, credits exhausted")
	ErrUpstream         = errors.New("ai gateway upstream error")
	ErrMalformedOutput  = errors.New("ai gateway returned malformed output")
	ErrEmptyOutput      = errors.New("ai gateway returned no content")
	errMissingImageData = errors.New("response carried no image")
)

// UpstreamError is any transport failure or non-2xx answer other than 429/402.
// Status is 0 when no response was received.
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return ErrUpstream.Error()
	}
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", ErrUpstream.Error(), e.Err)
		}
		return ErrUpstream.Error()
	}
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s (status %d): %s", ErrUpstream.Error(), e.Status, body)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
func (e *UpstreamError) Unwrap() error        { return e.Err }

// MalformedOutputError carries the raw model text that could not be parsed.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	if e == nil || e.Err == nil {
		return ErrMalformedOutput.Error()
	}
	return fmt.Sprintf("%s: %v", ErrMalformedOutput.Error(), e.Err)
}

func (e *MalformedOutputError) Is(target error) bool { return target == ErrMalformedOutput }
func (e *MalformedOutputError) Unwrap() error        { return e.Err }

// NewMalformedOutput reports a reply that parsed but failed shape checks downstream.
func NewMalformedOutput(raw string, err error) error {
	return &MalformedOutputError{Raw: raw, Err: err}
}

func malformed(raw string, err error) error {
	return NewMalformedOutput(raw, err)
}

// Outcome classifies an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrEmptyOutput):
		return "empty"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}
