package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrLandingPage is returned when the site's landing page cannot be fetched.
	ErrLandingPage = errors.New("landing page fetch failed")
	// ErrSearchSubmit is returned when the search form submission fails.
	ErrSearchSubmit = errors.New("search submission failed")
)

// Fetch error kinds, also used as metric labels.
const (
	KindTimeout     = "timeout"
	KindConnection  = "connection"
	KindForbidden   = "forbidden"
	KindNotFound    = "not_found"
	KindRateLimited = "rate_limited"
	KindStatus      = "http_status"
	KindCanceled    = "canceled"
	KindOther       = "other"
)

// FetchError is a classified transport failure for one request.
type FetchError struct {
	Kind   string
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// classifyError maps a transport error and status code onto a FetchError.
// It returns nil when there is nothing to report.
func classifyError(rawURL string, err error, statusCode int) error {
	if err == nil && statusCode < http.StatusBadRequest {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("http status %d", statusCode)
	}
	return &FetchError{Kind: errorKind(err, statusCode), URL: rawURL, Status: statusCode, Err: err}
}

func errorKind(err error, statusCode int) string {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnection
	}

	switch {
	case statusCode == http.StatusForbidden:
		return KindForbidden
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode >= http.StatusBadRequest:
		return KindStatus
	}
	return KindOther
}

// errorLabel returns the kind of a FetchError, or "other".
func errorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return KindOther
}
