package deribit

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimited = errors.New("rate limited by API")
	ErrClosed      = errors.New("connection closed")
)

// APIError is an application-level error payload returned by the venue.
// It is terminal for the call: retrying yields the same answer.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deribit error %d: %s", e.Code, e.Message)
}

// FetchError wraps the last underlying failure of a snapshot read after
// all attempts are exhausted. Fatal for the whole computation.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
