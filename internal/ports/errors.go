package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Feed Specific Errors
	ErrFeedUnavailable        = errors.New("data feed is unavailable")
	ErrConnectionFailed       = errors.New("failed to connect to the data feed")
	ErrRateLimited            = errors.New("API rate limit exceeded")
	ErrUnsupportedGranularity = errors.New("granularity not supported by the data source")
	ErrUnsupportedProduct     = errors.New("product not offered by the data source")
	ErrStreamClosed           = errors.New("stream connection closed")
	ErrMalformedMessage       = errors.New("malformed message from the data feed")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)

// FeedError carries an upstream's own description of a failure, e.g. the
// HTTP status and the message field of an error response body.
type FeedError struct {
	Status  string // Transport status text, e.g. "Bad Request"
	Message string // Upstream message, may be empty
	Err     error  // Standard error this failure maps to
}

// Reason formats the failure for display: "<status>. <message>".
func (e *FeedError) Reason() string {
	switch {
	case e.Status == "" && e.Message == "":
		return "Unknown reason."
	case e.Status == "":
		return e.Message
	case e.Message == "":
		return e.Status
	}
	return e.Status + ". " + e.Message
}

func (e *FeedError) Error() string {
	if e.Err == nil {
		return e.Reason()
	}
	return e.Err.Error() + ": " + e.Reason()
}

func (e *FeedError) Unwrap() error {
	return e.Err
}
