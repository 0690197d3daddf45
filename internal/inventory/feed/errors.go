package feed

// Error is a sync failure that names its own metric reason, so scheduler
// dashboards can tell a dead FTP host from a broken feed file.
type Error struct {
	code string
}

func (e *Error) Error() string        { return e.code }
func (e *Error) MetricReason() string { return e.code }

var (
	ErrSupplierNotFound  = &Error{code: "supplier_not_found"}
	ErrSupplierDisabled  = &Error{code: "supplier_disabled"}
	ErrUnsupportedFormat = &Error{code: "unsupported_feed_format"}
	ErrFeedTooLarge      = &Error{code: "feed_too_large"}
	// ErrFeedUnavailable wraps download failures that outlived every retry.
	ErrFeedUnavailable = &Error{code: "feed_unavailable"}
)
