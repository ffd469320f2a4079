package types

import "errors"

var (
	// ErrInvalidURL is the only error a scan surfaces to its caller. It is
	// returned before any extractor runs.
	ErrInvalidURL = errors.New("invalid url")

	ErrScanNotFound = errors.New("scan not found")
)

const (
	WarningExtractorDegraded    = "extractor_degraded"
	WarningScanDeadlineExceeded = "scan_deadline_exceeded"
	WarningScorerDegraded       = "scorer_degraded"
	WarningSourceUnavailable    = "source_unavailable"
)

// Warning records a non-fatal problem that was resolved to a default value.
type Warning struct {
	Source string `json:"source"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
