package update

import "fmt"

// CheckErrorKind classifies a failed update check
type CheckErrorKind int

const (
	CheckErrorRateLimited CheckErrorKind = iota
	CheckErrorNotFound
	CheckErrorHTTPStatus
	CheckErrorNetwork
	CheckErrorParse
)

func (kind CheckErrorKind) String() string {
	switch kind {
	case CheckErrorRateLimited:
		return "rate_limited"
	case CheckErrorNotFound:
		return "not_found"
	case CheckErrorHTTPStatus:
		return "http_status"
	case CheckErrorNetwork:
		return "network"
	case CheckErrorParse:
		return "parse"
	default:
		return "unknown"
	}
}

// CheckError is a failed update check. It never escapes Check; its
// message ends up in UpdateCheckResult.Error.
type CheckError struct {
	Kind       CheckErrorKind
	StatusCode int
	ResetHint  string
	Cause      error
}

func (e *CheckError) Error() string {
	switch e.Kind {
	case CheckErrorRateLimited:
		return "Rate limit exceeded. Try again at " + e.ResetHint
	case CheckErrorNotFound:
		return "Release not found. Check repository settings"
	case CheckErrorHTTPStatus:
		return fmt.Sprintf("Release feed error: HTTP %d", e.StatusCode)
	case CheckErrorNetwork:
		return fmt.Sprintf("Network error: %v", e.Cause)
	case CheckErrorParse:
		return fmt.Sprintf("Failed to parse update info: %v", e.Cause)
	default:
		return "update check failed"
	}
}

func (e *CheckError) Unwrap() error {
	return e.Cause
}
