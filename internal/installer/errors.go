package installer

import "fmt"

// State is a step of the download and install flow
type State int

const (
	StateIdle State = iota
	StateDownloading
	StateDownloaded
	StateInstalling
	StateSuccess
	StateError
	StateConflictDetected
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateInstalling:
		return "installing"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateConflictDetected:
		return "conflict_detected"
	default:
		return "unknown"
	}
}

func (state State) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

// InstallErrorKind classifies a failed install
type InstallErrorKind int

const (
	InstallErrorArtifactMissing InstallErrorKind = iota
	InstallErrorIntegrityFailed
	InstallErrorPermissionMissing
	InstallErrorConflictDetected
	InstallErrorPlatformRejected
	InstallErrorBusy
)

func (kind InstallErrorKind) String() string {
	switch kind {
	case InstallErrorArtifactMissing:
		return "artifact_missing"
	case InstallErrorIntegrityFailed:
		return "integrity_failed"
	case InstallErrorPermissionMissing:
		return "permission_missing"
	case InstallErrorConflictDetected:
		return "conflict_detected"
	case InstallErrorPlatformRejected:
		return "platform_rejected"
	case InstallErrorBusy:
		return "busy"
	default:
		return "unknown"
	}
}

func (kind InstallErrorKind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

// InstallError is a failed install step
type InstallError struct {
	Kind    InstallErrorKind
	Message string
	Cause   error
}

func (e *InstallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InstallError) Unwrap() error {
	return e.Cause
}
