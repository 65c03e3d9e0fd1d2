package installer

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/platform"
)

// InstallResult is the outcome of Install or UninstallCurrent
type InstallResult struct {
	State     State                   `json:"state"`
	ErrorKind *InstallErrorKind       `json:"error_kind,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Manifest  *models.PackageManifest `json:"manifest,omitempty"`
}

// Err returns the failure as an *InstallError, or nil on success
func (result InstallResult) Err() error {
	if result.ErrorKind == nil {
		return nil
	}
	return &InstallError{Kind: *result.ErrorKind, Message: result.Message}
}

// Installer drives Idle → Downloading → Downloaded → Installing → Success | Error | ConflictDetected
type Installer struct {
	configuration config.Installer
	downloader    *Downloader
	host          platform.Host
	logger        *logrus.Logger

	mutex         sync.RWMutex
	state         State
	stateHandlers []func(State)
}

// NewInstaller creates an installer delegating to host
func NewInstaller(configuration config.Installer, host platform.Host, logger *logrus.Logger) *Installer {
	return &Installer{
		configuration: configuration,
		downloader:    NewDownloader(configuration, logger),
		host:          host,
		logger:        logger,
		state:         StateIdle,
	}
}

// State returns the current step
func (installer *Installer) State() State {
	installer.mutex.RLock()
	defer installer.mutex.RUnlock()
	return installer.state
}

// OnStateChange registers a handler called after every transition
func (installer *Installer) OnStateChange(handler func(State)) {
	installer.mutex.Lock()
	installer.stateHandlers = append(installer.stateHandlers, handler)
	installer.mutex.Unlock()
}

// ArtifactPath returns where a downloaded artifact named name lives
func (installer *Installer) ArtifactPath(name string) string {
	return installer.downloader.Path(name)
}

// Download starts a download unless one is running or an install is in progress
func (installer *Installer) Download(ctx context.Context, url, name string) <-chan models.DownloadProgress {
	if !installer.begin(StateDownloading) {
		events := make(chan models.DownloadProgress, 1)
		events <- models.DownloadProgress{Error: (&InstallError{Kind: InstallErrorBusy, Message: "installer is busy"}).Error()}
		close(events)
		return events
	}

	relayed := make(chan models.DownloadProgress, 1)
	go func() {
		defer close(relayed)
		final := StateError
		for progress := range installer.downloader.Download(ctx, url, name) {
			if progress.IsComplete {
				final = StateDownloaded
			}
			// flip the state before the caller sees the completion event
			if progress.IsComplete || progress.Error != "" {
				installer.transition(final)
			}
			select {
			case relayed <- progress:
			case <-ctx.Done():
			}
		}
		if installer.State() == StateDownloading {
			installer.transition(StateError)
		}
	}()
	return relayed
}

// DetectConflict reports whether the installed package is signed by someone else
func (installer *Installer) DetectConflict(ctx context.Context, manifest models.PackageManifest) (bool, error) {
	installed, err := installer.host.Installed(ctx)
	if errors.Is(err, platform.ErrNotInstalled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return installed.Package == manifest.Package && installed.Signer != manifest.Signer, nil
}

// Install verifies and installs the downloaded artifact name
func (installer *Installer) Install(ctx context.Context, name string) InstallResult {
	if !installer.begin(StateInstalling) {
		return installer.failure(installer.State(), InstallErrorBusy, "installer is busy", nil)
	}

	logEntry := installer.logger.WithField("artifact", name)
	path := installer.ArtifactPath(name)

	if validateName(name) != nil {
		return installer.failure(StateError, InstallErrorArtifactMissing, "artifact not found", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return installer.failure(StateError, InstallErrorArtifactMissing, "artifact not found", nil)
	}

	manifest, err := installer.VerifyIntegrity(path)
	if err != nil {
		var installError *InstallError
		if errors.As(err, &installError) {
			return installer.failure(StateError, installError.Kind, installError.Error(), nil)
		}
		return installer.failure(StateError, InstallErrorIntegrityFailed, err.Error(), nil)
	}

	conflict, err := installer.DetectConflict(ctx, manifest)
	if err != nil {
		return installer.failure(StateError, InstallErrorPlatformRejected, "failed to read installed package: "+err.Error(), &manifest)
	}
	if conflict {
		logEntry.Warn("Installed package is signed differently; uninstall it first")
		return installer.failure(StateConflictDetected, InstallErrorConflictDetected,
			"the installed application has a different signature; uninstall it before installing this update", &manifest)
	}

	if !installer.host.CanInstallUnknownSources(ctx) {
		if err := installer.host.RequestInstallPermission(ctx); err != nil {
			logEntry.WithError(err).Warn("Failed to request install permission")
		}
		// the artifact stays valid; the caller retries once permission is granted
		return installer.failure(StateDownloaded, InstallErrorPermissionMissing, "permission to install from unknown sources is required", &manifest)
	}

	if err := installer.host.Install(ctx, path, manifest); err != nil {
		return installer.failure(StateError, InstallErrorPlatformRejected, "installation rejected: "+err.Error(), &manifest)
	}

	installer.transition(StateSuccess)
	logEntry.WithField("version_code", manifest.VersionCode).Info("Update installed")
	return InstallResult{State: StateSuccess, Manifest: &manifest}
}

// UninstallCurrent removes the installed application
func (installer *Installer) UninstallCurrent(ctx context.Context) InstallResult {
	if !installer.begin(StateInstalling) {
		return installer.failure(installer.State(), InstallErrorBusy, "installer is busy", nil)
	}

	installed, err := installer.host.Installed(ctx)
	if err != nil {
		return installer.failure(StateIdle, InstallErrorArtifactMissing, err.Error(), nil)
	}
	if err := installer.host.Uninstall(ctx, installed.Package); err != nil {
		return installer.failure(StateError, InstallErrorPlatformRejected, "uninstall rejected: "+err.Error(), &installed)
	}

	installer.transition(StateIdle)
	return InstallResult{State: StateIdle, Manifest: &installed}
}

// InstalledVersionCode reports the installed build, or fallback when nothing is installed
func (installer *Installer) InstalledVersionCode(ctx context.Context, fallback int) int {
	installed, err := installer.host.Installed(ctx)
	if err != nil || installed.VersionCode == 0 {
		return fallback
	}
	return installed.VersionCode
}

// begin moves to next unless a download or install is running
func (installer *Installer) begin(next State) bool {
	installer.mutex.Lock()
	if installer.state == StateDownloading || installer.state == StateInstalling {
		installer.mutex.Unlock()
		return false
	}
	installer.state = next
	handlers := append([]func(State){}, installer.stateHandlers...)
	installer.mutex.Unlock()

	for _, handler := range handlers {
		handler(next)
	}
	return true
}

func (installer *Installer) transition(next State) {
	installer.mutex.Lock()
	installer.state = next
	handlers := append([]func(State){}, installer.stateHandlers...)
	installer.mutex.Unlock()

	for _, handler := range handlers {
		handler(next)
	}
}

func (installer *Installer) failure(state State, kind InstallErrorKind, message string, manifest *models.PackageManifest) InstallResult {
	if kind != InstallErrorBusy {
		installer.transition(state)
	}
	installer.logger.WithFields(logrus.Fields{"state": state.String(), "kind": kind.String()}).Warn(message)
	return InstallResult{State: state, ErrorKind: &kind, Message: message, Manifest: manifest}
}
