package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/models"
)

// ErrNotInstalled is returned when no package is installed
var ErrNotInstalled = errors.New("no package installed")

// Host is the platform's package facility
type Host interface {
	// Installed returns the manifest of the installed package, or ErrNotInstalled
	Installed(ctx context.Context) (models.PackageManifest, error)
	CanInstallUnknownSources(ctx context.Context) bool
	// RequestInstallPermission asks the user to allow installs from unknown sources
	RequestInstallPermission(ctx context.Context) error
	Install(ctx context.Context, artifactPath string, manifest models.PackageManifest) error
	Uninstall(ctx context.Context, packageName string) error
}

const installedRecord = "installed.json"

// FileHost installs packages by copying them into a directory and
// recording the manifest next to them
type FileHost struct {
	directory string
	logger    *logrus.Logger

	mutex               sync.Mutex
	allowUnknownSources bool
	permissionRequests  int
}

// NewFileHost creates a host rooted at directory
func NewFileHost(directory string, allowUnknownSources bool, logger *logrus.Logger) *FileHost {
	return &FileHost{directory: directory, allowUnknownSources: allowUnknownSources, logger: logger}
}

func (fileHost *FileHost) Installed(ctx context.Context) (models.PackageManifest, error) {
	fileHost.mutex.Lock()
	defer fileHost.mutex.Unlock()
	return fileHost.readRecord()
}

func (fileHost *FileHost) CanInstallUnknownSources(ctx context.Context) bool {
	fileHost.mutex.Lock()
	defer fileHost.mutex.Unlock()
	return fileHost.allowUnknownSources
}

func (fileHost *FileHost) RequestInstallPermission(ctx context.Context) error {
	fileHost.mutex.Lock()
	fileHost.permissionRequests++
	fileHost.mutex.Unlock()

	fileHost.logger.Warn("Installing from unknown sources is not allowed; set ALLOW_UNKNOWN_SOURCES=true to grant it")
	return nil
}

// GrantUnknownSources toggles the install permission
func (fileHost *FileHost) GrantUnknownSources(allowed bool) {
	fileHost.mutex.Lock()
	fileHost.allowUnknownSources = allowed
	fileHost.mutex.Unlock()
}

// PermissionRequests returns how often the permission prompt was raised
func (fileHost *FileHost) PermissionRequests() int {
	fileHost.mutex.Lock()
	defer fileHost.mutex.Unlock()
	return fileHost.permissionRequests
}

func (fileHost *FileHost) Install(ctx context.Context, artifactPath string, manifest models.PackageManifest) error {
	fileHost.mutex.Lock()
	defer fileHost.mutex.Unlock()

	if installed, err := fileHost.readRecord(); err == nil && installed.Signer != manifest.Signer {
		return fmt.Errorf("signature of %s does not match the installed package", manifest.Package)
	}

	if err := os.MkdirAll(fileHost.directory, 0o755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	target := filepath.Join(fileHost.directory, manifest.Package+".pkg")
	if err := copyFile(artifactPath, target); err != nil {
		return fmt.Errorf("failed to install %s: %w", manifest.Package, err)
	}

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(fileHost.directory, installedRecord), encoded, 0o644); err != nil {
		return fmt.Errorf("failed to record installed package: %w", err)
	}

	fileHost.logger.WithFields(logrus.Fields{
		"package":      manifest.Package,
		"version_code": manifest.VersionCode,
	}).Info("Package installed")
	return nil
}

func (fileHost *FileHost) Uninstall(ctx context.Context, packageName string) error {
	fileHost.mutex.Lock()
	defer fileHost.mutex.Unlock()

	installed, err := fileHost.readRecord()
	if err != nil {
		return err
	}
	if installed.Package != packageName {
		return fmt.Errorf("%s is not installed", packageName)
	}

	for _, name := range []string{packageName + ".pkg", installedRecord} {
		if err := os.Remove(filepath.Join(fileHost.directory, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to uninstall %s: %w", packageName, err)
		}
	}

	fileHost.logger.WithField("package", packageName).Info("Package uninstalled")
	return nil
}

func (fileHost *FileHost) readRecord() (models.PackageManifest, error) {
	encoded, err := os.ReadFile(filepath.Join(fileHost.directory, installedRecord))
	if errors.Is(err, os.ErrNotExist) {
		return models.PackageManifest{}, ErrNotInstalled
	}
	if err != nil {
		return models.PackageManifest{}, fmt.Errorf("failed to read installed package: %w", err)
	}

	var manifest models.PackageManifest
	if err := json.Unmarshal(encoded, &manifest); err != nil {
		return models.PackageManifest{}, fmt.Errorf("installed package record is unreadable: %w", err)
	}
	return manifest, nil
}

func copyFile(source, target string) error {
	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	output, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, input); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

var _ Host = (*FileHost)(nil)
