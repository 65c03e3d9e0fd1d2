package installer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/update"
)

const manifestEntry = "manifest.json"

const maxManifestBytes = 64 << 10

// VerifyIntegrity checks the artifact's size bounds and that its manifest
// names this application's package and a signer
func (installer *Installer) VerifyIntegrity(path string) (models.PackageManifest, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return models.PackageManifest{}, &InstallError{Kind: InstallErrorArtifactMissing, Message: "artifact not found", Cause: err}
	}
	if err != nil {
		return models.PackageManifest{}, &InstallError{Kind: InstallErrorIntegrityFailed, Message: "artifact unreadable", Cause: err}
	}

	minimum, maximum := installer.configuration.MinArtifactBytes, installer.configuration.MaxArtifactBytes
	if info.Size() < minimum || (maximum > 0 && info.Size() > maximum) {
		message := fmt.Sprintf("artifact size %s is outside %s..%s",
			update.FormatFileSize(info.Size()), update.FormatFileSize(minimum), update.FormatFileSize(maximum))
		return models.PackageManifest{}, &InstallError{Kind: InstallErrorIntegrityFailed, Message: message}
	}

	manifest, err := readManifest(path)
	if err != nil {
		return models.PackageManifest{}, &InstallError{Kind: InstallErrorIntegrityFailed, Message: "artifact is not a valid package", Cause: err}
	}

	if manifest.Package != installer.configuration.PackageName {
		return models.PackageManifest{}, &InstallError{
			Kind:    InstallErrorIntegrityFailed,
			Message: fmt.Sprintf("artifact package %q does not match %q", manifest.Package, installer.configuration.PackageName),
		}
	}
	if manifest.Signer == "" {
		return models.PackageManifest{}, &InstallError{Kind: InstallErrorIntegrityFailed, Message: "artifact is not signed"}
	}
	return manifest, nil
}

func readManifest(path string) (models.PackageManifest, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return models.PackageManifest{}, err
	}
	defer archive.Close()

	for _, entry := range archive.File {
		if entry.Name != manifestEntry {
			continue
		}
		reader, err := entry.Open()
		if err != nil {
			return models.PackageManifest{}, err
		}
		defer reader.Close()

		var manifest models.PackageManifest
		if err := json.NewDecoder(io.LimitReader(reader, maxManifestBytes)).Decode(&manifest); err != nil {
			return models.PackageManifest{}, fmt.Errorf("invalid %s: %w", manifestEntry, err)
		}
		return manifest, nil
	}
	return models.PackageManifest{}, fmt.Errorf("%s not found", manifestEntry)
}
