package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/currency-converter/internal/logger"
	"github.com/dalfonso89/currency-converter/internal/models"
)

func writeArtifact(t *testing.T, directory string) string {
	t.Helper()
	path := filepath.Join(directory, "artifact.apk")
	require.NoError(t, os.WriteFile(path, []byte("package bytes"), 0o644))
	return path
}

func TestFileHost_InstallAndUninstall(t *testing.T) {
	ctx := context.Background()
	installDirectory := filepath.Join(t.TempDir(), "installed")
	host := NewFileHost(installDirectory, true, logger.Discard())
	manifest := models.PackageManifest{Package: "com.harry.kharrency", VersionCode: 12, VersionName: "1.2", Signer: "release-key"}

	_, err := host.Installed(ctx)
	assert.ErrorIs(t, err, ErrNotInstalled)

	require.NoError(t, host.Install(ctx, writeArtifact(t, t.TempDir()), manifest))

	installed, err := host.Installed(ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest, installed)
	assert.FileExists(t, filepath.Join(installDirectory, "com.harry.kharrency.pkg"))

	assert.Error(t, host.Uninstall(ctx, "com.other.app"))
	require.NoError(t, host.Uninstall(ctx, "com.harry.kharrency"))

	_, err = host.Installed(ctx)
	assert.ErrorIs(t, err, ErrNotInstalled)
	assert.NoFileExists(t, filepath.Join(installDirectory, "com.harry.kharrency.pkg"))
}

func TestFileHost_RejectsDifferentSigner(t *testing.T) {
	ctx := context.Background()
	host := NewFileHost(t.TempDir(), true, logger.Discard())
	artifact := writeArtifact(t, t.TempDir())

	require.NoError(t, host.Install(ctx, artifact, models.PackageManifest{Package: "com.harry.kharrency", VersionCode: 1, Signer: "debug-key"}))
	err := host.Install(ctx, artifact, models.PackageManifest{Package: "com.harry.kharrency", VersionCode: 2, Signer: "release-key"})

	assert.Error(t, err)
	installed, err := host.Installed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, installed.VersionCode)
}

func TestFileHost_Permission(t *testing.T) {
	host := NewFileHost(t.TempDir(), false, logger.Discard())
	assert.False(t, host.CanInstallUnknownSources(context.Background()))

	require.NoError(t, host.RequestInstallPermission(context.Background()))
	assert.Equal(t, 1, host.PermissionRequests())

	host.GrantUnknownSources(true)
	assert.True(t, host.CanInstallUnknownSources(context.Background()))
}
