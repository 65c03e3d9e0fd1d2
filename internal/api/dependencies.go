package api

import (
	"context"
	"time"

	"github.com/dalfonso89/currency-converter/internal/installer"
	"github.com/dalfonso89/currency-converter/internal/models"
)

// Converter is satisfied by service.ConversionEngine
type Converter interface {
	Convert(ctx context.Context, amount float64, fromCurrency, toCurrency string) (models.ConversionResult, error)
	Rates(ctx context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error)
}

// UpdateService is satisfied by update.Manager
type UpdateService interface {
	CheckForUpdates(ctx context.Context, force bool) models.UpdateCheckResult
	LastCheckTime(ctx context.Context) (time.Time, error)
}

// LatestUpdate is satisfied by scheduler.UpdateWatcher
type LatestUpdate interface {
	Latest() (models.UpdateInfo, bool)
}

// PackageInstaller is satisfied by installer.Installer
type PackageInstaller interface {
	Download(ctx context.Context, url, name string) <-chan models.DownloadProgress
	Install(ctx context.Context, name string) installer.InstallResult
	UninstallCurrent(ctx context.Context) installer.InstallResult
	State() installer.State
}

// ThemeService is satisfied by preferences.ThemeManager
type ThemeService interface {
	IsDarkMode(ctx context.Context) (bool, error)
	SetDarkMode(ctx context.Context, darkMode bool) error
	Toggle(ctx context.Context) (bool, error)
}
