package preferences

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// DarkModeKey is the preference key holding the theme choice
const DarkModeKey = "dark_mode"

// Store is the preference key/value store
type Store interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
}

// ThemeManager persists the light/dark theme choice
type ThemeManager struct {
	preferences Store
	logger      *logrus.Logger

	mutex    sync.RWMutex
	handlers []func(darkMode bool)
}

// NewThemeManager creates a theme manager over preferences
func NewThemeManager(preferences Store, logger *logrus.Logger) *ThemeManager {
	return &ThemeManager{preferences: preferences, logger: logger}
}

// OnChange registers a handler called after the theme is stored
func (themeManager *ThemeManager) OnChange(handler func(darkMode bool)) {
	themeManager.mutex.Lock()
	themeManager.handlers = append(themeManager.handlers, handler)
	themeManager.mutex.Unlock()
}

// IsDarkMode reports the stored choice; light is the default
func (themeManager *ThemeManager) IsDarkMode(ctx context.Context) (bool, error) {
	value, found, err := themeManager.preferences.GetPreference(ctx, DarkModeKey)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	darkMode, err := strconv.ParseBool(value)
	if err != nil {
		themeManager.logger.WithField("value", value).Warn("Ignoring unreadable theme preference")
		return false, nil
	}
	return darkMode, nil
}

// SetDarkMode stores the choice and notifies handlers
func (themeManager *ThemeManager) SetDarkMode(ctx context.Context, darkMode bool) error {
	if err := themeManager.preferences.SetPreference(ctx, DarkModeKey, strconv.FormatBool(darkMode)); err != nil {
		return fmt.Errorf("failed to store theme: %w", err)
	}

	themeManager.mutex.RLock()
	handlers := append([]func(bool){}, themeManager.handlers...)
	themeManager.mutex.RUnlock()

	for _, handler := range handlers {
		handler(darkMode)
	}
	return nil
}

// Toggle flips the stored choice and returns the new value
func (themeManager *ThemeManager) Toggle(ctx context.Context) (bool, error) {
	darkMode, err := themeManager.IsDarkMode(ctx)
	if err != nil {
		return false, err
	}
	if err := themeManager.SetDarkMode(ctx, !darkMode); err != nil {
		return darkMode, err
	}
	return !darkMode, nil
}
