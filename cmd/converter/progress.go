package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/update"
)

const (
	defaultBarWidth = 30
	maxBarWidth     = 50
)

// renderBar draws one progress line, e.g. "[#####-----]  50%  2 MB / 5 MB"
func renderBar(progress models.DownloadProgress, width int) string {
	if width <= 0 {
		width = defaultBarWidth
	}

	if progress.TotalBytes <= 0 {
		return fmt.Sprintf("[%s]    ?%%  %s", strings.Repeat("-", width), update.FormatFileSize(progress.BytesDownloaded))
	}

	percentage := min(max(progress.Percentage, 0), 100)
	filled := width * percentage / 100
	return fmt.Sprintf("[%s%s] %3d%%  %s / %s",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		percentage,
		update.FormatFileSize(progress.BytesDownloaded),
		update.FormatFileSize(progress.TotalBytes))
}

// barWidth sizes the bar to the terminal behind w, or the default when w is not one
func barWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return defaultBarWidth
	}
	columns, _, err := term.GetSize(int(file.Fd()))
	if err != nil {
		return defaultBarWidth
	}
	// leave room for the percentage and sizes
	return min(max(columns-30, 10), maxBarWidth)
}

// isTerminal reports whether w redraws in place with carriage returns
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
