package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/models"
)

const (
	chunkSize         = 8 << 10
	partialSuffix     = ".part"
	defaultIdleLimit  = 30 * time.Second
	defaultProgressAt = 500 * time.Millisecond
)

// ErrDownloadTimeout is reported when the server stops sending data
var ErrDownloadTimeout = errors.New("download timed out")

// Downloader streams package artifacts into the download directory
type Downloader struct {
	directory        string
	idleTimeout      time.Duration
	progressInterval time.Duration
	logger           *logrus.Logger
	httpClient       *http.Client
}

// NewDownloader creates a downloader with bounded connect and idle time
func NewDownloader(configuration config.Installer, logger *logrus.Logger) *Downloader {
	idleTimeout := configuration.DownloadTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleLimit
	}
	progressInterval := configuration.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = defaultProgressAt
	}

	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: idleTimeout}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: idleTimeout,
	}

	return &Downloader{
		directory:        configuration.DownloadDir,
		idleTimeout:      idleTimeout,
		progressInterval: progressInterval,
		logger:           logger,
		// no overall timeout: large artifacts are bounded by the idle timer instead
		httpClient: &http.Client{Transport: httpTransport},
	}
}

// Path returns where a completed artifact named name is stored
func (downloader *Downloader) Path(name string) string {
	return filepath.Join(downloader.directory, name)
}

// Download fetches url into name and reports progress on the returned channel.
// Each call is an independent attempt. The last event either has IsComplete set
// or carries Error; the channel is then closed. Cancelling ctx abandons the
// download and removes the partial file.
func (downloader *Downloader) Download(ctx context.Context, url, name string) <-chan models.DownloadProgress {
	events := make(chan models.DownloadProgress, 1)
	go func() {
		defer close(events)
		downloader.run(ctx, url, name, events)
	}()
	return events
}

func (downloader *Downloader) run(ctx context.Context, url, name string, events chan<- models.DownloadProgress) {
	logEntry := downloader.logger.WithFields(logrus.Fields{"url": url, "name": name})

	fail := func(progress models.DownloadProgress, err error) {
		logEntry.WithError(err).Warn("Download failed")
		progress.IsComplete = false
		progress.Error = err.Error()
		if ctx.Err() != nil {
			// the caller has gone away; deliver only if there is room
			select {
			case events <- progress:
			default:
			}
			return
		}
		events <- progress
	}

	if err := validateName(name); err != nil {
		fail(models.DownloadProgress{}, err)
		return
	}
	if err := os.MkdirAll(downloader.directory, 0o755); err != nil {
		fail(models.DownloadProgress{}, fmt.Errorf("failed to create download directory: %w", err))
		return
	}

	finalPath := downloader.Path(name)
	partialPath := finalPath + partialSuffix
	// a stale artifact must not be mistaken for this attempt's result
	_ = os.Remove(finalPath)

	readContext, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	var idleExpired atomic.Bool
	idleTimer := time.AfterFunc(downloader.idleTimeout, func() {
		idleExpired.Store(true)
		cancelRead()
	})
	defer idleTimer.Stop()

	request, err := http.NewRequestWithContext(readContext, http.MethodGet, url, nil)
	if err != nil {
		fail(models.DownloadProgress{}, fmt.Errorf("invalid download url: %w", err))
		return
	}

	response, err := downloader.httpClient.Do(request)
	if err != nil {
		fail(models.DownloadProgress{}, downloader.classify(err, &idleExpired))
		return
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		fail(models.DownloadProgress{}, fmt.Errorf("Download failed: HTTP %d", response.StatusCode))
		return
	}

	totalBytes := response.ContentLength
	if totalBytes < 0 {
		totalBytes = 0
	}

	file, err := os.Create(partialPath)
	if err != nil {
		fail(models.DownloadProgress{TotalBytes: totalBytes}, fmt.Errorf("failed to create artifact: %w", err))
		return
	}

	progress := models.DownloadProgress{TotalBytes: totalBytes}
	abandon := func(err error) {
		file.Close()
		_ = os.Remove(partialPath)
		fail(progress, err)
	}

	sometimes := rate.Sometimes{Interval: downloader.progressInterval}
	buffer := make([]byte, chunkSize)
	for {
		count, readErr := response.Body.Read(buffer)
		if count > 0 {
			idleTimer.Reset(downloader.idleTimeout)
			if _, err := file.Write(buffer[:count]); err != nil {
				abandon(fmt.Errorf("failed to write artifact: %w", err))
				return
			}
			progress.BytesDownloaded += int64(count)
			progress.Percentage = percentage(progress.BytesDownloaded, totalBytes)

			var sendErr error
			sometimes.Do(func() { sendErr = send(ctx, events, progress) })
			if sendErr != nil {
				abandon(errors.New("Download cancelled"))
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			abandon(downloader.classify(readErr, &idleExpired))
			return
		}
	}

	if response.ContentLength >= 0 && progress.BytesDownloaded != response.ContentLength {
		abandon(fmt.Errorf("Download incomplete: received %d of %d bytes", progress.BytesDownloaded, response.ContentLength))
		return
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(partialPath)
		fail(progress, fmt.Errorf("failed to finish artifact: %w", err))
		return
	}
	if err := os.Rename(partialPath, finalPath); err != nil {
		_ = os.Remove(partialPath)
		fail(progress, fmt.Errorf("failed to finish artifact: %w", err))
		return
	}

	progress.TotalBytes = progress.BytesDownloaded
	progress.Percentage = 100
	progress.IsComplete = true
	if err := send(ctx, events, progress); err != nil {
		// abandoned after the last byte: do not leave a file the caller never saw complete
		_ = os.Remove(finalPath)
		return
	}
	logEntry.WithField("bytes", progress.BytesDownloaded).Info("Download complete")
}

// classify turns a transport error into a readable message with a typed timeout
func (downloader *Downloader) classify(err error, idleExpired *atomic.Bool) error {
	var networkError net.Error
	if idleExpired.Load() || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &networkError) && networkError.Timeout()) {
		return fmt.Errorf("%w after %s without data", ErrDownloadTimeout, downloader.idleTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return errors.New("Download cancelled")
	}
	return fmt.Errorf("Download failed: %w", err)
}

func send(ctx context.Context, events chan<- models.DownloadProgress, progress models.DownloadProgress) error {
	select {
	case events <- progress:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func percentage(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	value := int(downloaded * 100 / total)
	if value > 100 {
		return 100
	}
	return value
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasSuffix(name, partialSuffix) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}
