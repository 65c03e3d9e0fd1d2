package update

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/models"
)

const maxReleasePayloadBytes = 4 << 20

// Checker queries the release feed and decides whether a newer build exists.
// It keeps no state between checks.
type Checker struct {
	configuration config.UpdateFeed
	logger        *logrus.Logger
	httpClient    *http.Client
	now           func() time.Time
}

// NewChecker creates a checker for the configured feed
func NewChecker(configuration config.UpdateFeed, logger *logrus.Logger) *Checker {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if configuration.AssetExtension == "" {
		configuration.AssetExtension = ".apk"
	}

	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Checker{
		configuration: configuration,
		logger:        logger,
		httpClient:    &http.Client{Timeout: 2 * timeout, Transport: httpTransport},
		now:           time.Now,
	}
}

type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               *int64 `json:"size"`
}

type releaseDocument struct {
	TagName     *string         `json:"tag_name"`
	Body        *string         `json:"body"`
	PublishedAt *string         `json:"published_at"`
	Assets      *[]releaseAsset `json:"assets"`
}

// Check fetches the latest release and compares its version code with currentVersionCode.
// Failures come back inside the result with HasUpdate false.
func (checker *Checker) Check(ctx context.Context, currentVersionCode int) models.UpdateCheckResult {
	logEntry := checker.logger.WithFields(logrus.Fields{"feed": checker.configuration.URL, "current": currentVersionCode})

	updateInfo, err := checker.latest(ctx, currentVersionCode)
	if err != nil {
		var checkError *CheckError
		if !errors.As(err, &checkError) {
			checkError = &CheckError{Kind: CheckErrorNetwork, Cause: err}
		}
		logEntry.WithField("kind", checkError.Kind.String()).Warn(checkError.Error())
		return models.UpdateCheckResult{
			HasUpdate:   false,
			Error:       checkError.Error(),
			RateLimited: checkError.Kind == CheckErrorRateLimited,
		}
	}

	if updateInfo.LatestVersionCode <= currentVersionCode {
		logEntry.WithField("latest", updateInfo.LatestVersionCode).Debug("No update available")
		return models.UpdateCheckResult{HasUpdate: false}
	}

	logEntry.WithFields(logrus.Fields{
		"latest": updateInfo.LatestVersionCode,
		"force":  updateInfo.IsForceUpdate,
	}).Info("Update available")
	return models.UpdateCheckResult{HasUpdate: true, UpdateInfo: updateInfo}
}

func (checker *Checker) latest(ctx context.Context, currentVersionCode int) (*models.UpdateInfo, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, checker.configuration.URL, nil)
	if err != nil {
		return nil, &CheckError{Kind: CheckErrorNetwork, Cause: err}
	}
	request.Header.Set("Accept", "application/vnd.github.v3+json")
	request.Header.Set("User-Agent", checker.configuration.UserAgent)

	response, err := checker.httpClient.Do(request)
	if err != nil {
		return nil, &CheckError{Kind: CheckErrorNetwork, Cause: err}
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, &CheckError{Kind: CheckErrorRateLimited, StatusCode: response.StatusCode, ResetHint: checker.resetHint(response.Header)}
	case http.StatusNotFound:
		return nil, &CheckError{Kind: CheckErrorNotFound, StatusCode: response.StatusCode}
	default:
		return nil, &CheckError{Kind: CheckErrorHTTPStatus, StatusCode: response.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxReleasePayloadBytes))
	if err != nil {
		return nil, &CheckError{Kind: CheckErrorNetwork, Cause: err}
	}

	return checker.parseRelease(body, currentVersionCode)
}

func (checker *Checker) parseRelease(payload []byte, currentVersionCode int) (*models.UpdateInfo, error) {
	var document releaseDocument
	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, &CheckError{Kind: CheckErrorParse, Cause: err}
	}

	switch {
	case document.TagName == nil:
		return nil, &CheckError{Kind: CheckErrorParse, Cause: errors.New("missing tag_name")}
	case document.Body == nil:
		return nil, &CheckError{Kind: CheckErrorParse, Cause: errors.New("missing body")}
	case document.PublishedAt == nil:
		return nil, &CheckError{Kind: CheckErrorParse, Cause: errors.New("missing published_at")}
	case document.Assets == nil:
		return nil, &CheckError{Kind: CheckErrorParse, Cause: errors.New("missing assets")}
	}

	versionCode := ParseVersionCode(*document.Body)
	downloadURL, fileSize := "", "Unknown"
	for _, asset := range *document.Assets {
		if strings.HasSuffix(asset.Name, checker.configuration.AssetExtension) {
			downloadURL = asset.BrowserDownloadURL
			if asset.Size != nil {
				fileSize = FormatFileSize(*asset.Size)
			}
			break
		}
	}

	return &models.UpdateInfo{
		LatestVersion:     VersionName(*document.TagName),
		LatestVersionCode: versionCode,
		DownloadURL:       downloadURL,
		ReleaseNotes:      ExtractReleaseNotes(*document.Body),
		ReleaseDate:       FormatReleaseDate(*document.PublishedAt),
		FileSize:          fileSize,
		IsForceUpdate:     IsForceUpdate(currentVersionCode, versionCode, checker.configuration.ForceThreshold),
	}, nil
}

// resetHint renders when the feed will accept requests again
func (checker *Checker) resetHint(header http.Header) string {
	if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		return time.Unix(reset, 0).Local().Format("15:04")
	}
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil {
		return checker.now().Add(time.Duration(seconds) * time.Second).Local().Format("15:04")
	}
	return "in a while"
}
