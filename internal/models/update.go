package models

// UpdateInfo describes a release newer than the running build.
// It is built fresh for every check and never persisted.
type UpdateInfo struct {
	LatestVersion     string `json:"latest_version"`
	LatestVersionCode int    `json:"latest_version_code"`
	DownloadURL       string `json:"download_url"`
	ReleaseNotes      string `json:"release_notes"`
	ReleaseDate       string `json:"release_date"`
	FileSize          string `json:"file_size"`
	IsForceUpdate     bool   `json:"is_force_update"`
}

// UpdateCheckResult is the outcome of one update check.
// Error is set for every failure and HasUpdate is then false.
type UpdateCheckResult struct {
	HasUpdate  bool        `json:"has_update"`
	UpdateInfo *UpdateInfo `json:"update_info,omitempty"`
	Error      string      `json:"error,omitempty"`
	// Skipped is true when the throttle suppressed the feed request.
	Skipped bool `json:"skipped,omitempty"`
	// RateLimited marks results that must not advance the throttle.
	RateLimited bool `json:"rate_limited,omitempty"`
}

// DownloadProgress is one event of a download stream.
// Once Error is set, IsComplete is false and the stream ends.
type DownloadProgress struct {
	BytesDownloaded int64  `json:"bytes_downloaded"`
	TotalBytes      int64  `json:"total_bytes"`
	Percentage      int    `json:"percentage"`
	IsComplete      bool   `json:"is_complete"`
	Error           string `json:"error,omitempty"`
}

// PackageManifest is the identity block carried inside a package artifact
type PackageManifest struct {
	Package     string `json:"package"`
	VersionCode int    `json:"versionCode"`
	VersionName string `json:"versionName"`
	Signer      string `json:"signer"`
}
