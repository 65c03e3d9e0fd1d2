package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dalfonso89/currency-converter/internal/installer"
	"github.com/dalfonso89/currency-converter/internal/models"
)

type downloadRequest struct {
	URL  string `json:"url" binding:"required,url"`
	Name string `json:"name" binding:"required"`
}

type installRequest struct {
	Name string `json:"name" binding:"required"`
}

// CheckForUpdates runs a throttled check; force=true bypasses the throttle
func (handlers *Handlers) CheckForUpdates(context *gin.Context) {
	force, err := strconv.ParseBool(context.DefaultQuery("force", "false"))
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid force flag", err.Error())
		return
	}

	result := handlers.updates.CheckForUpdates(context.Request.Context(), force)
	context.JSON(http.StatusOK, result)
}

// LatestUpdate returns the newest update seen by the background watcher
func (handlers *Handlers) LatestUpdate(context *gin.Context) {
	response := gin.H{"has_update": false}

	lastCheck, err := handlers.updates.LastCheckTime(context.Request.Context())
	if err != nil {
		handlers.logger.WithError(err).Warn("Failed to read last update check")
	} else if !lastCheck.IsZero() {
		response["last_check"] = lastCheck.UTC().Format(time.RFC3339)
	}

	if handlers.watcher != nil {
		if info, found := handlers.watcher.Latest(); found {
			response["has_update"] = true
			response["update_info"] = info
		}
	}
	context.JSON(http.StatusOK, response)
}

// DownloadUpdate streams download progress as server-sent events
func (handlers *Handlers) DownloadUpdate(context *gin.Context) {
	var request downloadRequest
	if err := context.ShouldBindJSON(&request); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid download request", err.Error())
		return
	}

	downloadID := uuid.NewString()
	handlers.logger.WithFields(map[string]interface{}{
		"download_id": downloadID,
		"url":         request.URL,
		"name":        request.Name,
	}).Info("Starting update download")

	events := handlers.installer.Download(context.Request.Context(), request.URL, request.Name)

	context.Header("X-Download-ID", downloadID)
	context.Stream(func(writer io.Writer) bool {
		progress, open := <-events
		if !open {
			return false
		}
		context.SSEvent(progressEvent(progress), progress)
		return !progress.IsComplete && progress.Error == ""
	})
}

func progressEvent(progress models.DownloadProgress) string {
	switch {
	case progress.Error != "":
		return "error"
	case progress.IsComplete:
		return "complete"
	default:
		return "progress"
	}
}

// InstallUpdate installs a previously downloaded artifact
func (handlers *Handlers) InstallUpdate(context *gin.Context) {
	var request installRequest
	if err := context.ShouldBindJSON(&request); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid install request", err.Error())
		return
	}

	result := handlers.installer.Install(context.Request.Context(), request.Name)
	context.JSON(installStatus(result), result)
}

// UninstallCurrent removes the installed application
func (handlers *Handlers) UninstallCurrent(context *gin.Context) {
	result := handlers.installer.UninstallCurrent(context.Request.Context())
	context.JSON(installStatus(result), result)
}

// InstallerState reports the installer's current step
func (handlers *Handlers) InstallerState(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{"state": handlers.installer.State()})
}

func installStatus(result installer.InstallResult) int {
	if result.ErrorKind == nil {
		return http.StatusOK
	}
	switch *result.ErrorKind {
	case installer.InstallErrorArtifactMissing:
		return http.StatusNotFound
	case installer.InstallErrorIntegrityFailed:
		return http.StatusUnprocessableEntity
	case installer.InstallErrorPermissionMissing:
		return http.StatusForbidden
	case installer.InstallErrorConflictDetected, installer.InstallErrorBusy:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
