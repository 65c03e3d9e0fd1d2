package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type themeRequest struct {
	DarkMode *bool `json:"dark_mode" binding:"required"`
}

// GetTheme returns the stored theme
func (handlers *Handlers) GetTheme(context *gin.Context) {
	darkMode, err := handlers.theme.IsDarkMode(context.Request.Context())
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to read theme", err.Error())
		return
	}
	context.JSON(http.StatusOK, gin.H{"dark_mode": darkMode})
}

// SetTheme stores the theme
func (handlers *Handlers) SetTheme(context *gin.Context) {
	var request themeRequest
	if err := context.ShouldBindJSON(&request); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid theme request", err.Error())
		return
	}

	if err := handlers.theme.SetDarkMode(context.Request.Context(), *request.DarkMode); err != nil {
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to store theme", err.Error())
		return
	}
	context.JSON(http.StatusOK, gin.H{"dark_mode": *request.DarkMode})
}

// ToggleTheme flips the stored theme
func (handlers *Handlers) ToggleTheme(context *gin.Context) {
	darkMode, err := handlers.theme.Toggle(context.Request.Context())
	if err != nil {
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to store theme", err.Error())
		return
	}
	context.JSON(http.StatusOK, gin.H{"dark_mode": darkMode})
}
