package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/utils"
)

// respondError maps service errors onto status codes and the response
// envelope. Reauthorization failures carry an explicit flag so clients can
// restart the OAuth flow instead of retrying.
func respondError(c *gin.Context, err error) {
	body := gin.H{
		"success": false,
		"error":   err.Error(),
	}

	switch {
	case errors.Is(err, errs.ErrReauthRequired):
		body["reauthRequired"] = true
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, errs.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
	})
}

// requestUserID resolves the acting user: the context (header middleware)
// wins, a userId query parameter is the fallback.
func requestUserID(c *gin.Context) string {
	if userID := utils.GetUserIDFromContext(c.Request.Context()); userID != "" {
		return userID
	}
	return c.Query("userId")
}
