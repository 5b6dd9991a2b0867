package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"polybridge.com/pkg/xerr"
)

// fail 按 xerr 错误码映射 HTTP 状态
func fail(c *gin.Context, err error) {
	var ce *xerr.CodeError
	if !errors.As(err, &ce) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	switch ce.Code {
	case xerr.RequestParamsError:
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": ce.Msg})
	case xerr.AuthError:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_session", "message": ce.Msg})
	case xerr.RecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": ce.Msg})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "datastore_error", "message": ce.Msg})
	}
}
