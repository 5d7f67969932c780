package common

import (
	"net/http"

	apperrors "crmdash-go/internal/errors"
	"crmdash-go/internal/logging"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// AbortWithAPIError serializes the provided APIError and aborts the request.
func AbortWithAPIError(c *gin.Context, err *apperrors.APIError) {
	if err == nil {
		err = apperrors.New(http.StatusInternalServerError, "server_error", "server_error", "unknown error")
	}

	payload, marshalErr := err.ToJSON()
	if marshalErr != nil {
		c.JSON(safeStatus(err.HTTPStatus), gin.H{"error": err.Code, "message": err.Message})
		c.Abort()
		return
	}

	c.Data(safeStatus(err.HTTPStatus), "application/json", payload)
	c.Abort()
}

// AbortWithError maps err through the error taxonomy and aborts the request.
func AbortWithError(c *gin.Context, err error) {
	apiErr := apperrors.FromError(err)
	entry := logging.WithReq(c, log.Fields{"status": safeStatus(apiErrStatus(apiErr)), "code": apiErrCode(apiErr)})
	if apiErr != nil && apiErr.IsCritical() {
		entry.Warn("request requires re-authentication")
	} else {
		entry.WithError(err).Error("request failed")
	}
	_ = c.Error(err)
	AbortWithAPIError(c, apiErr)
}

// AbortWithStatus aborts with a freshly built error envelope.
func AbortWithStatus(c *gin.Context, status int, code, message string) {
	AbortWithAPIError(c, apperrors.New(safeStatus(status), code, code, message))
}

func apiErrStatus(e *apperrors.APIError) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

func apiErrCode(e *apperrors.APIError) string {
	if e == nil {
		return "server_error"
	}
	return e.Code
}

func safeStatus(status int) int {
	if status >= 400 && status <= 599 {
		return status
	}
	return http.StatusInternalServerError
}
