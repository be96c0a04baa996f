package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/http/response"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/platform/apierr"
	"github.com/yungbote/neurobridge-studygen/internal/platform/redislock"
	"github.com/yungbote/neurobridge-studygen/internal/services"
)

// statusFor maps service errors onto an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	if ae, ok := apierr.As(err); ok {
		return ae.Status, ae.Code
	}
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, redislock.ErrLocked):
		return http.StatusConflict, "run_in_progress"
	case errors.Is(err, services.ErrBucketUnavailable):
		return http.StatusServiceUnavailable, "bucket_unavailable"
	}
	switch code := convergence.CodeOf(err); code {
	case convergence.CodeEmptyInput:
		return http.StatusUnprocessableEntity, string(code)
	case convergence.CodeZeroYield:
		return http.StatusBadGateway, string(code)
	case convergence.CodePersistenceFailure:
		return http.StatusInternalServerError, string(code)
	}
	return http.StatusInternalServerError, "internal_error"
}

func respondServiceError(c *gin.Context, err error) {
	status, code := statusFor(err)
	response.RespondError(c, status, code, err)
}
