package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/face-verify/internal/domain"
)

var (
	errMissingFile = &domain.AppError{
		Code:       "MISSING_FILE",
		Message:    "Required file is missing",
		Kind:       domain.KindInput,
		StatusCode: http.StatusBadRequest,
	}

	errFileTooLarge = &domain.AppError{
		Code:       "FILE_TOO_LARGE",
		Message:    "Uploaded file exceeds the size limit",
		Kind:       domain.KindInput,
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	errUnsupportedMedia = &domain.AppError{
		Code:       "UNSUPPORTED_MEDIA_TYPE",
		Message:    "Images must be JPEG, PNG or GIF",
		Kind:       domain.KindInput,
		StatusCode: http.StatusUnsupportedMediaType,
	}

	errTimeout = &domain.AppError{
		Code:       "REQUEST_TIMEOUT",
		Message:    "Request did not complete in time",
		Kind:       domain.KindInternal,
		StatusCode: http.StatusGatewayTimeout,
	}
)

// isDeadline reports a local context deadline or one reported by a gRPC
// backend, wrapped or not.
func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var grpcErr interface{ GRPCStatus() *status.Status }
	return errors.As(err, &grpcErr) && grpcErr.GRPCStatus().Code() == codes.DeadlineExceeded
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Kind    domain.Kind `json:"kind"`
	Detail  string      `json:"detail,omitempty"`
}

// respondError writes err as {"error": {...}}. Internal failures are logged
// and their cause is not exposed.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	if isDeadline(err) {
		err = errTimeout.WithError(err)
	}
	appErr := domain.AsAppError(err)

	body := errorBody{Code: appErr.Code, Message: appErr.Message, Kind: appErr.Kind}
	if appErr.Kind == domain.KindInternal {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", appErr.Code),
			zap.Error(err),
		)
	} else if appErr.Err != nil {
		body.Detail = appErr.Err.Error()
	}

	httpStatus := appErr.StatusCode
	if httpStatus == 0 {
		httpStatus = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(httpStatus, gin.H{"error": body})
}
