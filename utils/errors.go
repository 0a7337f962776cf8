package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Kind classifies an AppError and decides its HTTP status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AppError is a client-facing failure with a business code.
// Err carries the underlying cause and is never sent to the client.
type AppError struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %d: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %d: %s", e.Kind, e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func ValidationError(code int, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func AuthenticationError(code int, message string) *AppError {
	return &AppError{Kind: KindAuthentication, Code: code, Message: message}
}

func AuthorizationError(code int, message string) *AppError {
	return &AppError{Kind: KindAuthorization, Code: code, Message: message}
}

func NotFoundError(code int, message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: code, Message: message}
}

func ConflictError(code int, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

// InternalError wraps an unexpected fault. message is what the client sees.
func InternalError(code int, message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: code, Message: message, Err: err}
}

// Abort writes err as an error envelope and stops the handler chain.
// Internal faults are logged with their cause; the client only gets the generic message.
func Abort(ctx *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError(50000, "internal server error", err)
	}

	if appErr.Kind == KindInternal {
		Logger.Error("request failed",
			zap.Int("code", appErr.Code),
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(RequestIDKey)),
			zap.Error(appErr.Err),
		)
		message := appErr.Message
		if message == "" {
			message = "internal server error"
		}
		_ = ctx.Error(appErr)
		Error(ctx, http.StatusInternalServerError, appErr.Code, message)
		ctx.Abort()
		return
	}

	Error(ctx, appErr.Kind.HTTPStatus(), appErr.Code, appErr.Message)
	ctx.Abort()
}
