package serverutils

import (
	"errors"
	"math"
	"strconv"

	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware renders errors returned by downstream handlers.
// Only apperror messages reach the client; everything else becomes a
// generic 500 and is logged with full detail.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err, log)
	}
}

func WriteError(ctx *fiber.Ctx, err error, log logger.ILogger) error {
	if appErr, ok := apperror.As(err); ok {
		status := statusFor(appErr.Kind)
		if appErr.Kind == apperror.KindRateLimited {
			ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(appErr)))
		}
		if appErr.Cause != nil {
			log.Warn("http", appErr.Message, map[string]interface{}{
				"path":  ctx.Path(),
				"kind":  string(appErr.Kind),
				"error": appErr.Cause,
			})
		}
		return ctx.Status(status).JSON(ErrorResponse(status, appErr.Message, string(appErr.Kind)))
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message, "http"))
	}

	log.Error("http", "unhandled error", map[string]interface{}{
		"path":  ctx.Path(),
		"error": err,
	})
	return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error", "internal"))
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return fiber.StatusBadRequest
	case apperror.KindNotFound:
		return fiber.StatusNotFound
	case apperror.KindConflict:
		return fiber.StatusConflict
	case apperror.KindRateLimited:
		return fiber.StatusTooManyRequests
	case apperror.KindUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func retryAfterSeconds(appErr *apperror.Error) int {
	secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
