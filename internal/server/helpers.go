// Package server contains the HTTP handlers for the approval service API.
package server

import (
	"errors"
	"log/slog"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/vre-charite/service-approval/internal/middleware"
	"github.com/vre-charite/service-approval/internal/models"
)

// apiResponse is the envelope every endpoint returns. The field set is kept
// wire-compatible with the service's existing clients.
type apiResponse struct {
	Code       int    `json:"code"`
	ErrorMsg   string `json:"error_msg"`
	Page       int    `json:"page"`
	Total      int64  `json:"total"`
	NumOfPages int    `json:"num_of_pages"`
	Result     any    `json:"result"`
}

// respond writes a non-paginated success envelope.
func respond(c *fiber.Ctx, result any) error {
	return c.Status(fiber.StatusOK).JSON(apiResponse{
		Code:       fiber.StatusOK,
		Page:       0,
		Total:      1,
		NumOfPages: 1,
		Result:     result,
	})
}

// respondPage writes a paginated success envelope.
func respondPage(c *fiber.Ctx, result any, page, pageSize int, total int64) error {
	numOfPages := 0
	if pageSize > 0 {
		numOfPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return c.Status(fiber.StatusOK).JSON(apiResponse{
		Code:       fiber.StatusOK,
		Page:       page,
		Total:      total,
		NumOfPages: numOfPages,
		Result:     result,
	})
}

// respondError maps the service error taxonomy onto HTTP statuses and the
// response envelope. Upstream bodies stay in the logs; clients only see the
// taxonomy message.
func respondError(c *fiber.Ctx, err error) error {
	var blocked *models.PendingBlockedError
	if errors.As(err, &blocked) {
		return c.Status(fiber.StatusBadRequest).JSON(apiResponse{
			Code:     fiber.StatusBadRequest,
			ErrorMsg: blocked.Error(),
			Result: fiber.Map{
				"status":           models.RequestStatusPending,
				"pending_entities": blocked.Geids,
				"pending_count":    len(blocked.Geids),
			},
		})
	}

	status := fiber.StatusInternalServerError
	message := "Internal server error"

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		switch appErr.Code {
		case "NOT_FOUND":
			status = fiber.StatusNotFound
		case "VALIDATION_ERROR":
			status = fiber.StatusBadRequest
		case "UPSTREAM_ERROR", "INTERNAL_ERROR":
			status = fiber.StatusInternalServerError
			middleware.Logger.ErrorContext(c.UserContext(), "request error",
				slog.String("code", appErr.Code),
				slog.String("error", appErr.Error()),
			)
		}
	} else {
		middleware.Logger.ErrorContext(c.UserContext(), "unhandled request error",
			slog.String("error", err.Error()),
		)
	}

	return c.Status(status).JSON(apiResponse{
		Code:     status,
		ErrorMsg: message,
	})
}

// parsePage extracts page/page_size query parameters with sane bounds.
func parsePage(c *fiber.Ctx) (page, pageSize int) {
	page = c.QueryInt("page", 0)
	if page < 0 {
		page = 0
	}
	pageSize = c.QueryInt("page_size", 25)
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
