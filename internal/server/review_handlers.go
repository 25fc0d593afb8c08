package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vre-charite/service-approval/internal/models"
	"github.com/vre-charite/service-approval/internal/pipeline"
	"github.com/vre-charite/service-approval/internal/service"
)

type reviewFilesBody struct {
	RequestID    string   `json:"request_id"`
	EntityGeids  []string `json:"entity_geids"`
	ReviewStatus string   `json:"review_status"`
	Username     string   `json:"username"`
	SessionID    string   `json:"session_id"`
}

// callerCredentials lifts the caller's auth headers so they can be
// forwarded to the pipeline trigger.
func callerCredentials(c *fiber.Ctx) pipeline.Credentials {
	return pipeline.Credentials{
		Authorization: strings.TrimPrefix(c.Get("Authorization"), "Bearer "),
		RefreshToken:  c.Get("Refresh-Token"),
	}
}

// ReviewAllFiles handles PUT /v1/request/copy/:project_geid/files. It
// transitions every pending file and, on approval, forwards the request's
// top-level entities to the copy pipeline.
func (s *Server) ReviewAllFiles(c *fiber.Ctx) error {
	var body reviewFilesBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("invalid request body"))
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}

	outcome, err := s.reviewService.ReviewAll(c.UserContext(), service.ReviewInput{
		RequestID:   requestID,
		ProjectGeid: c.Params("project_geid"),
		Status:      models.ReviewStatus(body.ReviewStatus),
		Username:    body.Username,
		SessionID:   body.SessionID,
		Auth:        callerCredentials(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, outcome)
}

// ReviewFiles handles PATCH /v1/request/copy/:project_geid/files. It
// transitions the pending file closure of the selected geids and, on
// approval, forwards exactly the selected geids to the copy pipeline.
func (s *Server) ReviewFiles(c *fiber.Ctx) error {
	var body reviewFilesBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("invalid request body"))
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}

	outcome, err := s.reviewService.ReviewSubset(c.UserContext(), service.ReviewInput{
		RequestID:   requestID,
		ProjectGeid: c.Params("project_geid"),
		EntityGeids: body.EntityGeids,
		Status:      models.ReviewStatus(body.ReviewStatus),
		Username:    body.Username,
		SessionID:   body.SessionID,
		Auth:        callerCredentials(c),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, outcome)
}

type completeRequestBody struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	ReviewNotes string `json:"review_notes"`
	Username    string `json:"username"`
}

// CompleteRequest handles PUT /v1/request/copy/:project_geid. Completion is
// rejected while non-archived pending files remain.
func (s *Server) CompleteRequest(c *fiber.Ctx) error {
	var body completeRequestBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("invalid request body"))
	}
	requestID, err := uuid.Parse(body.RequestID)
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}

	completed, err := s.completionService.Complete(c.UserContext(), service.CompleteInput{
		RequestID:   requestID,
		ProjectGeid: c.Params("project_geid"),
		Status:      body.Status,
		ReviewNotes: body.ReviewNotes,
		Username:    body.Username,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{
		"status":           completed.Status,
		"pending_entities": []string{},
		"pending_count":    0,
	})
}

// GetPending handles GET /v1/request/copy/:project_geid/pending-files.
func (s *Server) GetPending(c *fiber.Ctx) error {
	requestID, err := uuid.Parse(c.Query("request_id"))
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}

	pending, err := s.completionService.PendingSummary(c.UserContext(), requestID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.Map{
		"pending_entities": pending,
		"pending_count":    len(pending),
	})
}
