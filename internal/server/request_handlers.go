package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vre-charite/service-approval/internal/models"
	"github.com/vre-charite/service-approval/internal/repository"
	"github.com/vre-charite/service-approval/internal/service"
)

type createRequestBody struct {
	EntityGeids     []string `json:"entity_geids"`
	DestinationGeid string   `json:"destination_geid"`
	SourceGeid      string   `json:"source_geid"`
	Note            string   `json:"note"`
	SubmittedBy     string   `json:"submitted_by"`
}

// CreateRequest handles POST /v1/request/copy/:project_geid.
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var body createRequestBody
	if err := c.BodyParser(&body); err != nil {
		return respondError(c, models.NewValidationError("invalid request body"))
	}

	request, err := s.requestService.Submit(c.UserContext(), service.SubmitInput{
		ProjectGeid:     c.Params("project_geid"),
		EntityGeids:     body.EntityGeids,
		DestinationGeid: body.DestinationGeid,
		SourceGeid:      body.SourceGeid,
		Note:            body.Note,
		SubmittedBy:     body.SubmittedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, request)
}

// ListRequests handles GET /v1/request/copy/:project_geid.
func (s *Server) ListRequests(c *fiber.Ctx) error {
	page, pageSize := parsePage(c)
	requests, total, err := s.requestService.List(c.UserContext(), repository.ListRequestsInput{
		ProjectGeid: c.Params("project_geid"),
		Status:      models.RequestStatus(c.Query("status")),
		SubmittedBy: c.Query("submitted_by"),
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondPage(c, requests, page, pageSize, total)
}

// ListRequestFiles handles GET /v1/request/copy/:project_geid/files.
func (s *Server) ListRequestFiles(c *fiber.Ctx) error {
	requestID, err := uuid.Parse(c.Query("request_id"))
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}

	filters := map[string]string{}
	if raw := c.Query("query", "{}"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			return respondError(c, models.NewValidationError("query json is not valid"))
		}
	}
	partial := []string{}
	if raw := c.Query("partial", "[]"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &partial); err != nil {
			return respondError(c, models.NewValidationError("partial json is not valid"))
		}
	}

	var parentGeid *string
	if parent := c.Query("parent_geid"); parent != "" {
		parentGeid = &parent
	}

	page, pageSize := parsePage(c)
	entities, routing, total, err := s.requestService.ListEntities(c.UserContext(), service.ListEntitiesInput{
		RequestID:  requestID,
		ParentGeid: parentGeid,
		Filters:    filters,
		Partial:    partial,
		OrderBy:    c.Query("order_by", "uploaded_at"),
		OrderType:  c.Query("order_type", "asc"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		return respondError(c, err)
	}
	if routing == nil {
		routing = []models.Entity{}
	}
	return respondPage(c, fiber.Map{
		"data":    entities,
		"routing": routing,
	}, page, pageSize, total)
}

// DeleteRequest handles DELETE /v1/request/copy/:project_geid/delete/:request_id.
func (s *Server) DeleteRequest(c *fiber.Ctx) error {
	requestID, err := uuid.Parse(c.Params("request_id"))
	if err != nil {
		return respondError(c, models.NewValidationError("invalid request_id"))
	}
	if err := s.requestService.Delete(c.UserContext(), requestID); err != nil {
		return respondError(c, err)
	}
	return respond(c, "success")
}
