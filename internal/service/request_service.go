package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vre-charite/service-approval/internal/metadata"
	"github.com/vre-charite/service-approval/internal/models"
	"github.com/vre-charite/service-approval/internal/notifications"
	"github.com/vre-charite/service-approval/internal/repository"
)

// RequestService handles request submission, listing and deletion.
type RequestService struct {
	requests repository.RequestRepository
	entities repository.EntityRepository
	tree     TreeExpander
	source   metadata.Source
	notifier Notifier
	logger   *slog.Logger
}

// NewRequestService creates a RequestService.
func NewRequestService(
	requests repository.RequestRepository,
	entities repository.EntityRepository,
	tree TreeExpander,
	source metadata.Source,
	notifier Notifier,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		entities: entities,
		tree:     tree,
		source:   source,
		notifier: notifier,
		logger:   logger,
	}
}

// SubmitInput is the payload for creating a copy request.
type SubmitInput struct {
	ProjectGeid     string
	EntityGeids     []string
	DestinationGeid string
	SourceGeid      string
	Note            string
	SubmittedBy     string
}

// Submit creates a request: the selection is expanded to its full entity
// tree first, then the request and every entity row persist in a single
// transaction. Expansion failures abort the submission with nothing
// persisted. Project admins are notified after the commit.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (*models.Request, error) {
	if in.Note == "" {
		return nil, models.NewValidationError("Note is required")
	}
	if len(in.EntityGeids) == 0 {
		return nil, models.NewValidationError("entity_geids is required")
	}
	if in.SubmittedBy == "" {
		return nil, models.NewValidationError("submitted_by is required")
	}

	destination, err := s.source.GetNode(ctx, in.DestinationGeid)
	if err != nil {
		return nil, err
	}
	source, err := s.source.GetNode(ctx, in.SourceGeid)
	if err != nil {
		return nil, err
	}

	descriptors, err := s.tree.Expand(ctx, in.EntityGeids)
	if err != nil {
		return nil, err
	}

	request := &models.Request{
		Status:          models.RequestStatusPending,
		SubmittedBy:     in.SubmittedBy,
		DestinationGeid: in.DestinationGeid,
		SourceGeid:      in.SourceGeid,
		Note:            in.Note,
		ProjectGeid:     in.ProjectGeid,
		DestinationPath: destination.DisplayPath,
		SourcePath:      source.DisplayPath,
		Entities:        repository.EntityRowsFromDescriptors(descriptors),
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "copy request created",
		slog.String("request_id", request.ID.String()),
		slog.String("project_geid", in.ProjectGeid),
		slog.Int("entities", len(request.Entities)),
	)

	s.notifier.NotifySubmitted(ctx, notifications.SubmittedNotice{
		SubmittedBy: in.SubmittedBy,
		ProjectGeid: in.ProjectGeid,
		SubmittedAt: request.SubmittedAt.Format(noticeTimeFormat),
	})
	return request, nil
}

// List returns one page of requests for a project, filtered by status and
// optionally by submitter.
func (s *RequestService) List(ctx context.Context, in repository.ListRequestsInput) ([]models.Request, int64, error) {
	if in.Status != models.RequestStatusPending && in.Status != models.RequestStatusComplete {
		return nil, 0, models.NewValidationError("invalid status")
	}
	return s.requests.List(ctx, in)
}

// ListEntitiesInput filters the entity listing of one request.
type ListEntitiesInput struct {
	RequestID  uuid.UUID
	ParentGeid *string
	Filters    map[string]string
	Partial    []string
	OrderBy    string
	OrderType  string
	Page       int
	PageSize   int
}

// ListEntities returns one page of a request's entities plus, when a parent
// is given, the breadcrumb chain from that parent to the top level.
func (s *RequestService) ListEntities(ctx context.Context, in ListEntitiesInput) ([]models.Entity, []models.Entity, int64, error) {
	orderBy := in.OrderBy
	if orderBy == "" {
		orderBy = "uploaded_at"
	}
	if !models.EntityColumns[orderBy] {
		return nil, nil, 0, models.NewValidationError("invalid order_by column")
	}
	if in.OrderType != "" && in.OrderType != "asc" && in.OrderType != "desc" {
		return nil, nil, 0, models.NewValidationError("invalid order_type")
	}

	partial := make(map[string]bool, len(in.Partial))
	for _, column := range in.Partial {
		partial[column] = true
	}
	exact := make(map[string]string)
	fuzzy := make(map[string]string)
	for column, value := range in.Filters {
		if !models.EntityColumns[column] {
			return nil, nil, 0, models.NewValidationError("invalid filter column: " + column)
		}
		if partial[column] {
			fuzzy[column] = value
		} else {
			exact[column] = value
		}
	}

	entities, total, err := s.entities.List(ctx, repository.ListEntitiesInput{
		RequestID:  in.RequestID,
		ParentGeid: in.ParentGeid,
		Filters:    exact,
		Partial:    fuzzy,
		OrderBy:    orderBy,
		OrderType:  in.OrderType,
		Page:       in.Page,
		PageSize:   in.PageSize,
	})
	if err != nil {
		return nil, nil, 0, err
	}

	var routing []models.Entity
	if in.ParentGeid != nil {
		routing, err = s.entities.Routing(ctx, in.RequestID, *in.ParentGeid)
		if err != nil {
			return nil, nil, 0, err
		}
	}
	return entities, routing, total, nil
}

// Delete removes a request and all of its entity rows.
func (s *RequestService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.requests.Delete(ctx, id)
}
