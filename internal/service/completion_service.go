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

// CompletionService guards the pending → complete transition and serves the
// read-only pending projection.
type CompletionService struct {
	requests repository.RequestRepository
	entities repository.EntityRepository
	source   metadata.Source
	notifier Notifier
	logger   *slog.Logger
}

// NewCompletionService creates a CompletionService.
func NewCompletionService(
	requests repository.RequestRepository,
	entities repository.EntityRepository,
	source metadata.Source,
	notifier Notifier,
	logger *slog.Logger,
) *CompletionService {
	return &CompletionService{
		requests: requests,
		entities: entities,
		source:   source,
		notifier: notifier,
		logger:   logger,
	}
}

// CompleteInput is the payload for closing a request.
type CompleteInput struct {
	RequestID   uuid.UUID
	ProjectGeid string
	Status      string
	ReviewNotes string
	Username    string
}

// Complete moves a request to its terminal state. Files still pending
// review block the transition unless the metadata source reports them as
// archived; a blocked attempt leaves the request untouched and carries the
// blocking geids back to the caller. On success the submitter is notified.
func (s *CompletionService) Complete(ctx context.Context, in CompleteInput) (*models.Request, error) {
	if in.Status != string(models.RequestStatusComplete) {
		return nil, models.NewValidationError("invalid status")
	}

	request, err := s.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	archived, err := s.archivedGeids(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	completed, err := s.requests.MarkComplete(ctx, in.RequestID, in.ReviewNotes, in.Username, archived)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "request completed",
		slog.String("request_id", in.RequestID.String()),
		slog.String("completed_by", in.Username),
	)

	s.notifier.NotifyCompleted(ctx, notifications.CompletedNotice{
		SubmittedBy: request.SubmittedBy,
		CompletedBy: in.Username,
		ProjectGeid: request.ProjectGeid,
		SubmittedAt: request.SubmittedAt.Format(noticeTimeFormat),
		CompletedAt: completed.CompletedAt.Format(noticeTimeFormat),
	})
	return completed, nil
}

// PendingSummary reports the file geids still blocking completion, with the
// same archived exclusion the completion guard applies. It never mutates.
func (s *CompletionService) PendingSummary(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}

	pending, err := s.entities.PendingFileGeids(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return []string{}, nil
	}

	archived, err := s.archivedIn(ctx, pending)
	if err != nil {
		return nil, err
	}
	remaining := make([]string, 0, len(pending))
	for _, geid := range pending {
		if !archived[geid] {
			remaining = append(remaining, geid)
		}
	}
	return remaining, nil
}

// archivedGeids returns the pending file geids the metadata source reports
// as archived; those can no longer block completion.
func (s *CompletionService) archivedGeids(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	pending, err := s.entities.PendingFileGeids(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	archived, err := s.archivedIn(ctx, pending)
	if err != nil {
		return nil, err
	}
	geids := make([]string, 0, len(archived))
	for _, geid := range pending {
		if archived[geid] {
			geids = append(geids, geid)
		}
	}
	return geids, nil
}

func (s *CompletionService) archivedIn(ctx context.Context, geids []string) (map[string]bool, error) {
	nodes, err := s.source.BulkGet(ctx, geids)
	if err != nil {
		return nil, err
	}
	archived := make(map[string]bool)
	for _, node := range nodes {
		if node.Archived {
			archived[node.Geid] = true
		}
	}
	return archived, nil
}
