package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vre-charite/service-approval/internal/models"
	"github.com/vre-charite/service-approval/internal/pipeline"
	"github.com/vre-charite/service-approval/internal/repository"
)

// ReviewService applies review-status transitions and forwards approvals to
// the copy pipeline.
type ReviewService struct {
	requests   repository.RequestRepository
	entities   repository.EntityRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewReviewService creates a ReviewService.
func NewReviewService(
	requests repository.RequestRepository,
	entities repository.EntityRepository,
	dispatcher Dispatcher,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		requests:   requests,
		entities:   entities,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ReviewInput describes one bulk review action.
type ReviewInput struct {
	RequestID   uuid.UUID
	ProjectGeid string
	// EntityGeids is ignored by ReviewAll and required by ReviewSubset.
	EntityGeids []string
	Status      models.ReviewStatus
	Username    string
	SessionID   string
	Auth        pipeline.Credentials
}

// ReviewOutcome reports what a transition changed: Updated rows plus the
// counts of files that were already decided before the call.
type ReviewOutcome struct {
	Approved int64 `json:"approved"`
	Denied   int64 `json:"denied"`
	Updated  int64 `json:"updated"`
}

// ReviewAll transitions every pending file of the request. On approval the
// request's structural top level is forwarded to the copy pipeline; a
// dispatch failure surfaces upstream but the committed review statuses
// stand.
func (s *ReviewService) ReviewAll(ctx context.Context, in ReviewInput) (*ReviewOutcome, error) {
	if !models.ValidReviewTarget(in.Status) {
		return nil, models.NewValidationError("invalid review status")
	}
	request, err := s.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	approved, denied, err := s.entities.Counts(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	updated, err := s.entities.TransitionAll(ctx, in.RequestID, in.Status, in.Username)
	if err != nil {
		return nil, err
	}
	outcome := &ReviewOutcome{Approved: approved, Denied: denied, Updated: updated}

	if in.Status == models.ReviewStatusApproved {
		topLevel, err := s.entities.TopLevelGeids(ctx, in.RequestID)
		if err != nil {
			return nil, err
		}
		if err := s.dispatch(ctx, request, in, topLevel); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// ReviewSubset transitions the pending file closure of the caller-selected
// geids. On approval the pipeline receives exactly the caller-supplied ids,
// not the derived closure and not the structural top level.
func (s *ReviewService) ReviewSubset(ctx context.Context, in ReviewInput) (*ReviewOutcome, error) {
	if !models.ValidReviewTarget(in.Status) {
		return nil, models.NewValidationError("invalid review status")
	}
	if len(in.EntityGeids) == 0 {
		return nil, models.NewValidationError("entity_geids is required")
	}
	request, err := s.requests.GetByID(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}

	approved, denied, err := s.entities.Counts(ctx, in.RequestID)
	if err != nil {
		return nil, err
	}
	updated, err := s.entities.TransitionSubset(ctx, in.RequestID, in.EntityGeids, in.Status, in.Username)
	if err != nil {
		return nil, err
	}
	outcome := &ReviewOutcome{Approved: approved, Denied: denied, Updated: updated}

	if in.Status == models.ReviewStatusApproved {
		if err := s.dispatch(ctx, request, in, in.EntityGeids); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// dispatch invokes the copy trigger once for the candidate set; an empty
// set is a no-op.
func (s *ReviewService) dispatch(ctx context.Context, request *models.Request, in ReviewInput, targetGeids []string) error {
	if len(targetGeids) == 0 {
		return nil
	}
	s.logger.InfoContext(ctx, "triggering copy pipeline",
		slog.String("request_id", request.ID.String()),
		slog.Int("targets", len(targetGeids)),
	)
	accepted, err := s.dispatcher.SubmitCopy(ctx, pipeline.SubmitCopyInput{
		RequestID:       request.ID.String(),
		ProjectGeid:     request.ProjectGeid,
		SourceGeid:      request.SourceGeid,
		DestinationGeid: request.DestinationGeid,
		TargetGeids:     targetGeids,
		Operator:        in.Username,
		SessionID:       in.SessionID,
		Auth:            in.Auth,
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "copy pipeline accepted targets",
		slog.String("request_id", request.ID.String()),
		slog.Int("accepted", len(accepted)),
	)
	return nil
}
