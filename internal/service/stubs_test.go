package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vre-charite/service-approval/internal/metadata"
	"github.com/vre-charite/service-approval/internal/models"
	"github.com/vre-charite/service-approval/internal/notifications"
	"github.com/vre-charite/service-approval/internal/pipeline"
	"github.com/vre-charite/service-approval/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// requestRepoStub is a stub for repository.RequestRepository.
type requestRepoStub struct {
	createFn       func(context.Context, *models.Request) error
	getByIDFn      func(context.Context, uuid.UUID) (*models.Request, error)
	listFn         func(context.Context, repository.ListRequestsInput) ([]models.Request, int64, error)
	markCompleteFn func(context.Context, uuid.UUID, string, string, []string) (*models.Request, error)
	deleteFn       func(context.Context, uuid.UUID) error
}

func (s *requestRepoStub) Create(ctx context.Context, request *models.Request) error {
	return s.createFn(ctx, request)
}
func (s *requestRepoStub) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	return s.getByIDFn(ctx, id)
}
func (s *requestRepoStub) List(ctx context.Context, in repository.ListRequestsInput) ([]models.Request, int64, error) {
	return s.listFn(ctx, in)
}
func (s *requestRepoStub) MarkComplete(ctx context.Context, id uuid.UUID, reviewNotes, completedBy string, excludedGeids []string) (*models.Request, error) {
	return s.markCompleteFn(ctx, id, reviewNotes, completedBy, excludedGeids)
}
func (s *requestRepoStub) Delete(ctx context.Context, id uuid.UUID) error {
	return s.deleteFn(ctx, id)
}

func noopRequestRepo() *requestRepoStub {
	return &requestRepoStub{
		createFn:  func(_ context.Context, _ *models.Request) error { return nil },
		getByIDFn: func(_ context.Context, id uuid.UUID) (*models.Request, error) { return &models.Request{ID: id}, nil },
		listFn: func(_ context.Context, _ repository.ListRequestsInput) ([]models.Request, int64, error) {
			return nil, 0, nil
		},
		markCompleteFn: func(_ context.Context, id uuid.UUID, _, _ string, _ []string) (*models.Request, error) {
			now := time.Now().UTC()
			return &models.Request{ID: id, Status: models.RequestStatusComplete, CompletedAt: &now}, nil
		},
		deleteFn: func(_ context.Context, _ uuid.UUID) error { return nil },
	}
}

// entityRepoStub is a stub for repository.EntityRepository.
type entityRepoStub struct {
	listFn             func(context.Context, repository.ListEntitiesInput) ([]models.Entity, int64, error)
	routingFn          func(context.Context, uuid.UUID, string) ([]models.Entity, error)
	countsFn           func(context.Context, uuid.UUID) (int64, int64, error)
	pendingFileGeidsFn func(context.Context, uuid.UUID) ([]string, error)
	topLevelGeidsFn    func(context.Context, uuid.UUID) ([]string, error)
	transitionAllFn    func(context.Context, uuid.UUID, models.ReviewStatus, string) (int64, error)
	transitionSubsetFn func(context.Context, uuid.UUID, []string, models.ReviewStatus, string) (int64, error)
}

func (s *entityRepoStub) List(ctx context.Context, in repository.ListEntitiesInput) ([]models.Entity, int64, error) {
	return s.listFn(ctx, in)
}
func (s *entityRepoStub) Routing(ctx context.Context, requestID uuid.UUID, entityGeid string) ([]models.Entity, error) {
	return s.routingFn(ctx, requestID, entityGeid)
}
func (s *entityRepoStub) Counts(ctx context.Context, requestID uuid.UUID) (int64, int64, error) {
	return s.countsFn(ctx, requestID)
}
func (s *entityRepoStub) PendingFileGeids(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	return s.pendingFileGeidsFn(ctx, requestID)
}
func (s *entityRepoStub) TopLevelGeids(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	return s.topLevelGeidsFn(ctx, requestID)
}
func (s *entityRepoStub) TransitionAll(ctx context.Context, requestID uuid.UUID, status models.ReviewStatus, reviewer string) (int64, error) {
	return s.transitionAllFn(ctx, requestID, status, reviewer)
}
func (s *entityRepoStub) TransitionSubset(ctx context.Context, requestID uuid.UUID, geids []string, status models.ReviewStatus, reviewer string) (int64, error) {
	return s.transitionSubsetFn(ctx, requestID, geids, status, reviewer)
}

func noopEntityRepo() *entityRepoStub {
	return &entityRepoStub{
		listFn: func(_ context.Context, _ repository.ListEntitiesInput) ([]models.Entity, int64, error) {
			return nil, 0, nil
		},
		routingFn:          func(_ context.Context, _ uuid.UUID, _ string) ([]models.Entity, error) { return nil, nil },
		countsFn:           func(_ context.Context, _ uuid.UUID) (int64, int64, error) { return 0, 0, nil },
		pendingFileGeidsFn: func(_ context.Context, _ uuid.UUID) ([]string, error) { return nil, nil },
		topLevelGeidsFn:    func(_ context.Context, _ uuid.UUID) ([]string, error) { return nil, nil },
		transitionAllFn: func(_ context.Context, _ uuid.UUID, _ models.ReviewStatus, _ string) (int64, error) {
			return 0, nil
		},
		transitionSubsetFn: func(_ context.Context, _ uuid.UUID, _ []string, _ models.ReviewStatus, _ string) (int64, error) {
			return 0, nil
		},
	}
}

// sourceStub is a stub for metadata.Source.
type sourceStub struct {
	getNodeFn   func(context.Context, string) (*metadata.Node, error)
	bulkGetFn   func(context.Context, []string) ([]metadata.Node, error)
	childrenFn  func(context.Context, string) ([]metadata.Node, error)
	queryNodeFn func(context.Context, string, map[string]any) (*metadata.Node, error)
}

func (s *sourceStub) GetNode(ctx context.Context, geid string) (*metadata.Node, error) {
	return s.getNodeFn(ctx, geid)
}
func (s *sourceStub) BulkGet(ctx context.Context, geids []string) ([]metadata.Node, error) {
	return s.bulkGetFn(ctx, geids)
}
func (s *sourceStub) Children(ctx context.Context, folderGeid string) ([]metadata.Node, error) {
	return s.childrenFn(ctx, folderGeid)
}
func (s *sourceStub) QueryNode(ctx context.Context, label string, query map[string]any) (*metadata.Node, error) {
	return s.queryNodeFn(ctx, label, query)
}

func noopSource() *sourceStub {
	return &sourceStub{
		getNodeFn: func(_ context.Context, geid string) (*metadata.Node, error) {
			return &metadata.Node{Geid: geid}, nil
		},
		bulkGetFn:  func(_ context.Context, _ []string) ([]metadata.Node, error) { return nil, nil },
		childrenFn: func(_ context.Context, _ string) ([]metadata.Node, error) { return nil, nil },
		queryNodeFn: func(_ context.Context, _ string, _ map[string]any) (*metadata.Node, error) {
			return &metadata.Node{}, nil
		},
	}
}

// treeStub is a stub for TreeExpander.
type treeStub struct {
	expandFn func(context.Context, []string) ([]metadata.EntityDescriptor, error)
}

func (s *treeStub) Expand(ctx context.Context, topLevelGeids []string) ([]metadata.EntityDescriptor, error) {
	return s.expandFn(ctx, topLevelGeids)
}

// dispatcherStub is a stub for Dispatcher.
type dispatcherStub struct {
	submitCopyFn func(context.Context, pipeline.SubmitCopyInput) ([]string, error)
}

func (s *dispatcherStub) SubmitCopy(ctx context.Context, in pipeline.SubmitCopyInput) ([]string, error) {
	return s.submitCopyFn(ctx, in)
}

// notifierStub records the notices it receives.
type notifierStub struct {
	submitted []notifications.SubmittedNotice
	completed []notifications.CompletedNotice
}

func (s *notifierStub) NotifySubmitted(_ context.Context, notice notifications.SubmittedNotice) {
	s.submitted = append(s.submitted, notice)
}
func (s *notifierStub) NotifyCompleted(_ context.Context, notice notifications.CompletedNotice) {
	s.completed = append(s.completed, notice)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

// assertNotFoundError asserts that err is an AppError with code NOT_FOUND.
func assertNotFoundError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
