// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vre-charite/service-approval/internal/models"
)

// ListRequestsInput filters the request listing.
type ListRequestsInput struct {
	ProjectGeid string
	Status      models.RequestStatus
	SubmittedBy string
	Page        int
	PageSize    int
}

// RequestRepository defines the interface for copy-request data operations.
type RequestRepository interface {
	// Create persists the request together with its attached entity rows in
	// a single transaction; either all rows persist or none do.
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	List(ctx context.Context, in ListRequestsInput) ([]models.Request, int64, error)
	// MarkComplete transitions the request to complete. The guard and the
	// mutation run in one transaction: any file entity still pending whose
	// geid is not in excludedGeids blocks the transition with a
	// PendingBlockedError and leaves the request untouched.
	MarkComplete(ctx context.Context, id uuid.UUID, reviewNotes, completedBy string, excludedGeids []string) (*models.Request, error)
	// Delete removes the request and cascades to its entity rows.
	Delete(ctx context.Context, id uuid.UUID) error
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, request *models.Request) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *requestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	var request models.Request
	err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) List(ctx context.Context, in ListRequestsInput) ([]models.Request, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Request{}).
		Where("project_geid = ? AND status = ?", in.ProjectGeid, in.Status)
	if in.SubmittedBy != "" {
		query = query.Where("submitted_by = ?", in.SubmittedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []models.Request
	err := query.
		Order("submitted_at DESC").
		Limit(in.PageSize).
		Offset(in.Page * in.PageSize).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *requestRepository) MarkComplete(ctx context.Context, id uuid.UUID, reviewNotes, completedBy string, excludedGeids []string) (*models.Request, error) {
	var request models.Request
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&request, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", id)
			}
			return err
		}
		if request.Status != models.RequestStatusPending {
			return models.NewValidationError("invalid status")
		}

		blocking := tx.Model(&models.Entity{}).
			Where("request_id = ? AND entity_type = ? AND review_status = ?",
				id, models.EntityTypeFile, models.ReviewStatusPending)
		if len(excludedGeids) > 0 {
			blocking = blocking.Where("entity_geid NOT IN ?", excludedGeids)
		}
		var pendingGeids []string
		if err := blocking.Pluck("entity_geid", &pendingGeids).Error; err != nil {
			return err
		}
		if len(pendingGeids) > 0 {
			return &models.PendingBlockedError{Geids: pendingGeids}
		}

		now := time.Now().UTC()
		request.Status = models.RequestStatusComplete
		request.ReviewNotes = reviewNotes
		request.CompletedBy = completedBy
		request.CompletedAt = &now
		return tx.Model(&request).Updates(map[string]any{
			"status":       request.Status,
			"review_notes": request.ReviewNotes,
			"completed_by": request.CompletedBy,
			"completed_at": request.CompletedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.Request
		if err := tx.First(&request, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Request", id)
			}
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&models.Entity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&request).Error
	})
}
