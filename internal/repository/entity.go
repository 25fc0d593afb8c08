package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vre-charite/service-approval/internal/metadata"
	"github.com/vre-charite/service-approval/internal/models"
)

// ListEntitiesInput filters and orders the entity listing for one request.
// Filter/Partial keys and OrderBy must already be validated against
// models.EntityColumns by the caller.
type ListEntitiesInput struct {
	RequestID uuid.UUID
	// ParentGeid scopes the listing to one folder's direct children; nil
	// lists the request's top level.
	ParentGeid *string
	Filters    map[string]string
	Partial    map[string]string
	OrderBy    string
	OrderType  string
	Page       int
	PageSize   int
}

// EntityRepository is the review ledger: one row per entity-in-request,
// mutated only through bulk review-status transitions.
type EntityRepository interface {
	List(ctx context.Context, in ListEntitiesInput) ([]models.Entity, int64, error)
	// Routing returns the breadcrumb chain from the given entity up to the
	// request's top level, starting at the entity itself.
	Routing(ctx context.Context, requestID uuid.UUID, entityGeid string) ([]models.Entity, error)
	// Counts reports how many file entities already sit in each terminal
	// review status.
	Counts(ctx context.Context, requestID uuid.UUID) (approved, denied int64, err error)
	PendingFileGeids(ctx context.Context, requestID uuid.UUID) ([]string, error)
	// TopLevelGeids lists the geids of entities with no request-local parent.
	TopLevelGeids(ctx context.Context, requestID uuid.UUID) ([]string, error)
	// TransitionAll moves every pending file entity of the request to the
	// given terminal status and returns the number of rows changed.
	TransitionAll(ctx context.Context, requestID uuid.UUID, status models.ReviewStatus, reviewer string) (int64, error)
	// TransitionSubset resolves the given geids to their pending file-level
	// closure (folders are walked through request-local parent links) and
	// applies the same update. Applying it twice updates zero rows the
	// second time since nothing in the closure remains pending.
	TransitionSubset(ctx context.Context, requestID uuid.UUID, geids []string, status models.ReviewStatus, reviewer string) (int64, error)
}

type entityRepository struct {
	db *gorm.DB
}

// NewEntityRepository creates a new entity repository.
func NewEntityRepository(db *gorm.DB) EntityRepository {
	return &entityRepository{db: db}
}

// EntityRowsFromDescriptors maps expanded tree descriptors onto ledger rows.
// Files start their review and copy lifecycle as pending; folders are
// structural and get neither.
func EntityRowsFromDescriptors(descs []metadata.EntityDescriptor) []models.Entity {
	rows := make([]models.Entity, 0, len(descs))
	for _, desc := range descs {
		row := models.Entity{
			EntityGeid: desc.Geid,
			ParentGeid: desc.ParentGeid,
			Name:       desc.Name,
			UploadedBy: desc.Uploader,
			UploadedAt: desc.UploadedAt(),
			DcmID:      desc.DcmID,
		}
		if desc.IsFile() {
			row.EntityType = models.EntityTypeFile
			row.ReviewStatus = models.ReviewStatusPending
			row.CopyStatus = "pending"
			row.FileSize = desc.FileSize
		} else {
			row.EntityType = models.EntityTypeFolder
		}
		rows = append(rows, row)
	}
	return rows
}

func (r *entityRepository) List(ctx context.Context, in ListEntitiesInput) ([]models.Entity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ?", in.RequestID)
	if in.ParentGeid != nil {
		query = query.Where("parent_geid = ?", *in.ParentGeid)
	} else {
		query = query.Where("parent_geid IS NULL")
	}
	for column, value := range in.Filters {
		query = query.Where(fmt.Sprintf("%s = ?", column), value)
	}
	for column, value := range in.Partial {
		query = query.Where(fmt.Sprintf("%s ILIKE ?", column), "%"+value+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderType := "ASC"
	if in.OrderType == "desc" {
		orderType = "DESC"
	}

	var entities []models.Entity
	err := query.
		// Folders sort before files at every level.
		Order("entity_type DESC").
		Order(fmt.Sprintf("%s %s", in.OrderBy, orderType)).
		Limit(in.PageSize).
		Offset(in.Page * in.PageSize).
		Find(&entities).Error
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

func (r *entityRepository) Routing(ctx context.Context, requestID uuid.UUID, entityGeid string) ([]models.Entity, error) {
	var routing []models.Entity
	geid := entityGeid
	for geid != "" {
		var entity models.Entity
		err := r.db.WithContext(ctx).
			First(&entity, "request_id = ? AND entity_geid = ?", requestID, geid).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, models.NewNotFoundError("Entity", geid)
			}
			return nil, err
		}
		routing = append(routing, entity)
		if entity.ParentGeid == nil {
			break
		}
		geid = *entity.ParentGeid
	}
	return routing, nil
}

func (r *entityRepository) Counts(ctx context.Context, requestID uuid.UUID) (int64, int64, error) {
	var approved, denied int64
	err := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ? AND entity_type = ? AND review_status = ?",
			requestID, models.EntityTypeFile, models.ReviewStatusApproved).
		Count(&approved).Error
	if err != nil {
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ? AND entity_type = ? AND review_status = ?",
			requestID, models.EntityTypeFile, models.ReviewStatusDenied).
		Count(&denied).Error
	if err != nil {
		return 0, 0, err
	}
	return approved, denied, nil
}

func (r *entityRepository) PendingFileGeids(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	var geids []string
	err := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ? AND entity_type = ? AND review_status = ?",
			requestID, models.EntityTypeFile, models.ReviewStatusPending).
		Pluck("entity_geid", &geids).Error
	return geids, err
}

func (r *entityRepository) TopLevelGeids(ctx context.Context, requestID uuid.UUID) ([]string, error) {
	var geids []string
	err := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ? AND parent_geid IS NULL", requestID).
		Pluck("entity_geid", &geids).Error
	return geids, err
}

func reviewUpdate(status models.ReviewStatus, reviewer string) map[string]any {
	return map[string]any{
		"review_status": status,
		"reviewed_by":   reviewer,
		"reviewed_at":   time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *entityRepository) TransitionAll(ctx context.Context, requestID uuid.UUID, status models.ReviewStatus, reviewer string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Entity{}).
		Where("request_id = ? AND entity_type = ? AND review_status = ?",
			requestID, models.EntityTypeFile, models.ReviewStatusPending).
		Updates(reviewUpdate(status, reviewer))
	return result.RowsAffected, result.Error
}

func (r *entityRepository) TransitionSubset(ctx context.Context, requestID uuid.UUID, geids []string, status models.ReviewStatus, reviewer string) (int64, error) {
	if len(geids) == 0 {
		return 0, nil
	}

	var updated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fileGeids, err := pendingFileClosure(tx, requestID, geids)
		if err != nil {
			return err
		}
		if len(fileGeids) == 0 {
			return nil
		}
		result := tx.Model(&models.Entity{}).
			Where("request_id = ? AND entity_geid IN ? AND review_status = ?",
				requestID, fileGeids, models.ReviewStatusPending).
			Updates(reviewUpdate(status, reviewer))
		updated = result.RowsAffected
		return result.Error
	})
	return updated, err
}

// pendingFileClosure resolves explicit geids to the pending files they
// denote: files directly, folders through a level-by-level walk of the
// request-local parent links. The walk uses an explicit frontier rather
// than recursion so deep hierarchies stay bounded.
func pendingFileClosure(tx *gorm.DB, requestID uuid.UUID, geids []string) ([]string, error) {
	var selected []models.Entity
	err := tx.Where("request_id = ? AND entity_geid IN ?", requestID, geids).
		Find(&selected).Error
	if err != nil {
		return nil, err
	}

	var fileGeids []string
	var frontier []string
	for _, entity := range selected {
		if entity.EntityType == models.EntityTypeFile {
			if entity.ReviewStatus == models.ReviewStatusPending {
				fileGeids = append(fileGeids, entity.EntityGeid)
			}
		} else {
			frontier = append(frontier, entity.EntityGeid)
		}
	}

	for len(frontier) > 0 {
		var children []models.Entity
		err := tx.Where("request_id = ? AND parent_geid IN ?", requestID, frontier).
			Find(&children).Error
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			if child.EntityType == models.EntityTypeFile {
				if child.ReviewStatus == models.ReviewStatusPending {
					fileGeids = append(fileGeids, child.EntityGeid)
				}
			} else {
				frontier = append(frontier, child.EntityGeid)
			}
		}
	}
	return fileGeids, nil
}
