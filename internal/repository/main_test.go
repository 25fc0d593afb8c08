package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vre-charite/service-approval/internal/models"
)

// setupTestDB opens the database named by APPROVAL_TEST_DSN and migrates the
// schema. Repository tests exercise Postgres-specific SQL (ILIKE, row
// locking), so they skip entirely when no database is provided.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("APPROVAL_TEST_DSN")
	if dsn == "" {
		t.Skip("skipping repository tests: no APPROVAL_TEST_DSN provided")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Request{}, &models.Entity{}))

	t.Cleanup(func() {
		db.Exec("TRUNCATE approval_entity, approval_request")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func strPtr(s string) *string { return &s }

// seedRequest persists one request with the standard test tree:
//
//	folder-top/
//	  folder-sub/
//	    file-deep
//	  file-mid
//	file-lone
func seedRequest(t *testing.T, db *gorm.DB) *models.Request {
	t.Helper()

	request := &models.Request{
		Status:          models.RequestStatusPending,
		SubmittedBy:     "researcher",
		DestinationGeid: "dest-geid",
		SourceGeid:      "source-geid",
		Note:            "please review",
		ProjectGeid:     "project-geid",
		Entities: []models.Entity{
			{EntityGeid: "folder-top", EntityType: models.EntityTypeFolder, Name: "raw"},
			{EntityGeid: "folder-sub", EntityType: models.EntityTypeFolder, Name: "sub", ParentGeid: strPtr("folder-top")},
			{EntityGeid: "file-deep", EntityType: models.EntityTypeFile, Name: "deep.dcm",
				ReviewStatus: models.ReviewStatusPending, CopyStatus: "pending", ParentGeid: strPtr("folder-sub")},
			{EntityGeid: "file-mid", EntityType: models.EntityTypeFile, Name: "mid.dcm",
				ReviewStatus: models.ReviewStatusPending, CopyStatus: "pending", ParentGeid: strPtr("folder-top")},
			{EntityGeid: "file-lone", EntityType: models.EntityTypeFile, Name: "lone.txt",
				ReviewStatus: models.ReviewStatusPending, CopyStatus: "pending"},
		},
	}
	require.NoError(t, NewRequestRepository(db).Create(context.Background(), request))
	return request
}

func entityByGeid(t *testing.T, db *gorm.DB, requestID uuid.UUID, geid string) *models.Entity {
	t.Helper()
	var entity models.Entity
	require.NoError(t, db.First(&entity, "request_id = ? AND entity_geid = ?", requestID, geid).Error)
	return &entity
}
