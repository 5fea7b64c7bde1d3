package repositories

import (
	"context"

	"github.com/dmxx/dmxx-server/internal/database/models"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
)

// AuditRepository records permission denials and login attempts.
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit log entry.
func (r *AuditRepository) Record(ctx context.Context, entry models.AuditLogEntry) error {
	entry.ID = cuid.New()
	return r.db.WithContext(ctx).Create(&entry).Error
}
