package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/junjiewwang/classgraph/internal/linker"
	"gorm.io/gorm"
)

// ScanRepository persists and retrieves the linked class graph produced by
// one scan session.
type ScanRepository interface {
	// SaveSnapshot stores the linked graph under sessionUUID.
	SaveSnapshot(ctx context.Context, sessionUUID string, g *linker.Graph) error

	// GetSnapshot retrieves the stored snapshot row for sessionUUID.
	GetSnapshot(ctx context.Context, sessionUUID string) (*ScanSnapshot, error)
}

// GormScanRepository implements ScanRepository using GORM.
type GormScanRepository struct {
	db *gorm.DB
}

// NewGormScanRepository creates a new GormScanRepository.
func NewGormScanRepository(db *gorm.DB) *GormScanRepository {
	return &GormScanRepository{db: db}
}

// SaveSnapshot projects g into a ScanSnapshot row and inserts it.
func (r *GormScanRepository) SaveSnapshot(ctx context.Context, sessionUUID string, g *linker.Graph) error {
	snapshot, err := NewScanSnapshot(sessionUUID, g)
	if err != nil {
		return fmt.Errorf("failed to project scan snapshot: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to save scan snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the stored snapshot row for sessionUUID.
func (r *GormScanRepository) GetSnapshot(ctx context.Context, sessionUUID string) (*ScanSnapshot, error) {
	var snapshot ScanSnapshot

	err := r.db.WithContext(ctx).Where("session_uuid = ?", sessionUUID).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("scan snapshot not found: %s", sessionUUID)
		}
		return nil, fmt.Errorf("failed to get scan snapshot: %w", err)
	}

	return &snapshot, nil
}
