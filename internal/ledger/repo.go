package ledger

import (
	"context"

	"github.com/luxeledger/inventory-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists ledger blocks. It only inserts and reads.
type Repository interface {
	Persister
	Loader
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, block *models.Block) error {
	return r.db.WithContext(ctx).Create(block).Error
}

func (r *repository) ListAll(ctx context.Context) ([]models.Block, error) {
	var blocks []models.Block
	if err := r.db.WithContext(ctx).
		Order("position ASC").
		Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}

