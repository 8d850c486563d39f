package sqlite

import (
	"context"
	"errors"

	"vigil/internal/store"
	"vigil/internal/store/model"
	"vigil/internal/types"

	"gorm.io/gorm"
)

type snapshotRepo struct {
	db *gorm.DB
}

func (r *snapshotRepo) Append(ctx context.Context, snap types.MarginSnapshot) error {
	row := snapshotToModel(snap)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *snapshotRepo) Latest(ctx context.Context, accountID string) (types.MarginSnapshot, error) {
	var row model.MarginSnapshotModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC, id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.MarginSnapshot{}, store.ErrNotFound
		}
		return types.MarginSnapshot{}, err
	}
	return modelToSnapshot(row), nil
}

func (r *snapshotRepo) History(ctx context.Context, accountID string, limit int) ([]types.MarginSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.MarginSnapshotModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.MarginSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, modelToSnapshot(row))
	}
	return out, nil
}
