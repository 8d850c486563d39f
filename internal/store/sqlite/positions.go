package sqlite

import (
	"context"
	"errors"
	"time"

	"vigil/internal/store"
	"vigil/internal/store/model"
	"vigil/internal/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type positionRepo struct {
	db *gorm.DB
}

func (r *positionRepo) OpenPositions(ctx context.Context, accountID string) ([]types.InternalPosition, error) {
	var rows []model.PositionModel
	// single transaction so the cycle reads one consistent ledger snapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.
			Where("account_id = ? AND status IN ?", accountID, []string{string(types.PositionOpen), string(types.PositionClosing)}).
			Order("opened_at ASC, id ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]types.InternalPosition, 0, len(rows))
	for _, row := range rows {
		out = append(out, modelToPosition(row))
	}
	return out, nil
}

func (r *positionRepo) MarkNeedsAttention(ctx context.Context, positionID string, reason types.Classification) error {
	return r.updateFlags(ctx, positionID, map[string]any{
		"needs_attention":  1,
		"attention_reason": string(reason),
	})
}

func (r *positionRepo) ClearNeedsAttention(ctx context.Context, positionID string) error {
	return r.updateFlags(ctx, positionID, map[string]any{
		"needs_attention":  0,
		"attention_reason": "",
	})
}

func (r *positionRepo) MarkCloseRequested(ctx context.Context, positionID string) error {
	return r.updateFlags(ctx, positionID, map[string]any{"close_requested": 1})
}

func (r *positionRepo) UpdateMarginCache(ctx context.Context, positionID string, marginRequired float64) error {
	return r.updateFlags(ctx, positionID, map[string]any{"margin_required": marginRequired})
}

func (r *positionRepo) updateFlags(ctx context.Context, positionID string, fields map[string]any) error {
	fields["updated_at"] = time.Now().Unix()
	res := r.db.WithContext(ctx).
		Model(&model.PositionModel{}).
		Where("id = ?", positionID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *positionRepo) Save(ctx context.Context, p *types.InternalPosition) error {
	row := positionToModel(p)
	var existing model.PositionModel
	err := r.db.WithContext(ctx).Where("id = ?", p.ID).First(&existing).Error
	if err == nil {
		row.CreatedAtUnix = existing.CreatedAtUnix
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
}
