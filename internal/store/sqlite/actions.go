package sqlite

import (
	"context"
	"errors"
	"time"

	"vigil/internal/store"
	"vigil/internal/store/model"
	"vigil/internal/types"

	"gorm.io/gorm"
)

type actionRepo struct {
	db *gorm.DB
}

func (r *actionRepo) Append(ctx context.Context, action types.LiquidationAction) error {
	row := actionToModel(action)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *actionRepo) Update(ctx context.Context, action types.LiquidationAction) error {
	res := r.db.WithContext(ctx).
		Model(&model.LiquidationActionModel{}).
		Where("id = ?", action.ID).
		Updates(map[string]any{
			"outcome":      string(action.Outcome),
			"attempts":     action.Attempts,
			"completed_at": unixPtr(action.CompletedAt),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *actionRepo) Pending(ctx context.Context, accountID string) ([]types.LiquidationAction, error) {
	var rows []model.LiquidationActionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND outcome IN ?", accountID,
			[]string{string(types.OutcomePending), string(types.OutcomeFailed)}).
		Order("issued_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.LiquidationAction, 0, len(rows))
	for _, row := range rows {
		out = append(out, modelToAction(row))
	}
	return out, nil
}

func (r *actionRepo) History(ctx context.Context, accountID string, limit int) ([]types.LiquidationAction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []model.LiquidationActionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("issued_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.LiquidationAction, 0, len(rows))
	for _, row := range rows {
		out = append(out, modelToAction(row))
	}
	return out, nil
}

type alertRepo struct {
	db *gorm.DB
}

func (r *alertRepo) Append(ctx context.Context, alert types.MarginAlert) error {
	row := alertToModel(alert)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *alertRepo) Acknowledge(ctx context.Context, alertID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.MarginAlertModel{}).
		Where("id = ?", alertID).
		Update("acknowledged", 1)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *alertRepo) Recent(ctx context.Context, accountID string, limit int) ([]types.MarginAlert, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.MarginAlertModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.MarginAlert, 0, len(rows))
	for _, row := range rows {
		out = append(out, modelToAlert(row))
	}
	return out, nil
}

type cooldownRepo struct {
	db *gorm.DB
}

func (r *cooldownRepo) Get(ctx context.Context, accountID string) (types.CooldownState, bool, error) {
	var row model.CooldownStateModel
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.CooldownState{}, false, nil
		}
		return types.CooldownState{}, false, err
	}
	return modelToCooldown(row), true, nil
}

func (r *cooldownRepo) Save(ctx context.Context, state types.CooldownState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	row := cooldownToModel(state)
	return r.db.WithContext(ctx).Save(&row).Error
}
