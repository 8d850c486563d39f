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

type reconciliationRepo struct {
	db *gorm.DB
}

func (r *reconciliationRepo) SaveReport(ctx context.Context, report types.ReconciliationReport) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header := model.ReconReportModel{
			AccountID:       report.AccountID,
			CycleID:         report.CycleID,
			Cursor:          report.Cursor,
			Stale:           boolToInt(report.Stale),
			GeneratedAtUnix: report.GeneratedAt.Unix(),
		}
		if err := tx.Create(&header).Error; err != nil {
			return err
		}
		for i, rec := range report.Records {
			row := recordToModel(rec, i)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *reconciliationRepo) LatestReport(ctx context.Context, accountID string) (types.ReconciliationReport, error) {
	var header model.ReconReportModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("generated_at DESC, id DESC").
		First(&header).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ReconciliationReport{}, store.ErrNotFound
		}
		return types.ReconciliationReport{}, err
	}
	var rows []model.ReconRecordModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND cycle_id = ?", accountID, header.CycleID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return types.ReconciliationReport{}, err
	}
	report := types.ReconciliationReport{
		AccountID:   header.AccountID,
		CycleID:     header.CycleID,
		Cursor:      header.Cursor,
		Stale:       header.Stale != 0,
		GeneratedAt: time.Unix(header.GeneratedAtUnix, 0).UTC(),
		Records:     make([]types.ReconciliationRecord, 0, len(rows)),
	}
	for _, row := range rows {
		report.Records = append(report.Records, modelToRecord(row))
	}
	return report, nil
}

func (r *reconciliationRepo) MarkResolved(ctx context.Context, accountID, symbol string, at time.Time) error {
	unix := at.Unix()
	return r.db.WithContext(ctx).
		Model(&model.ReconRecordModel{}).
		Where("account_id = ? AND symbol = ? AND resolved_at IS NULL AND classification <> ?",
			accountID, symbol, string(types.Matched)).
		Update("resolved_at", unix).Error
}

func (r *reconciliationRepo) Cursor(ctx context.Context, accountID string) (string, error) {
	var header model.ReconReportModel
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND stale = 0", accountID).
		Order("generated_at DESC, id DESC").
		First(&header).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return header.Cursor, nil
}
