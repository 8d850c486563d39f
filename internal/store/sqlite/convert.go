package sqlite

import (
	"encoding/json"
	"math"
	"time"

	"vigil/internal/store/model"
	"vigil/internal/types"

	"gorm.io/datatypes"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}

func timePtr(u *int64) *time.Time {
	if u == nil {
		return nil
	}
	t := time.Unix(*u, 0).UTC()
	return &t
}

func positionToModel(p *types.InternalPosition) *model.PositionModel {
	ids, _ := json.Marshal(p.VenueOrderIDs)
	now := time.Now().Unix()
	return &model.PositionModel{
		ID:              p.ID,
		AccountID:       p.AccountID,
		StrategyID:      p.StrategyID,
		Symbol:          p.Symbol,
		Class:           string(p.Class),
		Side:            string(p.Side),
		Quantity:        p.Quantity,
		EntryPrice:      p.EntryPrice,
		VenueOrderIDs:   datatypes.JSON(ids),
		OpenedAtUnix:    p.OpenedAt.Unix(),
		Status:          string(p.Status),
		MarginRequired:  p.MarginRequired,
		NeedsAttention:  boolToInt(p.NeedsAttention),
		AttentionReason: string(p.AttentionReason),
		CloseRequested:  boolToInt(p.CloseRequested),
		CreatedAtUnix:   now,
		UpdatedAtUnix:   now,
	}
}

func modelToPosition(m model.PositionModel) types.InternalPosition {
	var ids []string
	if len(m.VenueOrderIDs) > 0 {
		_ = json.Unmarshal(m.VenueOrderIDs, &ids)
	}
	return types.InternalPosition{
		ID:              m.ID,
		AccountID:       m.AccountID,
		StrategyID:      m.StrategyID,
		Symbol:          m.Symbol,
		Class:           types.InstrumentClass(m.Class),
		Side:            types.Side(m.Side),
		Quantity:        m.Quantity,
		EntryPrice:      m.EntryPrice,
		VenueOrderIDs:   ids,
		OpenedAt:        time.Unix(m.OpenedAtUnix, 0).UTC(),
		Status:          types.PositionStatus(m.Status),
		MarginRequired:  m.MarginRequired,
		NeedsAttention:  m.NeedsAttention != 0,
		AttentionReason: types.Classification(m.AttentionReason),
		CloseRequested:  m.CloseRequested != 0,
	}
}

func recordToModel(rec types.ReconciliationRecord, seq int) model.ReconRecordModel {
	return model.ReconRecordModel{
		ID:                 rec.ID,
		AccountID:          rec.AccountID,
		CycleID:            rec.CycleID,
		Seq:                seq,
		InternalPositionID: rec.InternalPositionID,
		StrategyID:         rec.StrategyID,
		VenueOrderID:       rec.VenueOrderID,
		Symbol:             rec.Symbol,
		Classification:     string(rec.Classification),
		Magnitude:          rec.Magnitude,
		DetectedAtUnix:     rec.DetectedAt.Unix(),
		ResolvedAtUnix:     unixPtr(rec.ResolvedAt),
	}
}

func modelToRecord(m model.ReconRecordModel) types.ReconciliationRecord {
	return types.ReconciliationRecord{
		ID:                 m.ID,
		AccountID:          m.AccountID,
		CycleID:            m.CycleID,
		InternalPositionID: m.InternalPositionID,
		StrategyID:         m.StrategyID,
		VenueOrderID:       m.VenueOrderID,
		Symbol:             m.Symbol,
		Classification:     types.Classification(m.Classification),
		Magnitude:          m.Magnitude,
		DetectedAt:         time.Unix(m.DetectedAtUnix, 0).UTC(),
		ResolvedAt:         timePtr(m.ResolvedAtUnix),
	}
}

// usage_pct is +Inf when equity <= 0; sqlite has no Inf so it round-trips
// through -1.
func usageToColumn(usage float64) float64 {
	if math.IsInf(usage, 1) || math.IsNaN(usage) {
		return -1
	}
	return usage
}

func usageFromColumn(col float64) float64 {
	if col < 0 {
		return math.Inf(1)
	}
	return col
}

func snapshotToModel(s types.MarginSnapshot) model.MarginSnapshotModel {
	positions, _ := json.Marshal(s.Positions)
	return model.MarginSnapshotModel{
		AccountID:       s.AccountID,
		CycleID:         s.CycleID,
		TimestampUnix:   s.Timestamp.UnixMilli(),
		Equity:          s.Equity,
		MarginUsed:      s.MarginUsed,
		MarginAvailable: s.MarginAvailable,
		UsagePct:        usageToColumn(s.UsagePct),
		Leverage:        s.Leverage,
		PositionCount:   s.PositionCount,
		Zone:            string(s.Zone),
		Degraded:        boolToInt(s.Degraded),
		Positions:       datatypes.JSON(positions),
	}
}

func modelToSnapshot(m model.MarginSnapshotModel) types.MarginSnapshot {
	var positions []types.PositionMargin
	if len(m.Positions) > 0 {
		_ = json.Unmarshal(m.Positions, &positions)
	}
	return types.MarginSnapshot{
		AccountID:       m.AccountID,
		CycleID:         m.CycleID,
		Timestamp:       time.UnixMilli(m.TimestampUnix).UTC(),
		Equity:          m.Equity,
		MarginUsed:      m.MarginUsed,
		MarginAvailable: m.MarginAvailable,
		UsagePct:        usageFromColumn(m.UsagePct),
		Leverage:        m.Leverage,
		PositionCount:   m.PositionCount,
		Zone:            types.Zone(m.Zone),
		Degraded:        m.Degraded != 0,
		Positions:       positions,
	}
}

func alertToModel(a types.MarginAlert) model.MarginAlertModel {
	return model.MarginAlertModel{
		ID:            a.ID,
		AccountID:     a.AccountID,
		Level:         string(a.Level),
		Message:       a.Message,
		CreatedAtUnix: a.CreatedAt.Unix(),
		Acknowledged:  boolToInt(a.Acknowledged),
	}
}

func modelToAlert(m model.MarginAlertModel) types.MarginAlert {
	return types.MarginAlert{
		ID:           m.ID,
		AccountID:    m.AccountID,
		Level:        types.AlertLevel(m.Level),
		Message:      m.Message,
		CreatedAt:    time.Unix(m.CreatedAtUnix, 0).UTC(),
		Acknowledged: m.Acknowledged != 0,
	}
}

func actionToModel(a types.LiquidationAction) model.LiquidationActionModel {
	return model.LiquidationActionModel{
		ID:              a.ID,
		AccountID:       a.AccountID,
		PositionID:      a.PositionID,
		StrategyID:      a.StrategyID,
		Kind:            string(a.Kind),
		Fraction:        a.Fraction,
		Reason:          a.Reason,
		IssuedAtUnix:    a.IssuedAt.Unix(),
		CompletedAtUnix: unixPtr(a.CompletedAt),
		Outcome:         string(a.Outcome),
		Attempts:        a.Attempts,
	}
}

func modelToAction(m model.LiquidationActionModel) types.LiquidationAction {
	return types.LiquidationAction{
		ID:          m.ID,
		AccountID:   m.AccountID,
		PositionID:  m.PositionID,
		StrategyID:  m.StrategyID,
		Kind:        types.ActionKind(m.Kind),
		Fraction:    m.Fraction,
		Reason:      m.Reason,
		IssuedAt:    time.Unix(m.IssuedAtUnix, 0).UTC(),
		CompletedAt: timePtr(m.CompletedAtUnix),
		Outcome:     types.ActionOutcome(m.Outcome),
		Attempts:    m.Attempts,
	}
}

func cooldownToModel(c types.CooldownState) model.CooldownStateModel {
	return model.CooldownStateModel{
		AccountID:          c.AccountID,
		State:              string(c.State),
		UntilUnix:          c.Until.Unix(),
		LastActionUsagePct: c.LastActionUsagePct,
		UpdatedAtUnix:      c.UpdatedAt.Unix(),
	}
}

func modelToCooldown(m model.CooldownStateModel) types.CooldownState {
	return types.CooldownState{
		AccountID:          m.AccountID,
		State:              types.CoordinatorState(m.State),
		Until:              time.Unix(m.UntilUnix, 0).UTC(),
		LastActionUsagePct: m.LastActionUsagePct,
		UpdatedAt:          time.Unix(m.UpdatedAtUnix, 0).UTC(),
	}
}
