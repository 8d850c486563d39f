package model

import (
	"gorm.io/datatypes"
)

type PositionModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	AccountID      string         `gorm:"column:account_id;index:idx_positions_account"`
	StrategyID     string         `gorm:"column:strategy_id;index"`
	Symbol         string         `gorm:"column:symbol;index"`
	Class          string         `gorm:"column:class"`
	Side           string         `gorm:"column:side"`
	Quantity       float64        `gorm:"column:quantity"`
	EntryPrice     float64        `gorm:"column:entry_price"`
	VenueOrderIDs  datatypes.JSON `gorm:"column:venue_order_ids;type:TEXT"`
	OpenedAtUnix   int64          `gorm:"column:opened_at"`
	Status         string         `gorm:"column:status;index"`
	MarginRequired float64        `gorm:"column:margin_required"`

	NeedsAttention  int    `gorm:"column:needs_attention"`
	AttentionReason string `gorm:"column:attention_reason"`
	CloseRequested  int    `gorm:"column:close_requested"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type ReconRecordModel struct {
	ID                 string  `gorm:"column:id;primaryKey"`
	AccountID          string  `gorm:"column:account_id;index:idx_recon_account_cycle,priority:1"`
	CycleID            string  `gorm:"column:cycle_id;index:idx_recon_account_cycle,priority:2"`
	Seq                int     `gorm:"column:seq"` // preserves report ordering
	InternalPositionID string  `gorm:"column:internal_position_id;index"`
	StrategyID         string  `gorm:"column:strategy_id"`
	VenueOrderID       string  `gorm:"column:venue_order_id"`
	Symbol             string  `gorm:"column:symbol;index"`
	Classification     string  `gorm:"column:classification"`
	Magnitude          float64 `gorm:"column:magnitude"`
	DetectedAtUnix     int64   `gorm:"column:detected_at"`
	ResolvedAtUnix     *int64  `gorm:"column:resolved_at"`
}

func (ReconRecordModel) TableName() string { return "reconciliation_records" }

type ReconReportModel struct {
	ID              int64  `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID       string `gorm:"column:account_id;uniqueIndex:idx_recon_report,priority:1"`
	CycleID         string `gorm:"column:cycle_id;uniqueIndex:idx_recon_report,priority:2"`
	Cursor          string `gorm:"column:cursor"`
	Stale           int    `gorm:"column:stale"`
	GeneratedAtUnix int64  `gorm:"column:generated_at;index"`
}

func (ReconReportModel) TableName() string { return "reconciliation_reports" }

type MarginSnapshotModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID       string         `gorm:"column:account_id;index:idx_snapshots_account_ts,priority:1"`
	CycleID         string         `gorm:"column:cycle_id"`
	TimestampUnix   int64          `gorm:"column:timestamp;index:idx_snapshots_account_ts,priority:2"`
	Equity          float64        `gorm:"column:equity"`
	MarginUsed      float64        `gorm:"column:margin_used"`
	MarginAvailable float64        `gorm:"column:margin_available"`
	UsagePct        float64        `gorm:"column:usage_pct"` // stored as -1 when equity <= 0 (+Inf)
	Leverage        float64        `gorm:"column:leverage"`
	PositionCount   int            `gorm:"column:position_count"`
	Zone            string         `gorm:"column:zone"`
	Degraded        int            `gorm:"column:degraded"`
	Positions       datatypes.JSON `gorm:"column:positions;type:TEXT"`
}

func (MarginSnapshotModel) TableName() string { return "margin_snapshots" }

type MarginAlertModel struct {
	ID            string `gorm:"column:id;primaryKey"`
	AccountID     string `gorm:"column:account_id;index"`
	Level         string `gorm:"column:level"`
	Message       string `gorm:"column:message"`
	CreatedAtUnix int64  `gorm:"column:created_at;index"`
	Acknowledged  int    `gorm:"column:acknowledged"`
}

func (MarginAlertModel) TableName() string { return "margin_alerts" }

type LiquidationActionModel struct {
	ID              string  `gorm:"column:id;primaryKey"`
	AccountID       string  `gorm:"column:account_id;index"`
	PositionID      string  `gorm:"column:position_id;index"`
	StrategyID      string  `gorm:"column:strategy_id"`
	Kind            string  `gorm:"column:kind"`
	Fraction        float64 `gorm:"column:fraction"`
	Reason          string  `gorm:"column:reason"`
	IssuedAtUnix    int64   `gorm:"column:issued_at;index"`
	CompletedAtUnix *int64  `gorm:"column:completed_at"`
	Outcome         string  `gorm:"column:outcome"`
	Attempts        int     `gorm:"column:attempts"`
}

func (LiquidationActionModel) TableName() string { return "liquidation_actions" }

type CooldownStateModel struct {
	AccountID          string  `gorm:"column:account_id;primaryKey"`
	State              string  `gorm:"column:state"`
	UntilUnix          int64   `gorm:"column:until"`
	LastActionUsagePct float64 `gorm:"column:last_action_usage_pct"`
	UpdatedAtUnix      int64   `gorm:"column:updated_at"`
}

func (CooldownStateModel) TableName() string { return "cooldown_states" }
