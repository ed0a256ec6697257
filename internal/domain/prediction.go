package domain

import "time"

// Prediction is a forecast of next-period prices for an (item, region).
// Predictions are derived artifacts: safe to regenerate and overwrite by
// (TypeID, RegionID, TargetDate). Staleness is implicit in CreatedAt —
// stale rows are still served, never silently dropped.
type Prediction struct {
	TypeID             int32
	RegionID           int32
	TargetDate         time.Time
	PredictedBuyPrice  float64
	PredictedSellPrice float64
	ModelVersion       string
	CreatedAt          time.Time
}
