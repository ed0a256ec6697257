package domain

import "time"

// TrendDirection classifies the slope of an item's price over the
// lookback window.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// AnalysisResult is one derived profitability row per (item, region,
// as-of timestamp). Rows are superseded, never deleted: the latest AsOf
// per (TypeID, RegionID) is authoritative, older rows feed trend charts.
//
// ROIPercent and PriceVolumeCorrelation are nil, not zero, when they
// cannot be computed (zero buy price, insufficient history).
type AnalysisResult struct {
	TypeID                 int32
	RegionID               int32
	AsOf                   time.Time
	BuyPrice               float64
	SellPrice              float64
	ProfitPerUnit          float64
	ROIPercent             *float64
	PriceVolumeCorrelation *float64
	ProfitScore            float64
	TrendDirection         TrendDirection
	Volatility             float64
	AvgDailyVolume         float64
}

// Less orders results for ranking: descending profit score, ties broken
// by descending ROI, then ascending type id. The ordering is total, so
// ranking a fixed item set is deterministic.
func (r *AnalysisResult) Less(other *AnalysisResult) bool {
	if r.ProfitScore != other.ProfitScore {
		return r.ProfitScore > other.ProfitScore
	}
	ri, oi := roiOrZero(r), roiOrZero(other)
	if ri != oi {
		return ri > oi
	}
	return r.TypeID < other.TypeID
}

func roiOrZero(r *AnalysisResult) float64 {
	if r.ROIPercent == nil {
		return 0
	}
	return *r.ROIPercent
}

// FeeSchedule holds the externally configured trading fee rates applied
// to the sell side. A missing rate is zero.
type FeeSchedule struct {
	BrokerFee float64
	SalesTax  float64
}

// ScoreWeights combines the rank-normalized profit, ROI and volume
// components into the composite profit score. The weights are a business
// policy, configured rather than hardcoded.
type ScoreWeights struct {
	Profit float64
	ROI    float64
	Volume float64
}
