package domain

import "time"

// MarketSnapshot is one normalized market observation for an
// (item, region, day bucket). BuyPrice is the best buy order (highest
// bid), SellPrice the best sell order (lowest ask). For buckets derived
// from daily history dumps the day's lowest/highest traded prices are
// stored instead, with AveragePrice carrying the daily average.
//
// Snapshots are upserted by key: re-ingesting the same bucket overwrites
// rather than duplicates.
type MarketSnapshot struct {
	TypeID       int32
	RegionID     int32
	Date         time.Time // UTC, truncated to day
	BuyPrice     float64
	SellPrice    float64
	AveragePrice float64
	Volume       int64
	OrderCount   int64
}

// MidPrice is the representative price used for trend, correlation and
// forecasting series.
func (s *MarketSnapshot) MidPrice() float64 {
	if s.AveragePrice > 0 {
		return s.AveragePrice
	}
	return (s.BuyPrice + s.SellPrice) / 2
}

// BucketDate truncates t to its UTC day bucket.
func BucketDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
