package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// headerIndex maps column names to positions. Extra columns are
// ignored so export schema additions do not break parsing.
func headerIndex(header []string, required []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, name)
		}
	}
	return idx, nil
}

var historyColumns = []string{
	"date", "region_id", "type_id", "average", "highest", "lowest", "volume", "order_count",
}

// parseHistoryCSV reads a daily market history export. Malformed rows
// are dropped and counted, never fatal.
func parseHistoryCSV(r io.Reader) ([]*HistoryRecord, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read history header: %v", ErrSchemaMismatch, err)
	}
	idx, err := headerIndex(header, historyColumns)
	if err != nil {
		return nil, nil, err
	}

	var records []*HistoryRecord
	stats := &ParseStats{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Dropped++
			continue
		}

		rec, ok := parseHistoryRow(row, idx)
		if !ok {
			stats.Dropped++
			continue
		}
		records = append(records, rec)
		stats.Parsed++
	}
	return records, stats, nil
}

func parseHistoryRow(row []string, idx map[string]int) (*HistoryRecord, bool) {
	date, err := time.Parse("2006-01-02", row[idx["date"]])
	if err != nil {
		return nil, false
	}
	regionID, err := strconv.ParseInt(row[idx["region_id"]], 10, 32)
	if err != nil || regionID <= 0 {
		return nil, false
	}
	typeID, err := strconv.ParseInt(row[idx["type_id"]], 10, 32)
	if err != nil || typeID <= 0 {
		return nil, false
	}
	average, err := strconv.ParseFloat(row[idx["average"]], 64)
	if err != nil || average < 0 {
		return nil, false
	}
	highest, err := strconv.ParseFloat(row[idx["highest"]], 64)
	if err != nil || highest < 0 {
		return nil, false
	}
	lowest, err := strconv.ParseFloat(row[idx["lowest"]], 64)
	if err != nil || lowest < 0 {
		return nil, false
	}
	volume, err := strconv.ParseInt(row[idx["volume"]], 10, 64)
	if err != nil || volume < 0 {
		return nil, false
	}
	orderCount, err := strconv.ParseInt(row[idx["order_count"]], 10, 64)
	if err != nil || orderCount < 0 {
		return nil, false
	}

	return &HistoryRecord{
		Date:       date.UTC(),
		RegionID:   int32(regionID),
		TypeID:     int32(typeID),
		Average:    average,
		Highest:    highest,
		Lowest:     lowest,
		Volume:     volume,
		OrderCount: orderCount,
	}, true
}

var orderColumns = []string{
	"region_id", "type_id", "is_buy_order", "price", "volume_remain",
}

// parseOrdersCSV reads a live order snapshot export.
func parseOrdersCSV(r io.Reader) ([]*OrderRecord, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read orders header: %v", ErrSchemaMismatch, err)
	}
	idx, err := headerIndex(header, orderColumns)
	if err != nil {
		return nil, nil, err
	}

	var records []*OrderRecord
	stats := &ParseStats{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Dropped++
			continue
		}

		rec, ok := parseOrderRow(row, idx)
		if !ok {
			stats.Dropped++
			continue
		}
		records = append(records, rec)
		stats.Parsed++
	}
	return records, stats, nil
}

func parseOrderRow(row []string, idx map[string]int) (*OrderRecord, bool) {
	regionID, err := strconv.ParseInt(row[idx["region_id"]], 10, 32)
	if err != nil || regionID <= 0 {
		return nil, false
	}
	typeID, err := strconv.ParseInt(row[idx["type_id"]], 10, 32)
	if err != nil || typeID <= 0 {
		return nil, false
	}
	isBuy, err := strconv.ParseBool(row[idx["is_buy_order"]])
	if err != nil {
		return nil, false
	}
	price, err := strconv.ParseFloat(row[idx["price"]], 64)
	if err != nil || price <= 0 {
		return nil, false
	}
	volumeRemain, err := strconv.ParseInt(row[idx["volume_remain"]], 10, 64)
	if err != nil || volumeRemain < 0 {
		return nil, false
	}

	return &OrderRecord{
		RegionID:     int32(regionID),
		TypeID:       int32(typeID),
		IsBuyOrder:   isBuy,
		Price:        price,
		VolumeRemain: volumeRemain,
	}, true
}
