package ingestion

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/logger"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

const ordersLastModifiedKey = "everef:orders:last_modified"

// EVERefClient fetches bulk market exports from data.everef.net.
type EVERefClient struct {
	client *resty.Client
	meta   storage.MetadataStore
}

// EVERefOptions configures an EVERefClient.
type EVERefOptions struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	RetryCount int
	// Metadata persists the orders export Last-Modified stamp so an
	// unchanged export is skipped across restarts.
	Metadata storage.MetadataStore
}

// NewEVERefClient creates an EVERef bulk export client.
func NewEVERefClient(opts EVERefOptions) *EVERefClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(2 * time.Second).
		SetHeader("User-Agent", opts.UserAgent)
	return &EVERefClient{client: client, meta: opts.Metadata}
}

var _ Source = (*EVERefClient)(nil)

// AvailableHistoryDates lists dates present in the history totals
// index, ascending.
func (c *EVERefClient) AvailableHistoryDates(ctx context.Context) ([]time.Time, error) {
	totals := make(map[string]int64)
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&totals).
		Get("/market-history/totals.json")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch history totals: %v", ErrSourceUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: fetch history totals: status %d", ErrSourceUnavailable, resp.StatusCode())
	}

	dates := make([]time.Time, 0, len(totals))
	for raw, rows := range totals {
		if rows == 0 {
			continue
		}
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			logger.Warn("skipping malformed totals date %q: %v", raw, err)
			continue
		}
		dates = append(dates, day.UTC())
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// FetchHistory downloads and parses one day of market history.
func (c *EVERefClient) FetchHistory(ctx context.Context, day time.Time) ([]*HistoryRecord, *ParseStats, error) {
	path := fmt.Sprintf("/market-history/%d/market-history-%s.csv.bz2",
		day.Year(), day.Format("2006-01-02"))

	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch history %s: %v", ErrSourceUnavailable, day.Format("2006-01-02"), err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, nil, fmt.Errorf("%w: fetch history %s: status %d",
			ErrSourceUnavailable, day.Format("2006-01-02"), resp.StatusCode())
	}

	records, stats, err := parseHistoryCSV(bzip2.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	return records, stats, nil
}

// FetchOrders downloads and parses the latest order snapshot, skipping
// the download when the export's Last-Modified matches the stored
// stamp.
func (c *EVERefClient) FetchOrders(ctx context.Context) ([]*OrderRecord, *ParseStats, error) {
	const path = "/market-orders/market-orders-latest.v3.csv.bz2"

	head, err := c.client.R().SetContext(ctx).Head(path)
	if err == nil && !head.IsError() {
		lastModified := head.Header().Get("Last-Modified")
		if lastModified != "" && c.meta != nil {
			stored, err := c.meta.Get(ctx, ordersLastModifiedKey)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("read orders last-modified stamp: %v", err)
			}
			if stored == lastModified {
				return nil, nil, ErrNotModified
			}
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: fetch orders: %v", ErrSourceUnavailable, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return nil, nil, fmt.Errorf("%w: fetch orders: status %d", ErrSourceUnavailable, resp.StatusCode())
	}

	records, stats, err := parseOrdersCSV(bzip2.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	if lastModified := resp.Header().Get("Last-Modified"); lastModified != "" && c.meta != nil {
		if err := c.meta.Set(ctx, ordersLastModifiedKey, lastModified); err != nil {
			logger.Warn("store orders last-modified stamp: %v", err)
		}
	}
	return records, stats, nil
}
