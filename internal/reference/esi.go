// Package reference resolves item and region metadata through layered
// lookups: an in-process map, the persistent reference store, and
// finally the ESI API.
package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
)

// ESIClient fetches type and region metadata from the EVE Swagger
// Interface.
type ESIClient struct {
	client *resty.Client
}

// ESIOptions configures an ESIClient.
type ESIOptions struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	RetryCount int
}

// NewESIClient creates an ESI client.
func NewESIClient(opts ESIOptions) *ESIClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(time.Second).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "application/json")
	return &ESIClient{client: client}
}

type esiType struct {
	TypeID      int32  `json:"type_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconID      *int32 `json:"icon_id"`
}

type esiRegion struct {
	RegionID int32  `json:"region_id"`
	Name     string `json:"name"`
}

// FetchItem retrieves one item's metadata by type id.
func (c *ESIClient) FetchItem(ctx context.Context, typeID int32) (*domain.Item, error) {
	var out esiType
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/universe/types/%d/", typeID))
	if err != nil {
		return nil, fmt.Errorf("fetch type %d: %w", typeID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch type %d: status %d", typeID, resp.StatusCode())
	}

	item := &domain.Item{TypeID: typeID}
	if out.Name != "" {
		name := out.Name
		item.Name = &name
	}
	if out.Description != "" {
		desc := out.Description
		item.Description = &desc
	}
	if out.IconID != nil {
		ref := fmt.Sprintf("https://images.evetech.net/types/%d/icon", typeID)
		item.IconRef = &ref
	}
	return item, nil
}

// FetchRegion retrieves one region's metadata by id.
func (c *ESIClient) FetchRegion(ctx context.Context, regionID int32) (*domain.Region, error) {
	var out esiRegion
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/universe/regions/%d/", regionID))
	if err != nil {
		return nil, fmt.Errorf("fetch region %d: %w", regionID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch region %d: status %d", regionID, resp.StatusCode())
	}
	return &domain.Region{RegionID: regionID, Name: out.Name}, nil
}
