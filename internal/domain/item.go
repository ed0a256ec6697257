// Package domain holds the core types shared by all pipeline stages.
package domain

import "fmt"

// Item is a tradable EVE item type. Identity is the numeric type id;
// display metadata is resolved lazily and may be absent until the
// reference resolver has seen the item.
type Item struct {
	TypeID      int32
	Name        *string
	Description *string
	IconRef     *string
}

// DisplayName returns the resolved name or a stable placeholder.
func (i *Item) DisplayName() string {
	if i != nil && i.Name != nil && *i.Name != "" {
		return *i.Name
	}
	if i == nil {
		return "Unknown Item"
	}
	return fmt.Sprintf("Unknown Item (%d)", i.TypeID)
}

// Region is an EVE market region.
type Region struct {
	RegionID int32
	Name     string
}
