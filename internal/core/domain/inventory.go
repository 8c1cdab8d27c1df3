package domain

import (
	"errors"
	"time"
)

// InventoryItem is one stock record returned by the inventory backend.
type InventoryItem struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Location  string    `json:"location,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

var ErrItemNotFound = errors.New("inventory item not found")
