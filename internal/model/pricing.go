package model

import "time"

// DateLayout is the calendar date format of history entries.
const DateLayout = "2006-01-02"

// RapRecord is the rolling average price of an item that has sold at least
// once. Version is the store version it was read at.
type RapRecord struct {
	ItemType         ItemType  `json:"itemType"`
	ItemName         string    `json:"itemName"`
	Rap              float64   `json:"rap"`
	LastUpdated      time.Time `json:"lastUpdated"`
	LastSnapshotDate string    `json:"lastSnapshotDate,omitempty"`
	Version          int64     `json:"-"`
}

// RapHistoryEntry is the price carried into one calendar day.
type RapHistoryEntry struct {
	Date string  `json:"date"`
	Rap  float64 `json:"rap"`
}

// RapRegistryEntry marks an item as price tracked.
type RapRegistryEntry struct {
	ItemType  ItemType  `json:"itemType"`
	ItemName  string    `json:"itemName"`
	CreatedAt time.Time `json:"createdAt"`
}

// ItemHistory is one item of the history endpoint.
type ItemHistory struct {
	ItemType         ItemType          `json:"itemType"`
	ItemName         string            `json:"itemName"`
	Rap              float64           `json:"rap"`
	LastUpdated      time.Time         `json:"lastUpdated"`
	LastSnapshotDate string            `json:"lastSnapshotDate,omitempty"`
	History          []RapHistoryEntry `json:"history"`
}

// Presence is a user's last heartbeat.
type Presence struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}
