package models

import "time"

// DataPackage represents a purchasable data plan (e.g. 1GB/24h)
type DataPackage struct {
	ID            string
	Name          string
	Price         float64
	DataLimitMB   int64
	DurationHours int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
