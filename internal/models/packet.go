package models

import "time"

// DataPacket is an immutable record of one metering event.
// The sum of a session's packets must equal the session's data_used_mb.
type DataPacket struct {
	ID         string
	SessionID  string
	DataUsedMB int64
	CreatedAt  time.Time
}
