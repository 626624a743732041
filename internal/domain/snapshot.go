package domain

import "time"

// MovementSnapshot хранит журнал перемещений демона в момент получения из upstream.
type MovementSnapshot struct {
	DemonID   int
	Events    []AuditEvent
	FetchedAt time.Time
}
