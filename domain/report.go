package domain

import (
	"time"

	"github.com/google/uuid"
)

// Report is a user-filed complaint against another participant. Reports are
// write-only from this process; review happens elsewhere.
type Report struct {
	ID         uuid.UUID
	ReporterID string
	TargetID   string
	Reason     string
	At         time.Time
}
