package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/scanner"
)

// ScanRecord is the history entry written for every pipeline run.
type ScanRecord struct {
	ID         uuid.UUID
	DeviceID   string
	Mode       scanner.ColorMode
	Status     events.Status
	OutputPath string
	OutputSize int64
	Error      string
	CreatedAt  time.Time
}
