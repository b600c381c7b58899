package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/rxscan/rxscan/pkg/scanner"
)

const (
	// TopicDevices carries a DeviceEvent whenever discovery adds, removes, or
	// selects a scanner.
	TopicDevices = "event.devices"
	// TopicPipeline carries a PipelineEvent for each pipeline stage change.
	TopicPipeline = "event.pipeline"
)

type DeviceEventKind string

const (
	DeviceAdded    DeviceEventKind = "added"
	DeviceRemoved  DeviceEventKind = "removed"
	DeviceSelected DeviceEventKind = "selected"
)

type DeviceEvent struct {
	Kind   DeviceEventKind
	Device scanner.Device
	// Selected is the device ID selected after this event, empty for none.
	Selected string
}

// Status is the pipeline state a UI binds its status text to.
type Status string

const (
	Ready      Status = "ready"
	Scanning   Status = "scanning"
	Converting Status = "converting"
	Done       Status = "done"
	Cancelled  Status = "cancelled"
	Failed     Status = "failed"
)

// Message returns the status line shown to the user.
func (s Status) Message() string {
	switch s {
	case Ready, Done:
		return "Ready to scan."
	case Scanning:
		return "Scanning, please wait..."
	case Converting:
		return "Converting, please wait..."
	case Cancelled:
		return "Scan cancelled."
	case Failed:
		return "Scan failed."
	default:
		return string(s)
	}
}

// Busy reports whether the pipeline is mid-run in this status; UIs disable
// their controls while it is.
func (s Status) Busy() bool {
	return s == Scanning || s == Converting
}

type PipelineEvent struct {
	ScanID   uuid.UUID
	Status   Status
	DeviceID string
	Mode     scanner.ColorMode
	// Output is set once the JPEG has been written.
	Output string
	Error  error
	At     time.Time
}
