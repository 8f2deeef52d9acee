package events

import "time"

// EventType identifies the kind of event being published.
type EventType string

const (
	// Update-check events
	UpdateAvailable EventType = "update_available"
	AddonOffline    EventType = "addon_offline"
	CheckFailed     EventType = "check_failed"

	// Collection mutation events
	AddonInstalled   EventType = "addon_installed"
	AddonRemoved     EventType = "addon_removed"
	AddonReinstalled EventType = "addon_reinstalled"
	ReinstallFailed  EventType = "reinstall_failed"
	CollectionPushed EventType = "collection_pushed"
)

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo    Severity = 0
	SeverityWarning Severity = 1
	SeverityError   Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the payload published through the bus.
type Event struct {
	Type         EventType         `json:"type"`
	Severity     Severity          `json:"severity"`
	AddonName    string            `json:"addon_name,omitempty"`
	TransportURL string            `json:"transport_url,omitempty"`
	Message      string            `json:"message"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}
