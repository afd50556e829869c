package device

import "time"

// ConnectionType identifies which tool currently sees the device.
type ConnectionType string

// Connection types.
const (
	ConnectionADB      ConnectionType = "adb"
	ConnectionFastboot ConnectionType = "fastboot"
)

// Common adb states. Fastboot devices always report StateFastboot.
const (
	StateDevice       = "device"
	StateRecovery     = "recovery"
	StateSideload     = "sideload"
	StateUnauthorized = "unauthorized"
	StateOffline      = "offline"
	StateFastboot     = "fastboot"
)

// Status is a single observed device.
type Status struct {
	Serial         string         `json:"serial"`
	State          string         `json:"state"`
	ConnectionType ConnectionType `json:"connection_type"`
}

// Entry is a registry record: the latest status plus when the serial was
// first and last seen during the current presence.
type Entry struct {
	Status
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Stats summarises the current snapshot.
type Stats struct {
	Total    int `json:"total"`
	ADB      int `json:"adb"`
	Fastboot int `json:"fastboot"`
}

// Serials returns the serial of every status in order.
func Serials(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.Serial
	}
	return out
}
