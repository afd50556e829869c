package adapter

import (
	"strings"

	"github.com/nerrad567/flashline-core/internal/device"
)

// parseADBDevices parses `adb devices` output:
//
//	List of devices attached
//	R58M12345	device
//	emulator-5554	offline
//
// The header and daemon start-up notices ("* daemon ...") are skipped.
func parseADBDevices(out string) []device.Status {
	var devices []device.Status
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, device.Status{
			Serial:         fields[0],
			State:          fields[1],
			ConnectionType: device.ConnectionADB,
		})
	}
	return devices
}

// parseFastbootDevices parses `fastboot devices` output. Every listed device
// is reported with state "fastboot".
func parseFastbootDevices(out string) []device.Status {
	var devices []device.Status
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, device.Status{
			Serial:         fields[0],
			State:          device.StateFastboot,
			ConnectionType: device.ConnectionFastboot,
		})
	}
	return devices
}
