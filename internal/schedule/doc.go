// Package schedule binds newly observed devices to stored automation plans.
//
// The schedule document is a JSON file that may carry comments:
//
//	{
//	  // flash every Pixel that shows up in fastboot
//	  "tasks": [
//	    {"device_serial": "*", "workflow_file": "pixel.yaml", "enabled": true,
//	     "when": "device.state == \"fastboot\""}
//	  ]
//	}
//
// The Store reads it on every use so edits take effect without a restart.
// The Matcher runs matching plans for each serial at most once per process
// lifetime; devices reboot between modes while a plan runs and must not
// trigger it again.
package schedule
