// Package plan defines the declarative flash plan model.
//
// A Plan is an ordered list of Steps loaded from a YAML document. Each step
// is one of a closed set of variants (wipe, flash_image, flash_zip,
// flash_recovery, sideload, reboot, wait). Steps carry only data; the engine
// package decides how each variant maps onto adb and fastboot calls.
//
// Document format:
//
//	name: lineage-21
//	device: auto
//	version: "1.0"
//	continue_on_error: false
//	step_timeout: 10m
//	steps:
//	  - type: wipe
//	    params: { partitions: [userdata, cache] }
//	  - type: flash_image
//	    params: { partition: boot, file: ./boot-$DATE.img, slot: a }
//	  - type: reboot
//	    params: { mode: system }
//
// Documents are validated twice: structurally against the embedded JSON
// Schema, then semantically by Validate. An empty step list is always
// rejected with ErrEmptyPlan.
//
// String fields may reference run variables ($DATE, $TIME, $DEVICE_SERIAL).
// Substitution is textual and happens per step at execution time; see Vars.
package plan
