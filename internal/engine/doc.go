// Package engine executes flash plans against a device.
//
// An Engine interprets one Plan at a time: steps run strictly in order,
// string parameters are expanded from the run's variables, and every step
// produces execution log entries on the plan.update channel. Pause, Resume
// and Cancel may be called from any goroutine at any time; they flip atomic
// flags that the interpreter checks before each step. A step already handed
// to adb or fastboot is never interrupted.
//
// Step dispatch:
//
//	wipe            fastboot erase, one call per partition, stops at first failure
//	flash_image     fastboot flash <partition>[_<slot>] <file>
//	flash_zip       fastboot update <file>
//	flash_recovery  fastboot flash recovery[_a|_b] <file>, optional fastboot boot
//	sideload        adb sideload, output lines on plan.output
//	reboot          adb reboot, falling back to fastboot reboot
//	wait            sleep
//
// The Supervisor owns one Engine per run key (normally the device serial)
// and provides asynchronous starts, lookups and control by key.
package engine
