// Package adapter drives the external adb and fastboot tools.
//
// Every physical operation on a device goes through CLI, which builds the
// tool command line and hands it to a Runner. The default ExecRunner uses
// os/exec; tests substitute a scripted runner.
//
// Command lines:
//
//	adb devices
//	fastboot devices
//	fastboot -s SERIAL erase PARTITION
//	fastboot -s SERIAL flash PARTITION FILE
//	fastboot -s SERIAL update FILE
//	fastboot -s SERIAL boot FILE
//	adb -s SERIAL sideload FILE
//	adb -s SERIAL reboot [MODE]
//	fastboot -s SERIAL reboot[-bootloader|-recovery|-fastboot]
//
// An empty serial omits "-s", letting the tool pick its single device.
package adapter
