package plan

import (
	"testing"
	"time"
)

func TestNewVars(t *testing.T) {
	now := time.Date(2026, 3, 9, 7, 5, 3, 0, time.UTC)
	v := NewVars(now, "R58M123")

	if v[VarDate] != "2026-03-09" {
		t.Errorf("DATE = %q", v[VarDate])
	}
	if v[VarTime] != "07:05:03" {
		t.Errorf("TIME = %q", v[VarTime])
	}
	if v[VarDeviceSerial] != "R58M123" {
		t.Errorf("DEVICE_SERIAL = %q", v[VarDeviceSerial])
	}
}

func TestVars_Expand(t *testing.T) {
	v := Vars{"DATE": "2026-03-09", "DEVICE_SERIAL": "ABC", "DATE_TAG": "nightly"}

	tests := []struct {
		in   string
		want string
	}{
		{"./boot-$DATE.img", "./boot-2026-03-09.img"},
		{"$DEVICE_SERIAL/$DATE", "ABC/2026-03-09"},
		{"$DATE_TAG", "nightly"},
		{"$UNKNOWN stays", "$UNKNOWN stays"},
		{"no tokens", "no tokens"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := v.Expand(tt.in); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStep_Substitute(t *testing.T) {
	v := Vars{"DEVICE_SERIAL": "S1", "DATE": "D"}

	tests := []struct {
		name string
		in   Step
		want Step
	}{
		{"flash_image", FlashImage{Partition: "boot", File: "$DEVICE_SERIAL-$DATE.img", Slot: "b"}, FlashImage{Partition: "boot", File: "S1-D.img", Slot: "b"}},
		{"flash_zip", FlashZip{File: "$DATE.zip"}, FlashZip{File: "D.zip"}},
		{"flash_recovery", FlashRecovery{File: "$DEVICE_SERIAL.img", Slot: "all", Boot: true}, FlashRecovery{File: "S1.img", Slot: "all", Boot: true}},
		{"sideload", Sideload{File: "/roms/$DEVICE_SERIAL.zip"}, Sideload{File: "/roms/S1.zip"}},
		{"reboot", Reboot{Mode: "recovery"}, Reboot{Mode: "recovery"}},
		{"wait", Wait{Seconds: 3}, Wait{Seconds: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Substitute(v); got != tt.want {
				t.Errorf("Substitute() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestWipe_SubstituteDoesNotMutate(t *testing.T) {
	orig := Wipe{Partitions: []string{"$DATE", "cache"}}
	got := orig.Substitute(Vars{"DATE": "x"}).(Wipe)

	if got.Partitions[0] != "x" {
		t.Errorf("Partitions[0] = %q, want x", got.Partitions[0])
	}
	if orig.Partitions[0] != "$DATE" {
		t.Errorf("original mutated: %q", orig.Partitions[0])
	}
}
