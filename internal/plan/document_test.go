package plan

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullPlan = `
name: lineage-21
device: auto
version: 1.0
continue_on_error: true
step_timeout: 10m
unknown_field: ignored
steps:
  - type: wipe
    params: { partitions: [userdata, cache] }
  - type: flash_image
    params: { partition: boot, file: ./boot-$DATE.img, slot: a }
  - type: flash_zip
    params: { file: ./update.zip }
  - type: flash_recovery
    params: { file: ./twrp.img, slot: all, boot: true }
  - type: sideload
    params: { file: ./rom.zip }
  - type: reboot
    params: { mode: system }
  - type: wait
    params: { seconds: 5 }
`

func TestParse_FullDocument(t *testing.T) {
	p, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if p.Name != "lineage-21" {
		t.Errorf("Name = %q, want lineage-21", p.Name)
	}
	if p.DeviceTarget != AutoTarget {
		t.Errorf("DeviceTarget = %q, want auto", p.DeviceTarget)
	}
	if p.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", p.Version)
	}
	if !p.ContinueOnError {
		t.Error("ContinueOnError = false, want true")
	}
	if p.StepTimeout != 10*time.Minute {
		t.Errorf("StepTimeout = %v, want 10m", p.StepTimeout)
	}

	want := []Step{
		Wipe{Partitions: []string{"userdata", "cache"}},
		FlashImage{Partition: "boot", File: "./boot-$DATE.img", Slot: "a"},
		FlashZip{File: "./update.zip"},
		FlashRecovery{File: "./twrp.img", Slot: "all", Boot: true},
		Sideload{File: "./rom.zip"},
		Reboot{Mode: "system"},
		Wait{Seconds: 5},
	}
	if len(p.Steps) != len(want) {
		t.Fatalf("len(Steps) = %d, want %d", len(p.Steps), len(want))
	}
	for i := range want {
		if p.Steps[i].Kind() != want[i].Kind() {
			t.Errorf("Steps[%d].Kind() = %s, want %s", i, p.Steps[i].Kind(), want[i].Kind())
		}
	}
	if w, ok := p.Steps[0].(Wipe); !ok || strings.Join(w.Partitions, ",") != "userdata,cache" {
		t.Errorf("Steps[0] = %#v", p.Steps[0])
	}
	if fi, ok := p.Steps[1].(FlashImage); !ok || fi != want[1] {
		t.Errorf("Steps[1] = %#v, want %#v", p.Steps[1], want[1])
	}
	if fr, ok := p.Steps[3].(FlashRecovery); !ok || fr != want[3] {
		t.Errorf("Steps[3] = %#v, want %#v", p.Steps[3], want[3])
	}
	if w, ok := p.Steps[6].(Wait); !ok || w.Seconds != 5 {
		t.Errorf("Steps[6] = %#v", p.Steps[6])
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "empty steps",
			doc:     "name: x\ndevice: auto\nsteps: []\n",
			wantErr: ErrEmptyPlan,
		},
		{
			name:    "missing steps",
			doc:     "name: x\ndevice: auto\n",
			wantErr: ErrEmptyPlan,
		},
		{
			name:    "unknown step type",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: format_c\n    params: {}\n",
			wantErr: ErrUnknownStepType,
		},
		{
			name:    "malformed yaml",
			doc:     "name: [unterminated\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing name",
			doc:     "device: auto\nsteps:\n  - type: wait\n    params: { seconds: 1 }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "wipe without partitions",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: wipe\n    params: { partitions: [] }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "flash_image without file",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: flash_image\n    params: { partition: boot }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty reboot mode",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: reboot\n    params: { mode: \"\" }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "bad recovery slot",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: flash_recovery\n    params: { file: r.img, slot: c }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "negative wait",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: wait\n    params: { seconds: -1 }\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "missing params",
			doc:     "name: x\ndevice: auto\nsteps:\n  - type: sideload\n",
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "bad step timeout",
			doc:     "name: x\ndevice: auto\nstep_timeout: soon\nsteps:\n  - type: wait\n    params: { seconds: 1 }\n",
			wantErr: ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_CustomRebootModes(t *testing.T) {
	for _, mode := range []string{"edl", "download", "$MODE"} {
		t.Run(mode, func(t *testing.T) {
			doc := "name: x\ndevice: auto\nsteps:\n  - type: reboot\n    params: { mode: \"" + mode + "\" }\n"
			p, err := Parse([]byte(doc))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if r, ok := p.Steps[0].(Reboot); !ok || r.Mode != mode {
				t.Errorf("Steps[0] = %#v, want Reboot{Mode: %q}", p.Steps[0], mode)
			}
		})
	}
}

func TestErrEmptyPlan_Message(t *testing.T) {
	if ErrEmptyPlan.Error() != "plan must contain at least one step" {
		t.Errorf("ErrEmptyPlan = %q", ErrEmptyPlan.Error())
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(fullPlan), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(p.Steps) != 7 {
		t.Errorf("len(Steps) = %d, want 7", len(p.Steps))
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) error = nil")
	}
}

func TestRead(t *testing.T) {
	p, err := Read(strings.NewReader(fullPlan))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if p.Name != "lineage-21" {
		t.Errorf("Name = %q", p.Name)
	}
}

func TestMarshal_RoundTripsThroughParse(t *testing.T) {
	original, err := Parse([]byte(fullPlan))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) error = %v\n%s", err, data)
	}
	if again.StepTimeout != original.StepTimeout || len(again.Steps) != len(original.Steps) {
		t.Errorf("round trip changed plan: %+v", again)
	}
}

func TestPlan_MarshalJSON(t *testing.T) {
	p := Plan{
		Name:         "p",
		DeviceTarget: "SER1",
		Steps:        []Step{Reboot{Mode: ModeBootloader}, Wait{Seconds: 2}},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	var got struct {
		Device string `json:"device"`
		Steps  []struct {
			Type   string         `json:"type"`
			Params map[string]any `json:"params"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.Device != "SER1" {
		t.Errorf("device = %q", got.Device)
	}
	if len(got.Steps) != 2 || got.Steps[0].Type != "reboot" || got.Steps[0].Params["mode"] != "bootloader" {
		t.Errorf("steps = %+v", got.Steps)
	}
}

func TestValidate_NilPlan(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrEmptyPlan) {
		t.Errorf("Validate(nil) = %v, want ErrEmptyPlan", err)
	}
}
