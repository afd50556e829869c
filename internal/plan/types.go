package plan

import (
	"encoding/json"
	"time"
)

// AutoTarget is the device target meaning "first device found in bootloader mode".
const AutoTarget = "auto"

// Kind names a step variant as it appears in plan documents.
type Kind string

// Step kinds.
const (
	KindWipe          Kind = "wipe"
	KindFlashImage    Kind = "flash_image"
	KindFlashZip      Kind = "flash_zip"
	KindFlashRecovery Kind = "flash_recovery"
	KindSideload      Kind = "sideload"
	KindReboot        Kind = "reboot"
	KindWait          Kind = "wait"
)

// AllKinds returns every step kind in document order.
func AllKinds() []Kind {
	return []Kind{
		KindWipe,
		KindFlashImage,
		KindFlashZip,
		KindFlashRecovery,
		KindSideload,
		KindReboot,
		KindWait,
	}
}

// Recovery slot selectors accepted by FlashRecovery.
const (
	SlotA   = "a"
	SlotB   = "b"
	SlotAll = "all"
)

// Well-known reboot modes. ModeSystem reboots into the OS; any other
// non-empty mode (edl, download, ...) is passed through to the tool.
const (
	ModeSystem     = "system"
	ModeRecovery   = "recovery"
	ModeBootloader = "bootloader"
	ModeFastboot   = "fastboot"
	ModeSideload   = "sideload"
)

// Plan is a named, ordered list of steps for one device.
//
// A Plan is immutable once loaded. The engine never modifies it; variable
// substitution produces new Step values.
type Plan struct {
	Name         string
	DeviceTarget string // serial, or AutoTarget
	Version      string

	// ContinueOnError keeps executing after a failed step.
	ContinueOnError bool

	// StepTimeout bounds each adapter call. Zero means no limit.
	// Wait steps are never subject to it.
	StepTimeout time.Duration

	Steps []Step
}

// Step is one unit of work in a plan.
//
// The set of implementations is closed: only the variants in this package
// satisfy the interface.
type Step interface {
	// Kind returns the document type name of the step.
	Kind() Kind

	// Substitute returns a copy with $NAME tokens in every string field
	// replaced from vars.
	Substitute(vars Vars) Step

	isStep()
}

// Wipe erases each listed partition in order.
type Wipe struct {
	Partitions []string `yaml:"partitions" json:"partitions"`
}

// FlashImage writes an image file to a partition, optionally on a slot.
type FlashImage struct {
	Partition string `yaml:"partition" json:"partition"`
	File      string `yaml:"file" json:"file"`
	Slot      string `yaml:"slot,omitempty" json:"slot,omitempty"`
}

// FlashZip applies a full update package with fastboot update.
type FlashZip struct {
	File string `yaml:"file" json:"file"`
}

// FlashRecovery writes a recovery image. Slot selects a, b or all;
// Boot additionally boots the image once without relying on the flash.
type FlashRecovery struct {
	File string `yaml:"file" json:"file"`
	Slot string `yaml:"slot,omitempty" json:"slot,omitempty"`
	Boot bool   `yaml:"boot,omitempty" json:"boot,omitempty"`
}

// Sideload streams a package through adb sideload.
type Sideload struct {
	File string `yaml:"file" json:"file"`
}

// Reboot restarts the device into Mode.
type Reboot struct {
	Mode string `yaml:"mode" json:"mode"`
}

// Wait sleeps for Seconds.
type Wait struct {
	Seconds uint64 `yaml:"seconds" json:"seconds"`
}

func (Wipe) Kind() Kind          { return KindWipe }
func (FlashImage) Kind() Kind    { return KindFlashImage }
func (FlashZip) Kind() Kind      { return KindFlashZip }
func (FlashRecovery) Kind() Kind { return KindFlashRecovery }
func (Sideload) Kind() Kind      { return KindSideload }
func (Reboot) Kind() Kind        { return KindReboot }
func (Wait) Kind() Kind          { return KindWait }

func (Wipe) isStep()          {}
func (FlashImage) isStep()    {}
func (FlashZip) isStep()      {}
func (FlashRecovery) isStep() {}
func (Sideload) isStep()      {}
func (Reboot) isStep()        {}
func (Wait) isStep()          {}

// Substitute implements Step.
func (s Wipe) Substitute(vars Vars) Step {
	parts := make([]string, len(s.Partitions))
	for i, p := range s.Partitions {
		parts[i] = vars.Expand(p)
	}
	return Wipe{Partitions: parts}
}

// Substitute implements Step.
func (s FlashImage) Substitute(vars Vars) Step {
	return FlashImage{
		Partition: vars.Expand(s.Partition),
		File:      vars.Expand(s.File),
		Slot:      vars.Expand(s.Slot),
	}
}

// Substitute implements Step.
func (s FlashZip) Substitute(vars Vars) Step {
	return FlashZip{File: vars.Expand(s.File)}
}

// Substitute implements Step.
func (s FlashRecovery) Substitute(vars Vars) Step {
	return FlashRecovery{
		File: vars.Expand(s.File),
		Slot: vars.Expand(s.Slot),
		Boot: s.Boot,
	}
}

// Substitute implements Step.
func (s Sideload) Substitute(vars Vars) Step {
	return Sideload{File: vars.Expand(s.File)}
}

// Substitute implements Step.
func (s Reboot) Substitute(vars Vars) Step {
	return Reboot{Mode: vars.Expand(s.Mode)}
}

// Substitute implements Step. Wait has no string fields.
func (s Wait) Substitute(Vars) Step {
	return s
}

// stepDocument is the tagged-union wire form of a step.
type stepDocument struct {
	Type   Kind `json:"type" yaml:"type"`
	Params Step `json:"params" yaml:"params"`
}

// planDocument is the wire form of a plan used for JSON responses.
type planDocument struct {
	Name            string         `json:"name"`
	Device          string         `json:"device"`
	Version         string         `json:"version,omitempty"`
	ContinueOnError bool           `json:"continue_on_error"`
	StepTimeout     string         `json:"step_timeout,omitempty"`
	Steps           []stepDocument `json:"steps"`
}

// MarshalJSON encodes the plan in document form, steps as {type, params}.
func (p Plan) MarshalJSON() ([]byte, error) {
	doc := planDocument{
		Name:            p.Name,
		Device:          p.DeviceTarget,
		Version:         p.Version,
		ContinueOnError: p.ContinueOnError,
		Steps:           make([]stepDocument, len(p.Steps)),
	}
	if p.StepTimeout > 0 {
		doc.StepTimeout = p.StepTimeout.String()
	}
	for i, s := range p.Steps {
		doc.Steps[i] = stepDocument{Type: s.Kind(), Params: s}
	}
	return json.Marshal(doc)
}
