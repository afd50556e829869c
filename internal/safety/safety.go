package safety

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/flashline-core/internal/rules"
)

// Level grades a risk.
type Level string

// Risk levels.
const (
	LevelSafe     Level = "safe"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// ErrInvalidRule is returned when a rule cannot be used.
var ErrInvalidRule = errors.New("safety: invalid rule")

// Context describes a planned flash.
type Context struct {
	DeviceModel          string `json:"device_model"`
	CurrentFirmware      string `json:"current_firmware"`
	TargetROM            string `json:"target_rom"`
	TargetAndroidVersion string `json:"target_android_version"`
}

// Risk is the assessment result.
type Risk struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

// Rule is one brick-risk check.
type Rule struct {
	Name    string `json:"name"`
	Level   Level  `json:"level"`
	When    string `json:"when"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Logger defines the logging interface used by the Assessor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "oneplus7pro-a14-firmware",
			Level: LevelCritical,
			When: `(ctx.device_model.contains("oneplus 7 pro") || ctx.device_model.contains("guacamole")) &&
				((ctx.target_rom.contains("lineage") && ctx.target_rom.contains("21")) || ctx.target_android_version.contains("14")) &&
				(ctx.current_firmware.contains("11") || ctx.current_firmware.contains("10"))`,
			Message: "Firmware Mismatch Detected",
			Details: "Android 14 ROMs require OxygenOS 12 firmware (H.41 or later) on both slots. " +
				"Flashing now will crash to Qualcomm CrashDump mode.",
		},
		{
			Name:    "pixel6-anti-rollback",
			Level:   LevelCritical,
			When:    `ctx.device_model.contains("pixel 6") && ctx.target_android_version.contains("12") && ctx.current_firmware.contains("13")`,
			Message: "Anti-Rollback Trigger Warning",
			Details: "Downgrading from Android 13 to 12 on Pixel 6 triggers hardware anti-rollback and hard-bricks the device.",
		},
		{
			Name:  "xiaomi-anti-rollback",
			Level: LevelWarning,
			When: `(ctx.device_model.contains("xiaomi") || ctx.device_model.contains("redmi")) &&
				ctx.current_firmware.contains("arb:4") && ctx.target_android_version.contains("old")`,
			Message: "Xiaomi Anti-Rollback Check",
			Details: "Make sure the ROM's security patch level is not older than the current firmware.",
		},
	}
}

// Assessor checks flash contexts against a rule set.
type Assessor struct {
	rules  []Rule
	eval   *rules.Evaluator
	logger Logger
}

// NewAssessor compiles ruleSet and returns an assessor. Every rule must
// have a name, a known non-safe level and a compilable condition.
func NewAssessor(ruleSet []Rule, logger Logger) (*Assessor, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	eval, err := rules.NewEvaluator("ctx")
	if err != nil {
		return nil, err
	}

	var errs []string
	for i, r := range ruleSet {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("rule %d: name is required", i))
		}
		if r.Level != LevelWarning && r.Level != LevelCritical {
			errs = append(errs, fmt.Sprintf("rule %d: level must be warning or critical", i))
		}
		if err := eval.Compile(r.When); err != nil {
			errs = append(errs, fmt.Sprintf("rule %d: %v", i, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(errs, "; "))
	}

	return &Assessor{
		rules:  append([]Rule(nil), ruleSet...),
		eval:   eval,
		logger: logger,
	}, nil
}

// Rules returns a copy of the rule set.
func (a *Assessor) Rules() []Rule {
	return append([]Rule(nil), a.rules...)
}

// Check returns the risk for c. A rule that fails at runtime is logged and
// skipped.
func (a *Assessor) Check(c Context) Risk {
	input := map[string]any{
		"ctx": map[string]any{
			"device_model":           strings.ToLower(c.DeviceModel),
			"current_firmware":       strings.ToLower(c.CurrentFirmware),
			"target_rom":             strings.ToLower(c.TargetROM),
			"target_android_version": strings.ToLower(c.TargetAndroidVersion),
		},
	}

	for _, r := range a.rules {
		hit, err := a.eval.Eval(r.When, input)
		if err != nil {
			a.logger.Warn("safety rule failed", "rule", r.Name, "error", err)
			continue
		}
		if hit {
			return Risk{Level: r.Level, Message: r.Message, Details: r.Details, Rule: r.Name}
		}
	}

	return Risk{Level: LevelSafe, Message: "No known brick risks detected."}
}
