package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// maxDocumentSize caps plan documents read from disk or the API.
const maxDocumentSize = 1 << 20

// document is the YAML form of a plan. Unknown fields are ignored.
type document struct {
	Name            string        `yaml:"name"`
	Device          string        `yaml:"device"`
	Version         scalarString  `yaml:"version"`
	ContinueOnError bool          `yaml:"continue_on_error"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	Steps           []rawStep     `yaml:"steps"`
}

// scalarString accepts any YAML scalar as text, so `version: 1.0` stays "1.0".
type scalarString string

func (s *scalarString) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", node.Line)
	}
	*s = scalarString(node.Value)
	return nil
}

type rawStep struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

// Parse decodes and validates a YAML plan document.
//
// Returns:
//   - *Plan: The validated plan
//   - error: ErrEmptyPlan, ErrUnknownStepType, or ErrInvalidDocument
func Parse(data []byte) (*Plan, error) {
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrInvalidDocument, maxDocumentSize)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if len(doc.Steps) == 0 {
		return nil, ErrEmptyPlan
	}

	steps := make([]Step, len(doc.Steps))
	for i, rs := range doc.Steps {
		step, err := decodeStep(rs)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps[i] = step
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, err
	}

	p := &Plan{
		Name:            doc.Name,
		DeviceTarget:    doc.Device,
		Version:         string(doc.Version),
		ContinueOnError: doc.ContinueOnError,
		StepTimeout:     doc.StepTimeout,
		Steps:           steps,
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Read parses a plan from r.
func Read(r io.Reader) (*Plan, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return Parse(data)
}

// LoadFile reads and parses the plan document at path.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied plan path
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// decodeStep turns a tagged {type, params} node into its variant.
func decodeStep(rs rawStep) (Step, error) {
	var (
		step Step
		err  error
	)
	switch Kind(rs.Type) {
	case KindWipe:
		var s Wipe
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindFlashImage:
		var s FlashImage
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindFlashZip:
		var s FlashZip
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindFlashRecovery:
		var s FlashRecovery
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindSideload:
		var s Sideload
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindReboot:
		var s Reboot
		err = decodeParams(&rs.Params, &s)
		step = s
	case KindWait:
		var s Wait
		err = decodeParams(&rs.Params, &s)
		step = s
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, rs.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s params: %w", ErrInvalidDocument, rs.Type, err)
	}
	return step, nil
}

func decodeParams(node *yaml.Node, out any) error {
	if node.Kind == 0 {
		return errors.New("missing params")
	}
	return node.Decode(out)
}

// Validate applies semantic checks that the schema cannot express.
func Validate(p *Plan) error {
	if p == nil || len(p.Steps) == 0 {
		return ErrEmptyPlan
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(p.DeviceTarget) == "" {
		return fmt.Errorf("%w: device is required", ErrInvalidDocument)
	}
	if p.StepTimeout < 0 {
		return fmt.Errorf("%w: step_timeout must not be negative", ErrInvalidDocument)
	}

	for i, s := range p.Steps {
		if err := validateStep(s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch v := s.(type) {
	case Wipe:
		if len(v.Partitions) == 0 {
			return fmt.Errorf("%w: wipe needs at least one partition", ErrInvalidDocument)
		}
	case FlashImage:
		if v.Partition == "" || v.File == "" {
			return fmt.Errorf("%w: flash_image needs partition and file", ErrInvalidDocument)
		}
		if strings.ContainsAny(v.Slot, " \t_") {
			return fmt.Errorf("%w: invalid slot %q", ErrInvalidDocument, v.Slot)
		}
	case FlashZip:
		if v.File == "" {
			return fmt.Errorf("%w: flash_zip needs file", ErrInvalidDocument)
		}
	case FlashRecovery:
		if v.File == "" {
			return fmt.Errorf("%w: flash_recovery needs file", ErrInvalidDocument)
		}
		switch v.Slot {
		case "", SlotA, SlotB, SlotAll:
		default:
			return fmt.Errorf("%w: invalid recovery slot %q", ErrInvalidDocument, v.Slot)
		}
	case Sideload:
		if v.File == "" {
			return fmt.Errorf("%w: sideload needs file", ErrInvalidDocument)
		}
	case Reboot:
		if strings.TrimSpace(v.Mode) == "" {
			return fmt.Errorf("%w: reboot mode is required", ErrInvalidDocument)
		}
	case Wait:
	case nil:
		return fmt.Errorf("%w: nil step", ErrInvalidDocument)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownStepType, s)
	}
	return nil
}

// Marshal encodes a plan as a YAML document that Parse accepts.
func Marshal(p *Plan) ([]byte, error) {
	type yamlPlan struct {
		Name            string         `yaml:"name"`
		Device          string         `yaml:"device"`
		Version         string         `yaml:"version,omitempty"`
		ContinueOnError bool           `yaml:"continue_on_error"`
		StepTimeout     string         `yaml:"step_timeout,omitempty"`
		Steps           []stepDocument `yaml:"steps"`
	}
	out := yamlPlan{
		Name:            p.Name,
		Device:          p.DeviceTarget,
		Version:         p.Version,
		ContinueOnError: p.ContinueOnError,
		Steps:           make([]stepDocument, len(p.Steps)),
	}
	if p.StepTimeout > 0 {
		out.StepTimeout = p.StepTimeout.String()
	}
	for i, s := range p.Steps {
		out.Steps[i] = stepDocument{Type: s.Kind(), Params: s}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	return buf.Bytes(), nil
}
