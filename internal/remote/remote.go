// Package remote accepts run control commands over MQTT.
//
// A message on flashline/command/<key>/<verb> (pause, resume or cancel)
// is applied to the run supervised under <key>. The payload is ignored.
package remote

import (
	"errors"
	"fmt"

	"github.com/nerrad567/flashline-core/internal/infrastructure/mqtt"
)

// Verbs accepted on the command topics.
const (
	VerbPause  = "pause"
	VerbResume = "resume"
	VerbCancel = "cancel"
)

// ErrUnknownVerb is returned for a command topic with an unsupported verb.
var ErrUnknownVerb = errors.New("remote: unknown verb")

// Controller is the run control surface. engine.Supervisor satisfies it.
type Controller interface {
	Pause(key string)
	Resume(key string) error
	Cancel(key string) error
}

// Subscriber registers topic handlers. mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface used by the Handler.
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

// Handler routes command messages to a Controller.
type Handler struct {
	ctrl   Controller
	logger Logger
}

// NewHandler creates a handler for ctrl.
func NewHandler(ctrl Controller, logger Logger) *Handler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Handler{ctrl: ctrl, logger: logger}
}

// Register subscribes to every run command topic at QoS 1.
func (h *Handler) Register(sub Subscriber) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllRunCommands(), 1, h.Handle); err != nil {
		return fmt.Errorf("subscribing to run commands: %w", err)
	}
	return nil
}

// Handle applies one command message.
func (h *Handler) Handle(topic string, _ []byte) error {
	key, verb, ok := mqtt.ParseRunCommand(topic)
	if !ok {
		return fmt.Errorf("%w: malformed topic %q", ErrUnknownVerb, topic)
	}

	var err error
	switch verb {
	case VerbPause:
		h.ctrl.Pause(key)
	case VerbResume:
		err = h.ctrl.Resume(key)
	case VerbCancel:
		err = h.ctrl.Cancel(key)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownVerb, verb)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, key, err)
	}

	h.logger.Info("remote run command applied", "key", key, "verb", verb)
	return nil
}
