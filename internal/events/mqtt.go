package events

import (
	"github.com/nerrad567/flashline-core/internal/infrastructure/mqtt"
)

// JSONPublisher is the subset of the MQTT client used by MQTTSink.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// MQTTSink mirrors events onto the broker under flashline/event/...
// Device lists are additionally published retained on flashline/devices so
// late subscribers see the current snapshot.
type MQTTSink struct {
	client JSONPublisher
	topics mqtt.Topics
	logger Logger
}

// NewMQTTSink creates a sink publishing through client.
func NewMQTTSink(client JSONPublisher, logger Logger) *MQTTSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTSink{client: client, logger: logger}
}

// Publish implements Sink. Failures are logged; events are not retried.
func (s *MQTTSink) Publish(channel string, payload any) {
	if s.client == nil || !s.client.IsConnected() {
		return
	}

	if err := s.client.PublishJSON(s.topics.Event(channel), payload, false); err != nil {
		s.logger.Warn("mqtt event publish failed", "channel", channel, "error", err)
	}

	if channel == ChannelDeviceStatus {
		if err := s.client.PublishJSON(s.topics.Devices(), payload, true); err != nil {
			s.logger.Warn("mqtt device snapshot publish failed", "error", err)
		}
	}
}
