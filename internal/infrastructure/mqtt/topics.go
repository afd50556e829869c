package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every Flashline topic.
const TopicPrefix = "flashline"

// Topics provides builders for Flashline MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Event("plan.update") // "flashline/event/plan/update"
type Topics struct{}

// Event returns the topic for an event channel. Dots in the channel name
// become topic levels so subscribers can filter with wildcards.
func (Topics) Event(channel string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, strings.ReplaceAll(channel, ".", "/"))
}

// Devices returns the retained topic carrying the latest device list.
func (Topics) Devices() string {
	return TopicPrefix + "/devices"
}

// RunCommand returns the topic accepting a control verb for one run key.
//
// Example: flashline/command/R58N123ABC/pause
func (Topics) RunCommand(key, verb string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, key, verb)
}

// AllRunCommands matches every run control topic.
func (Topics) AllRunCommands() string {
	return TopicPrefix + "/command/+/+"
}

// StationStatus returns the retained online/offline topic.
func (Topics) StationStatus() string {
	return TopicPrefix + "/station/status"
}

// ParseRunCommand splits a run control topic into key and verb.
func ParseRunCommand(topic string) (key, verb string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found {
		return "", "", false
	}
	key, verb, found = strings.Cut(rest, "/")
	if !found || key == "" || verb == "" || strings.Contains(verb, "/") {
		return "", "", false
	}
	return key, verb, true
}
