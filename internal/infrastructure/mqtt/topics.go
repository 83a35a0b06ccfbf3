package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configuration leaves the prefix empty.
const DefaultTopicPrefix = "emulator"

// Topics builds emulator MQTT topics under one prefix.
// Using these helpers keeps topic naming consistent between publishers and
// subscribers.
//
//	topics := mqtt.NewTopics("emulator")
//	topics.Command("camera") // "emulator/command/camera"
type Topics struct {
	prefix string
}

// NewTopics returns topic builders for prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	return t.root()
}

func (t Topics) root() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Command returns the topic on which a device accepts commands.
//
// Example: emulator/command/microscope
func (t Topics) Command(label string) string {
	return fmt.Sprintf("%s/command/%s", t.root(), label)
}

// Response returns the topic for the answer to one command.
//
// Example: emulator/response/camera/0b6f...
func (t Topics) Response(label, requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", t.root(), label, requestID)
}

// Health returns the retained health topic for a device.
//
// Example: emulator/health/camera
func (t Topics) Health(label string) string {
	return fmt.Sprintf("%s/health/%s", t.root(), label)
}

// SystemStatus returns the retained process status topic.
//
// Example: emulator/system/status
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// AllCommands matches commands for every device.
func (t Topics) AllCommands() string {
	return t.root() + "/command/+"
}

// AllResponses matches every response.
func (t Topics) AllResponses() string {
	return t.root() + "/response/#"
}

// AllHealth matches every device health topic.
func (t Topics) AllHealth() string {
	return t.root() + "/health/+"
}

// All matches every emulator topic.
func (t Topics) All() string {
	return t.root() + "/#"
}

// LabelFromCommand extracts the device label from a command topic.
// It returns false for topics outside this prefix's command namespace.
func (t Topics) LabelFromCommand(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.root()+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// ValidLevel reports whether s can be used as a single topic level:
// non-empty, with no separator, wildcard or NUL.
func ValidLevel(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#\x00")
}
