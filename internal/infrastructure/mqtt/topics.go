package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every ipmap topic.
const TopicPrefix = "ipmap"

// Topics provides builders for ipmap MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Device("Kitchen Dimmer")
//	// Returns: "ipmap/device/kitchen-dimmer"
type Topics struct{}

// Mapping returns the retained topic carrying the full mapping document.
//
// Example: ipmap/mapping
func (Topics) Mapping() string {
	return TopicPrefix + "/mapping"
}

// Device returns the retained topic for one matched device. The display
// name is reduced to a topic-safe slug.
//
// Example: ipmap/device/kitchen-dimmer
func (Topics) Device(name string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefix, Slug(name))
}

// Status returns the retained online/offline status topic.
//
// Example: ipmap/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// Run returns the retained topic carrying the last run summary.
//
// Example: ipmap/run
func (Topics) Run() string {
	return TopicPrefix + "/run"
}

// Refresh returns the command topic that requests a new mapping run.
//
// Example: ipmap/command/refresh
func (Topics) Refresh() string {
	return TopicPrefix + "/command/refresh"
}

// AllDevices returns a pattern matching every device topic.
//
// Pattern: ipmap/device/+
func (Topics) AllDevices() string {
	return TopicPrefix + "/device/+"
}

// AllTopics returns a pattern matching all ipmap topics.
//
// Pattern: ipmap/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// Slug lowercases name and replaces every run of characters outside
// [a-z0-9] with a single hyphen. MQTT wildcards and separators never
// survive. An empty result becomes "unnamed".
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}
