package mqtt

import "strings"

// TopicPrefix is the root of every motion topic.
const TopicPrefix = "graylogic/motion"

// Topics builds the topic names used between motion nodes.
//
// Every node owns an inbox topic named after its protocol address
// (host and port joined by an underscore, dots kept):
//
//	mqtt.Topics{}.Inbox("10.0.0.12_6969")
//	// graylogic/motion/node/10.0.0.12_6969
type Topics struct{}

// NodeID converts a "host:port" address to the topic-safe node id.
func (Topics) NodeID(address string) string {
	return strings.NewReplacer(":", "_", "/", "_", "+", "_", "#", "_").Replace(address)
}

// Inbox is the topic a node receives envelopes on.
func (Topics) Inbox(node string) string {
	return TopicPrefix + "/node/" + node
}

// Status is the retained online/offline status topic of a node.
func (Topics) Status(node string) string {
	return TopicPrefix + "/status/" + node
}

// AllStatus matches the status topic of every node.
func (Topics) AllStatus() string {
	return TopicPrefix + "/status/+"
}
