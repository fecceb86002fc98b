// Package transport carries message envelopes between motion nodes over
// MQTT.
//
// Every node subscribes to its inbox topic
// (graylogic/motion/node/{host}_{port}). MQTT.Send encodes a message with
// the CBOR codec and publishes it to the inbox of its receiver; inbound
// payloads are decoded, tagged with the "mqtt" protocol and passed to the
// installed Handler, normally the machine.
package transport
