// Package mqtt provides the broker connection that carries envelopes
// between motion nodes.
//
// Each node subscribes to its own inbox topic and publishes to the inbox
// of the node it addresses. A retained status document on
// graylogic/motion/status/{node} reports whether the node is online; the
// broker publishes the offline document through the last will when a
// node crashes.
//
// # Usage
//
//	node := mqtt.Topics{}.NodeID(cfg.Machine.Address())
//	client, err := mqtt.Connect(cfg.MQTT, node)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Inbox(node), 1, handle)
//
// Handlers run on the paho router goroutine with ordered delivery, so they
// should only decode and enqueue.
package mqtt
