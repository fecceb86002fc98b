// Package message defines the envelope exchanged between motion nodes.
//
// A Message carries a slash-delimited path ("/slave/set"), ordered
// arguments, an optional correlation uid and the sender and receiver
// addresses. Replies reuse the request path with a suffix: "/ok" on
// success, "/error" on failure (the description is the last argument)
// and "/reply" for plain answers.
//
// Envelopes travel as CBOR:
//
//	data, err := message.Marshal(message.New("/slave/get", "machine:velocity"))
//	...
//	m, err := message.Unmarshal(data)
package message
