package message

import (
	"fmt"
	"strings"
)

// Message is the envelope of every request, reply and event.
type Message struct {
	Path     string  `cbor:"path"`
	Args     []any   `cbor:"args,omitempty"`
	UID      string  `cbor:"uid,omitempty"`
	Sender   Address `cbor:"sender"`
	Receiver Address `cbor:"receiver"`

	// Protocol names the transport the message arrived on. Not encoded.
	Protocol string `cbor:"-"`

	// Answer is the reply a command prepared for the caller to send.
	// Not encoded.
	Answer *Message `cbor:"-"`
}

// New creates a message for path.
func New(path string, args ...any) *Message {
	return &Message{Path: path, Args: args}
}

// To sets the receiver and returns m.
func (m *Message) To(addr Address) *Message {
	m.Receiver = addr
	return m
}

// Validate checks the fields required on the wire.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidMessage, m.Path)
	}
	return nil
}

// reply builds a message back to the sender of m.
func (m *Message) reply(suffix string, args []any) *Message {
	return &Message{
		Path:     m.Path + suffix,
		Args:     args,
		UID:      m.UID,
		Sender:   m.Receiver,
		Receiver: m.Sender,
		Protocol: m.Protocol,
	}
}

// OK builds the success reply of m.
func (m *Message) OK(args ...any) *Message {
	return m.reply(SuffixOK, args)
}

// Reply builds a plain answer to m.
func (m *Message) Reply(args ...any) *Message {
	return m.reply(SuffixReply, args)
}

// Error builds the failure reply of m. The description of err is the last
// argument.
func (m *Message) Error(err error, args ...any) *Message {
	desc := "unknown error"
	if err != nil {
		desc = err.Error()
	}
	return m.reply(SuffixError, append(args, desc))
}

// IsOK reports whether m is a success reply.
func (m *Message) IsOK() bool {
	return strings.HasSuffix(m.Path, SuffixOK)
}

// IsError reports whether m is a failure reply.
func (m *Message) IsError() bool {
	return strings.HasSuffix(m.Path, SuffixError)
}

// ErrorDescription returns the last argument of an error reply.
func (m *Message) ErrorDescription() string {
	if len(m.Args) == 0 {
		return ""
	}
	if s, ok := m.Args[len(m.Args)-1].(string); ok {
		return s
	}
	return fmt.Sprint(m.Args[len(m.Args)-1])
}

// BasePath returns the path without a trailing /ok, /error or /reply.
func (m *Message) BasePath() string {
	return BasePath(m.Path)
}

// BasePath strips a trailing reply suffix from path.
func BasePath(path string) string {
	for _, suffix := range []string{SuffixOK, SuffixError, SuffixReply} {
		if p, ok := strings.CutSuffix(path, suffix); ok && p != "" {
			return p
		}
	}
	return path
}

// ExpectArgs returns ErrArgCount unless m has between minArgs and maxArgs
// arguments. A negative maxArgs means no upper bound.
func (m *Message) ExpectArgs(minArgs, maxArgs int) error {
	n := len(m.Args)
	if n < minArgs || (maxArgs >= 0 && n > maxArgs) {
		return fmt.Errorf("%w for %s: got %d", ErrArgCount, m.Path, n)
	}
	return nil
}

// StringArg returns argument i as a string.
func (m *Message) StringArg(i int) (string, error) {
	if i < 0 || i >= len(m.Args) {
		return "", fmt.Errorf("%w for %s: missing argument %d", ErrArgCount, m.Path, i)
	}
	switch v := m.Args[i].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return fmt.Sprint(m.Args[i]), nil
}

func (m *Message) String() string {
	var b strings.Builder
	b.WriteString(m.Path)
	for _, a := range m.Args {
		fmt.Fprintf(&b, " %v", a)
	}
	if m.UID != "" {
		fmt.Fprintf(&b, " uid=%s", m.UID)
	}
	if !m.Sender.IsZero() {
		fmt.Fprintf(&b, " from=%s", m.Sender)
	}
	if !m.Receiver.IsZero() {
		fmt.Fprintf(&b, " to=%s", m.Receiver)
	}
	return b.String()
}
