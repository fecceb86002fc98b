// Package command implements the protocol commands of a motion node.
//
// Each command is an Executable bound to one message path. The Dispatcher
// registers an exclusive router filter per command and runs the command
// according to its capability:
//
//   - Buffered commands (/machine/set, /slave/set) run in arrival order on
//     a single FIFO worker, so setpoints are applied in the order sent.
//   - Synced commands (/machine/mode, /machine/slave/add,
//     /machine/slave/remove) run one at a time on their own worker.
//   - All other commands run on a goroutine each.
//
// The reply a command leaves in Message.Answer is sent back to the sender
// through the machine once Execute returns.
//
// A non-exclusive prefix filter on "/" is registered ahead of the commands:
// while the machine is a slave, any message from its master resets the
// slave timeout.
package command
