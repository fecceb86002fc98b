// Package machine implements the operating-mode state machine of a motion
// node.
//
// A Machine owns the local drive driver and is in one of three modes:
//
//   - standalone: only the local drive is driven
//   - master: every registered slave mirrors the local setpoints through
//     its slave.SlaveMachine
//   - slave: a master drives this node; a quiet master disables the drive
//     after the slave timeout
//
// Keys are "machine:<attr>" or "drive:<attr>". Machine attributes
// (operating_mode, serialnumber, slaves, ...) are answered by the key table
// of the active mode; every other key is passed to the drive driver, so
// "machine:velocity_ref" and "drive:velocity_ref" name the same register.
//
// Inbound messages enter through Handle. Replies resolve their pending
// request in the correlation engine; everything else goes to the installed
// Handler, normally the command dispatcher.
package machine
