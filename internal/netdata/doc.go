// Package netdata describes the register layout of a motorized drive.
//
// A drive exposes numbered netdata blocks. Each block is two 16-bit
// holding registers read as one big-endian 32-bit word, so block N starts
// at register N*2. A block is either scalar (one float, int or bool) or
// composite, packing named bit fields such as command:enable or
// command:control_mode.
//
// Keys are written "section" or "section:subkey". A Map resolves keys to
// their block, type and access mode; the codec functions convert between
// Go values and block words.
//
// The built-in map (Default) matches the drive shipped with the machine.
// Other layouts are loaded from YAML with LoadMap:
//
//	name: microflex-e100
//	sections:
//	  - name: command
//	    index: 0
//	    fields:
//	      - {name: enable, type: bool, access: rw, start: 0}
//	      - {name: reset, type: bool, access: rw, start: 2, forget: true}
//	  - {name: velocity, index: 3, type: float, access: r}
package netdata
