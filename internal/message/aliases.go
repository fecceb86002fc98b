package message

// Command paths exchanged between motion nodes.
const (
	PathSlaveRegister = "/slave/register"
	PathSlaveFree     = "/slave/free"
	PathSlaveGet      = "/slave/get"
	PathSlaveSet      = "/slave/set"
	PathSlavePing     = "/slave/ping"

	PathMachineGet         = "/machine/get"
	PathMachineSet         = "/machine/set"
	PathMachineMode        = "/machine/mode"
	PathMachineSlaves      = "/machine/slaves"
	PathMachineSlaveAdd    = "/machine/slave/add"
	PathMachineSlaveRemove = "/machine/slave/remove"
)

// Reply suffixes.
const (
	SuffixOK    = "/ok"
	SuffixError = "/error"
	SuffixReply = "/reply"
)
