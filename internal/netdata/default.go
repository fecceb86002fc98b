package netdata

// DefaultMapName is the driver type of the built-in map.
const DefaultMapName = "microflex-e100"

// Netdata indexes of the built-in map.
const (
	IndexCommand           = 0
	IndexStatus            = 1
	IndexErrorCode         = 2
	IndexVelocity          = 3
	IndexPosition          = 4
	IndexPositionRemaining = 5
	IndexTorque            = 6
	IndexCurrent           = 7
	IndexVelocityRef       = 10
	IndexPositionRef       = 11
	IndexTorqueRef         = 12
	IndexAcceleration      = 13
	IndexDeceleration      = 14
	IndexTorqueRiseTime    = 15
	IndexTorqueFallTime    = 16
	IndexDriveTemperature  = 20
	IndexRevision          = 50
)

// Default returns the built-in drive map.
func Default() *Map {
	m, err := NewMap(DefaultMapName, defaultSections()...)
	if err != nil {
		// The table below is static; a failure is a programming error.
		panic(err)
	}
	return m
}

func defaultSections() []Section {
	momentary := func(name string, bit uint) Field {
		return Field{Name: name, Type: TypeBool, Access: AccessReadWrite, Start: bit, Width: 1, Forget: true}
	}
	flag := func(name string, bit uint) Field {
		return Field{Name: name, Type: TypeBool, Access: AccessRead, Start: bit, Width: 1}
	}

	return []Section{
		Composite("command", IndexCommand,
			Field{Name: "enable", Type: TypeBool, Access: AccessReadWrite, Start: 0, Width: 1},
			momentary("cancel", 1),
			momentary("reset", 2),
			momentary("go", 3),
			momentary("stop", 4),
			momentary("set_home", 5),
			momentary("go_home", 6),
			Field{
				Name: "control_mode", Type: TypeInt, Access: AccessReadWrite,
				Start: 16, Width: 8, Unique: true, Values: ControlModeValues(),
			},
		),
		Composite("status", IndexStatus,
			flag("drive_ready", 0),
			flag("drive_enable", 1),
			flag("drive_input", 2),
			flag("motor_brake", 3),
			flag("motor_temp", 4),
			flag("timeout", 5),
			flag("homed", 6),
			flag("moving", 7),
			flag("error", 8),
		),
		Scalar("error_code", IndexErrorCode, TypeInt, AccessRead),
		Scalar("velocity", IndexVelocity, TypeFloat, AccessRead),
		Scalar("position", IndexPosition, TypeFloat, AccessRead),
		Scalar("position_remaining", IndexPositionRemaining, TypeFloat, AccessRead),
		Scalar("torque", IndexTorque, TypeFloat, AccessRead),
		Scalar("current", IndexCurrent, TypeFloat, AccessRead),
		Scalar("velocity_ref", IndexVelocityRef, TypeFloat, AccessReadWrite),
		Scalar("position_ref", IndexPositionRef, TypeFloat, AccessWrite),
		Scalar("torque_ref", IndexTorqueRef, TypeFloat, AccessReadWrite),
		Scalar("acceleration", IndexAcceleration, TypeFloat, AccessReadWrite),
		Scalar("deceleration", IndexDeceleration, TypeFloat, AccessReadWrite),
		Scalar("torque_rise_time", IndexTorqueRiseTime, TypeFloat, AccessReadWrite),
		Scalar("torque_fall_time", IndexTorqueFallTime, TypeFloat, AccessReadWrite),
		Scalar("drive_temperature", IndexDriveTemperature, TypeFloat, AccessRead),
		Scalar("revision", IndexRevision, TypeInt, AccessRead),
	}
}
