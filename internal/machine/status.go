package machine

// Status is a snapshot of the machine for the admin API.
type Status struct {
	Serialnumber    string        `json:"serialnumber"`
	Address         string        `json:"address"`
	OperatingMode   string        `json:"operating_mode"`
	Master          string        `json:"master,omitempty"`
	Slaves          []SlaveStatus `json:"slaves"`
	Fatal           bool          `json:"fatal"`
	Fault           bool          `json:"fault"`
	Cause           string        `json:"cause,omitempty"`
	TimedOut        bool          `json:"timed_out"`
	PendingRequests int           `json:"pending_requests"`
}

// SlaveStatus is the state of one slave machine.
type SlaveStatus struct {
	ID           string `json:"id"`
	Serialnumber string `json:"serialnumber,omitempty"`
	Address      string `json:"address"`
	Driver       string `json:"driver"`
	ControlMode  string `json:"control_mode"`
	Watching     bool   `json:"watching"`
	Errors       int    `json:"errors"`
	Queue        int    `json:"queue"`
}

// Status returns a snapshot of the machine.
func (m *Machine) Status() Status {
	st := Status{
		Serialnumber:    m.serialnumber,
		Address:         m.address.String(),
		OperatingMode:   m.Mode().String(),
		Slaves:          []SlaveStatus{},
		Fatal:           m.state.Fatal(),
		Fault:           m.state.Fault(),
		TimedOut:        m.TimedOut(),
		PendingRequests: m.engine.Pending(),
	}
	if master := m.Master(); !master.IsZero() {
		st.Master = master.String()
	}
	if cause := m.state.Cause(); cause != nil {
		st.Cause = cause.Error()
	}

	for _, sm := range m.SlaveMachines() {
		s := sm.Slave()
		st.Slaves = append(st.Slaves, SlaveStatus{
			ID:           s.ID(),
			Serialnumber: s.Serialnumber,
			Address:      s.Address.String(),
			Driver:       string(s.Driver),
			ControlMode:  s.ControlMode.String(),
			Watching:     sm.Watching(),
			Errors:       sm.Errors(),
			Queue:        sm.QueueLen(),
		})
	}
	return st
}
