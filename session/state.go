// Package session implements the connection lifecycle state machine:
// listening for a client, handshaking, steady-state draining of client
// messages, pausing, and the terminal broadcast-and-tear-down path.
package session

import "github.com/ljwoods2/imdbridge/wire"

// State is one of the session's lifecycle states.
type State int32

const (
	Listening State = iota
	Handshaking
	Connected
	Paused
	Inactive
	Terminating
)

func (s State) String() string {
	switch s {
	case Listening:
		return "LISTENING"
	case Handshaking:
		return "HANDSHAKING"
	case Connected:
		return "CONNECTED"
	case Paused:
		return "PAUSED"
	case Inactive:
		return "INACTIVE"
	case Terminating:
		return "TERMINATING"
	default:
		return "UNKNOWN"
	}
}

// Action reports what the caller must do in response to a drained client
// message, beyond the state transition itself.
type Action int32

const (
	ActionNone Action = iota
	ActionApplySteering
	ActionDisconnect
	ActionKill
)

// Machine is the session state machine. Zero value is not usable; use New.
type Machine struct {
	state     State
	version   int32
	trate     int32
	terminate bool
	info      wire.SessionInfo
}

// New creates a machine starting in LISTENING, negotiating the given
// protocol version with the given initial emission rate.
func New(version int32, trate int32) *Machine {
	return &Machine{state: Listening, version: version, trate: trate}
}

func (m *Machine) State() State                 { return m.state }
func (m *Machine) Terminate() bool               { return m.terminate }
func (m *Machine) Trate() int32                  { return m.trate }
func (m *Machine) SessionInfo() wire.SessionInfo { return m.info }
func (m *Machine) Version() int32                { return m.version }

// OnAccept transitions LISTENING or INACTIVE to HANDSHAKING once a client
// has been accepted.
func (m *Machine) OnAccept() {
	m.state = Handshaking
}

// OnHandshakeOK completes the handshake: GO was received, and for v3 the
// negotiated SessionInfo is recorded.
func (m *Machine) OnHandshakeOK(info wire.SessionInfo) {
	m.info = info
	m.state = Connected
}

// OnHandshakeFail records a failed handshake (protocol mismatch or
// timeout): it sets the terminate flag, which is fatal for the run, and
// moves the session to INACTIVE.
func (m *Machine) OnHandshakeFail() {
	m.terminate = true
	m.state = Inactive
}

// OnNoClient records a missed (non-blocking) accept attempt.
func (m *Machine) OnNoClient() {
	if m.state == Listening {
		m.state = Inactive
	}
}

// OnMessage applies one drained client message and reports the action
// the caller must additionally take.
func (m *Machine) OnMessage(t wire.MsgType, length int32) Action {
	switch t {
	case wire.Pause:
		if m.version == wire.V2 {
			if m.state == Paused {
				m.state = Connected
			} else {
				m.state = Paused
			}
		} else {
			m.state = Paused // v3: idempotent
		}
		return ActionNone
	case wire.Resume:
		m.state = Connected // idempotent
		return ActionNone
	case wire.Trate:
		if length > 0 {
			m.trate = length
		}
		return ActionNone
	case wire.MDComm:
		return ActionApplySteering
	case wire.Disconnect:
		m.state = Listening
		return ActionDisconnect
	case wire.Kill:
		m.terminate = true
		m.state = Terminating
		return ActionKill
	default:
		return ActionNone
	}
}

// ShouldEmit reports whether end-of-step processing at MD step `step`
// should assemble and send a frame: the session must be CONNECTED (not
// paused, not without a client) and step must land on a trate boundary.
func (m *Machine) ShouldEmit(step int64) bool {
	if m.state != Connected {
		return false
	}
	if m.trate <= 0 {
		return false
	}
	return step%int64(m.trate) == 0
}
