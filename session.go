package tunbench

//
// Tunnel session state machine
//

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the state of a [TunnelSession].
type SessionState int

// The states of a [TunnelSession], in order.
const (
	SessionInit = SessionState(iota)
	SessionConfigured
	SessionConnected
	SessionMeasured
	SessionTornDown
	SessionRecorded
)

var sessionStateNames = map[SessionState]string{
	SessionInit:       "Init",
	SessionConfigured: "Configured",
	SessionConnected:  "Connected",
	SessionMeasured:   "Measured",
	SessionTornDown:   "TornDown",
	SessionRecorded:   "Recorded",
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// TunnelSession is a single (run, protocol) tunnel between two
// endpoints. Sessions are never reused.
type TunnelSession struct {
	// ID uniquely identifies the session.
	ID string

	// Protocol is the tunnel protocol.
	Protocol ProtocolName

	// Local is the client endpoint.
	Local Endpoint

	// Remote is the server endpoint.
	Remote Endpoint

	// State is the current state.
	State SessionState

	// ConnectionTime is the time it took to connect, or zero.
	ConnectionTime time.Duration

	// Errors contains the errors that occurred in each state.
	Errors []error
}

// NewTunnelSession creates a [TunnelSession] in the [SessionInit] state.
func NewTunnelSession(protocol ProtocolName, local, remote Endpoint) *TunnelSession {
	return &TunnelSession{
		ID:             uuid.NewString(),
		Protocol:       protocol,
		Local:          local,
		Remote:         remote,
		State:          SessionInit,
		ConnectionTime: 0,
		Errors:         nil,
	}
}

// advance moves the session to the next state, remembering err if
// not nil. States are never skipped, so a failure in one state only
// leaves the fields it should have produced empty.
func (s *TunnelSession) advance(next SessionState, err error) {
	if next != s.State+1 {
		panic("tunbench: invalid session state transition")
	}
	if err != nil {
		s.Errors = append(s.Errors, err)
	}
	s.State = next
}
