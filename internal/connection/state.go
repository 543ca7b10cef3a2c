package connection

// State is the connection lifecycle state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Streaming
	Reconnecting
	Stopped
	Disposed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case Reconnecting:
		return "reconnecting"
	case Stopped:
		return "stopped"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// stoppable reports whether Stop has work to do in s.
func (s State) stoppable() bool {
	switch s {
	case Disconnected, Stopped, Disposed:
		return false
	}
	return true
}
