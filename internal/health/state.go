package health

// State is the observed health of a stream.
type State int32

const (
	Unknown State = iota
	Healthy
	Degraded
	Stale
	Reconnecting
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Stale:
		return "stale"
	case Reconnecting:
		return "reconnecting"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	}
	return "invalid"
}
