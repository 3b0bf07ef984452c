package playback

// State is the lifecycle state of a Controller. Seeking is tracked
// separately and overlays Streaming or Paused.
type State int

// Controller states.
const (
	StateIdle State = iota
	StateConnecting
	StateInitializing
	StateStreaming
	StatePaused
	StateAborting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateAborting:
		return "aborting"
	default:
		return "unknown"
	}
}
