package replication

// Phase is the lifecycle state of a Session. Phases only move forward,
// except Failed which can be entered from any phase.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseReceivingSnapshot
	PhaseStreamingOperations
	PhaseClosed
	PhaseFailed
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseReceivingSnapshot:
		return "receiving-snapshot"
	case PhaseStreamingOperations:
		return "streaming-operations"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase ends a session
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseFailed
}
