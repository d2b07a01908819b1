package enum

// TradePhase is the position of one symbol in the buy -> sell cycle.
type TradePhase int

const (
	PhaseIdle TradePhase = iota
	PhaseCooldown
	PhaseEntrySubmitted
	PhaseEntryFilled
	PhaseExitSubmitted
	PhaseComplete
	PhaseAborted
)

func (p TradePhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCooldown:
		return "cooldown"
	case PhaseEntrySubmitted:
		return "entry_submitted"
	case PhaseEntryFilled:
		return "entry_filled"
	case PhaseExitSubmitted:
		return "exit_submitted"
	case PhaseComplete:
		return "complete"
	case PhaseAborted:
		return "aborted"
	default:
		return ""
	}
}
