package agent

// State of the control loop
type State string

const (
	StateAwaitingLLM        State = "AWAITING_LLM"
	StateParsed             State = "PARSED"
	StateDispatchingTool    State = "DISPATCHING_TOOL"
	StateErrorRecovery      State = "ERROR_RECOVERY"
	StateTerminatedFinal    State = "TERMINATED_FINAL"
	StateTerminatedExceeded State = "TERMINATED_EXCEEDED"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the loop stops in this state
func (s State) IsTerminal() bool {
	return s == StateTerminatedFinal || s == StateTerminatedExceeded
}
