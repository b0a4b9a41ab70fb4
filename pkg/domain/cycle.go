package domain

// CyclePhase is the position inside the cycle check.
type CyclePhase string

const (
	CycleIdle              CyclePhase = "idle"
	CycleCheckingSecondary CyclePhase = "checking_secondary"
	CycleCheckingPrimary   CyclePhase = "checking_primary"
)

// CycleState is the transient state of the "do you still feel X?" sub-dialogue.
// It is process-wide and never persisted with a Session.
type CycleState struct {
	Active           bool       `json:"active"`
	Phase            CyclePhase `json:"phase"`
	SessionID        string     `json:"session_id,omitempty"`
	PrimaryFeeling   string     `json:"primary_feeling,omitempty"`
	SecondaryFeeling string     `json:"secondary_feeling,omitempty"`
}

// IdleCycle is the zero-progress cycle state.
func IdleCycle() CycleState {
	return CycleState{Phase: CycleIdle}
}

// CycleView is the read projection of the cycle for presentation layers.
type CycleView struct {
	Eligible bool    `json:"eligible"`
	Active   bool    `json:"active"`
	Question *string `json:"question"`
}
