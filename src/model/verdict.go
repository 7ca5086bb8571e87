package model

// Verdict is the decision engine's output: one action plus the winning
// reason. Confidence is the strongest agreeing vote, 0-100.
type Verdict struct {
	Action     Action  `json:"action"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

func Hold(reason string) Verdict {
	return Verdict{Action: ActionHold, Reason: reason}
}
