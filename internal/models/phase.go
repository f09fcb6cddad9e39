package models

import "fmt"

const (
	MinPhase = 1
	MaxPhase = 6
)

func ValidPhase(phase int) bool {
	return phase >= MinPhase && phase <= MaxPhase
}

// PhaseTitle returns the label shown next to a client's phase.
func PhaseTitle(phase int) string {
	if phase == 1 {
		return "Phase 1: The Audit"
	}
	return fmt.Sprintf("Phase %d", phase)
}
