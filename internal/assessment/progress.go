package assessment

// Advisory progress milestones.
const (
	ProgressStart     = 10
	ProgressCap       = 90
	ProgressCompleted = 95
	ProgressReady     = 100
)

// Progress maps a round number to min(10 + 10*round, 90).
func Progress(round int) int {
	if round < 0 {
		round = 0
	}
	return min(ProgressStart+10*round, ProgressCap)
}
