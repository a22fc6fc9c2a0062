package workflow

// Progress is the cosmetic phase shown while a draft is being generated.
// The orchestrator runs all phases behind a single remote call, so the
// counter is advanced locally around that call and reflects nothing the
// backend reports.
type Progress int

const (
	ProgressIdle Progress = iota
	ProgressResearch
	ProgressWriting
	ProgressValidation
	ProgressHumanization
	ProgressReady
)

var progressLabels = map[Progress]string{
	ProgressResearch:     "Deep Research Agent analyzing topic...",
	ProgressWriting:      "LinkedIn Writer Agent drafting post...",
	ProgressValidation:   "Fact Validation Agent checking accuracy...",
	ProgressHumanization: "Humanization Agent refining content...",
	ProgressReady:        "Content package ready!",
}

// Label returns the phase description shown next to the progress indicator.
func (p Progress) Label() string {
	return progressLabels[p]
}

// Phases lists the non-idle phases in display order.
func Phases() []Progress {
	return []Progress{ProgressResearch, ProgressWriting, ProgressValidation, ProgressHumanization, ProgressReady}
}

// Step is one phase of the draft indicator.
type Step struct {
	Label  string `json:"label"`
	Done   bool   `json:"done"`
	Active bool   `json:"active"`
}

// Steps returns every phase with its position relative to p. While idle
// no step is done or active.
func (p Progress) Steps() []Step {
	phases := Phases()
	steps := make([]Step, len(phases))
	for i, ph := range phases {
		steps[i] = Step{
			Label:  ph.Label(),
			Done:   p != ProgressIdle && ph < p,
			Active: ph == p,
		}
	}
	return steps
}
