package agent

import "fmt"

// Stage names one step of the generation pipeline.
type Stage string

const (
	StageDraft     Stage = "draft"
	StageVisualize Stage = "visualize"
	StageEvaluate  Stage = "evaluate"
)

// Stages lists the pipeline stages in their natural order.
var Stages = []Stage{StageDraft, StageVisualize, StageEvaluate}

// Directory maps each stage to the agent deployed for it. The IDs are opaque
// platform identifiers fixed at deployment time.
type Directory struct {
	Orchestrator string
	Visual       string
	Judge        string
}

// AgentFor returns the agent ID serving stage.
func (d Directory) AgentFor(stage Stage) string {
	switch stage {
	case StageDraft:
		return d.Orchestrator
	case StageVisualize:
		return d.Visual
	case StageEvaluate:
		return d.Judge
	}
	return ""
}

// Validate checks that every stage has an agent.
func (d Directory) Validate() error {
	for _, s := range Stages {
		if d.AgentFor(s) == "" {
			return fmt.Errorf("agent: no agent configured for stage %q", s)
		}
	}
	return nil
}
