package models

// =============================================================================
// PROJECT LIFECYCLE
// =============================================================================

// ProjectLifecycle is a tagged view of a project's status and pipeline
// fields. Constructing a project through it makes the clearing rule
// structural: only the pipeline variant carries stage and probability,
// so leaving pipeline status cannot keep stale values behind.
type ProjectLifecycle struct {
	status      string
	stage       string
	probability int
}

// StandardLifecycle returns a non-pipeline lifecycle. Stage and
// probability are absent by construction.
func StandardLifecycle(status string) ProjectLifecycle {
	if status == ProjectStatusPipeline {
		return PipelineLifecycle(StageLead, DefaultDealProbability)
	}
	return ProjectLifecycle{status: status}
}

// PipelineLifecycle returns a pipeline lifecycle carrying stage and
// probability.
func PipelineLifecycle(stage string, probability int) ProjectLifecycle {
	if stage == "" {
		stage = StageLead
	}
	if probability < 0 {
		probability = 0
	}
	if probability > 100 {
		probability = 100
	}
	return ProjectLifecycle{status: ProjectStatusPipeline, stage: stage, probability: probability}
}

// LifecycleOf reads a project's current lifecycle, normalizing any
// inconsistent stored state into one of the two variants.
func LifecycleOf(p *Project) ProjectLifecycle {
	if p.Status != ProjectStatusPipeline {
		return ProjectLifecycle{status: p.Status}
	}
	stage := StageLead
	if p.PipelineStage != nil && *p.PipelineStage != "" {
		stage = *p.PipelineStage
	}
	probability := DefaultDealProbability
	if p.DealProbability != nil {
		probability = *p.DealProbability
	}
	return PipelineLifecycle(stage, probability)
}

// Status returns the lifecycle's project status.
func (l ProjectLifecycle) Status() string {
	return l.status
}

// InPipeline reports whether this is the pipeline variant.
func (l ProjectLifecycle) InPipeline() bool {
	return l.status == ProjectStatusPipeline
}

// Stage returns the pipeline stage and whether one is present.
func (l ProjectLifecycle) Stage() (string, bool) {
	if !l.InPipeline() {
		return "", false
	}
	return l.stage, true
}

// Probability returns the deal probability and whether one is present.
func (l ProjectLifecycle) Probability() (int, bool) {
	if !l.InPipeline() {
		return 0, false
	}
	return l.probability, true
}

// Apply writes the lifecycle onto a project row. The standard variant
// clears stage and probability; the pipeline variant sets them.
func (l ProjectLifecycle) Apply(p *Project) {
	p.Status = l.status
	if !l.InPipeline() {
		p.PipelineStage = nil
		p.DealProbability = nil
		return
	}
	stage := l.stage
	probability := l.probability
	p.PipelineStage = &stage
	p.DealProbability = &probability
}
