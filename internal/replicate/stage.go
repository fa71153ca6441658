package replicate

// Stage names a pipeline step.
type Stage string

const (
	StagePreflight Stage = "preflight"
	StageDump      Stage = "dump"
	StageRestore   Stage = "restore"
	StagePublish   Stage = "publish"
	StageSlot      Stage = "slot"
	StageSubscribe Stage = "subscribe"
	StageReport    Stage = "report"

	StageDropPublication    Stage = "drop-publication"
	StageDropSlot           Stage = "drop-slot"
	StageDetachSubscription Stage = "detach-subscription"
	StageDropSubscription   Stage = "drop-subscription"
)

// pipelineStages is the order Run executes in.
var pipelineStages = []Stage{StagePreflight, StageDump, StageRestore, StagePublish, StageSlot, StageSubscribe, StageReport}

// Outcome of a single stage.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeAlreadyExists
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "ok"
	case OutcomeAlreadyExists:
		return "already exists"
	}
	return "failed"
}

// StageResult records what happened in one stage.
type StageResult struct {
	Stage   Stage
	Outcome Outcome
	Err     error
}

// PipelineStages returns the stages Run executes, in order.
func PipelineStages() []Stage { return append([]Stage(nil), pipelineStages...) }

func resultOf(stage Stage, err error) StageResult {
	switch {
	case err == nil:
		return StageResult{Stage: stage, Outcome: OutcomeSuccess}
	case KindOf(err) == ObjectAlreadyExists:
		return StageResult{Stage: stage, Outcome: OutcomeAlreadyExists, Err: err}
	}
	return StageResult{Stage: stage, Outcome: OutcomeFailed, Err: err}
}
