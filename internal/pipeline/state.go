package pipeline

// State is the orchestrator's position in a run.
type State string

const (
	StateIdle            State = "idle"
	StateDiscovering     State = "discovering"
	StatePlanning        State = "planning"
	StateUploadingBatch  State = "uploading"
	StateExtractingBatch State = "extracting"
	StateSummarizing     State = "summarizing"
	StateArchiving       State = "archiving"
	StateDone            State = "done"
	StateFailed          State = "failed"
	// StateNoImages is the clean early exit when discovery finds nothing.
	StateNoImages State = "no_images"
)

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateNoImages:
		return true
	default:
		return false
	}
}
