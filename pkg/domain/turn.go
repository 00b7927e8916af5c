package domain

// Task is a human readable task description. Its text is its identity.
type Task string

// ModelTurn is the decoded reply of the primary model for one turn. It is never persisted.
type ModelTurn struct {
	// Action is the raw action fragment (object, list or string) as the model wrote it.
	Action any
	// StepResult is the outcome the model expects from this step.
	StepResult string
	// NextStep is the model's own guidance for the following turn.
	NextStep string
	// SelfComplete is the model's own claim that the task is done.
	SelfComplete bool
	// Raw is the reply text as received.
	Raw string
}

// Verdict is the completion judgment for the active task.
type Verdict struct {
	ShouldComplete bool   `json:"should_complete"`
	Reason         string `json:"reason"`
}

// ResponseClass is the heuristic classification of the last action response.
type ResponseClass int

const (
	ClassUnclassified ResponseClass = iota
	ClassNewTaskStart
	ClassSuccessWithData
	ClassSuccessNoData
	ClassSuccessUnclassified
	ClassError
)

func (c ResponseClass) String() string {
	switch c {
	case ClassNewTaskStart:
		return "new-task-start"
	case ClassSuccessWithData:
		return "success-with-data"
	case ClassSuccessNoData:
		return "success-no-data"
	case ClassSuccessUnclassified:
		return "success-no-classification"
	case ClassError:
		return "error"
	default:
		return "unclassified"
	}
}
