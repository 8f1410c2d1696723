package host

import "fmt"

type OutcomeKind int

const (
	OutcomeSaved OutcomeKind = iota
	OutcomeCancelled
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSaved:
		return "saved"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

const savedMessage = "Recording saved successfully"

// Outcome is the result of one persist attempt. Path is set only for
// OutcomeSaved.
type Outcome struct {
	Kind    OutcomeKind
	Path    string
	Message string
}

func Saved(path string) Outcome {
	return Outcome{Kind: OutcomeSaved, Path: path, Message: savedMessage}
}

func Cancelled() Outcome { return Outcome{Kind: OutcomeCancelled} }

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: "Failed to save recording: " + err.Error()}
}

func (o Outcome) Success() bool { return o.Kind == OutcomeSaved }

func (o Outcome) IsCancelled() bool { return o.Kind == OutcomeCancelled }
