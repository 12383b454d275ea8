package common

// Status tags an Outcome.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
)

// Outcome is the result of answering a question. A degraded outcome still
// carries user-facing text in Answer; Reason holds the machine-readable cause.
//
// An Outcome can be:
//   - Ok: the answer was produced as intended
//   - Degraded: a dependency failed and Answer is an apology or explanation
type Outcome struct {
	Status Status `json:"status"`
	Answer string `json:"answer"`
	Reason string `json:"reason,omitempty"`
}

// Ok returns a successful outcome.
func Ok(answer string) Outcome {
	return Outcome{Status: StatusOK, Answer: answer}
}

// Degraded returns an outcome that replaces a failed answer with text for the user.
func Degraded(answer, reason string) Outcome {
	return Outcome{Status: StatusDegraded, Answer: answer, Reason: reason}
}

// IsOk reports whether the outcome is not degraded.
func (o Outcome) IsOk() bool {
	return o.Status == StatusOK
}
