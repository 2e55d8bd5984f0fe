package models

// Outcome distinguishes a state change from a boundary no-op.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoOp    Outcome = "noop"
)

// Result is returned by every synchronizer command.
type Result struct {
	Outcome Outcome
	Version int
}

// Applied builds an applied result at the given version.
func Applied(version int) Result {
	return Result{Outcome: OutcomeApplied, Version: version}
}

// NoOp builds a no-op result at the given version.
func NoOp(version int) Result {
	return Result{Outcome: OutcomeNoOp, Version: version}
}

// IsNoOp reports whether nothing changed.
func (r Result) IsNoOp() bool {
	return r.Outcome == OutcomeNoOp
}
