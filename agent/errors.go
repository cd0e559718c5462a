package agent

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies stage failures for the fallback policy.
type ErrorKind int

const (
	// KindCapability is a failed or unusable model/search call; the stage has a fallback.
	KindCapability ErrorKind = iota + 1
	// KindPartialData means the call worked but produced nothing usable.
	KindPartialData
	// KindFatal ends the run; the session gets an apology instead of an answer.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindCapability:
		return "capability"
	case KindPartialData:
		return "partial_data"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Stage names a research graph node.
type Stage string

const (
	StageGenerateQuery Stage = "generate_query"
	StageWebResearch   Stage = "web_research"
	StageReflection    Stage = "reflection"
	StageFinalize      Stage = "finalize_answer"
)

// StageError is a failure attributed to one stage of the research loop.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

var (
	ErrNoQueries        = errors.New("no search queries generated")
	ErrNoQuestion       = errors.New("session has no user question")
	ErrTransitionBudget = errors.New("transition budget exhausted")
)

func stageError(stage Stage, kind ErrorKind, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// KindOf reports the kind of err. Cancellation is always fatal; unclassified errors count as
// capability failures.
func KindOf(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindCapability
}
