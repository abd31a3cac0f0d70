package groundtruth

import (
	"errors"
	"fmt"
)

// ErrMissingSolver is returned when a stack algorithm runs without a solver.
var ErrMissingSolver = errors.New("groundtruth: no stack solver configured")

// ErrMetricsAlreadySet is returned when metrics are attached twice.
var ErrMetricsAlreadySet = errors.New("groundtruth: metrics already set")

// StageError attributes a run failure to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: s, Err: err}
}
