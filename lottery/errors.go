package lottery

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSelection = errors.New("missing selection")
	ErrDrawInProgress   = errors.New("a draw is already in progress")
	ErrUnknownStage     = errors.New("unknown stage")
	ErrInvalidGrade     = errors.New("invalid grade")
	ErrInvalidStep      = errors.New("invalid step")
	ErrUnknownWinner    = errors.New("not a recorded winner")
)

// MissingSelectionError is returned when a trigger needs a grade, stage or
// class that has not been chosen yet.
type MissingSelectionError struct {
	What string
}

func (e *MissingSelectionError) Error() string {
	return fmt.Sprintf("missing selection: %s", e.What)
}

func (e *MissingSelectionError) Is(target error) bool {
	return target == ErrMissingSelection
}

// BusyError names the trigger whose draw is still revealing.
type BusyError struct {
	Running Trigger
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDrawInProgress, e.Running)
}

func (e *BusyError) Unwrap() error { return ErrDrawInProgress }
