package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// JobEvent names an edge in the job state machine.
type JobEvent string

const (
	EventPreprocess JobEvent = "preprocess"
	EventProcess    JobEvent = "process"
	EventComplete   JobEvent = "complete"
	EventFail       JobEvent = "fail"
)

var jobEvents = fsm.Events{
	{Name: string(EventPreprocess), Src: []string{string(JobUploaded)}, Dst: string(JobPreprocessing)},
	{Name: string(EventProcess), Src: []string{string(JobPreprocessing)}, Dst: string(JobProcessing)},
	{Name: string(EventComplete), Src: []string{string(JobProcessing)}, Dst: string(JobCompleted)},
	{Name: string(EventFail), Src: []string{string(JobPreprocessing), string(JobProcessing)}, Dst: string(JobFailed)},
}

// NextStatus returns the status reached by firing ev from the given status.
// Disallowed edges return an error wrapping ErrInvalidState.
func NextStatus(from JobStatus, ev JobEvent) (JobStatus, error) {
	machine := fsm.NewFSM(string(from), jobEvents, fsm.Callbacks{})
	if err := machine.Event(context.Background(), string(ev)); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return from, nil
		}
		return from, fmt.Errorf("%w: cannot %s a job in %s state", ErrInvalidState, ev, from)
	}
	return JobStatus(machine.Current()), nil
}
