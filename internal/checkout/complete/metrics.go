package complete

import "time"

// Recorder receives completion outcomes. internal/metrics implements it with
// prometheus collectors.
type Recorder interface {
	ObserveCompletion(outcome string, elapsed time.Duration)
	ObserveCompensation(step string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCompletion(string, time.Duration) {}
func (nopRecorder) ObserveCompensation(string, bool)        {}
