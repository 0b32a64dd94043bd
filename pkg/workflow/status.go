package workflow

import (
	"fmt"
	"log"
	"time"

	"podcast-transcriber/pkg/domain"
)

// statusRecorder accumulates the ordered progress log for one invocation.
// Events are appended strictly in the order pipeline progress happens; the
// rendered list is the only progress signal the caller sees during a
// synchronous run.
type statusRecorder struct {
	events []domain.StatusEvent
	now    func() time.Time
}

func newStatusRecorder(now func() time.Time) *statusRecorder {
	if now == nil {
		now = time.Now
	}
	return &statusRecorder{now: now}
}

// Log appends a status event and mirrors it to the process log.
func (r *statusRecorder) Log(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	r.events = append(r.events, domain.StatusEvent{At: r.now(), Message: message})
	log.Printf("workflow: %s", message)
}

// Rendered returns the events formatted for the WorkflowResult.
func (r *statusRecorder) Rendered() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.String())
	}
	return out
}
