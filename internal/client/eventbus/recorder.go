package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// Recorder buffers the domain events raised during one sync run so they can
// be published together, in receipt order, once the run has finished.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// supersededBy lists, per deletion namespace, the change namespaces of the
// same object that the deletion makes moot within one run.
var supersededBy = map[string][]string{
	AttributeDeleted: {AttributeChanged},
	SettingDeleted:   {SettingChanged},
}

// Events returns the recorded events in receipt order with two kinds of
// redundancy removed. An event repeating the namespace, object id and payload
// of the previous event kept for that object is a duplicate transition and is
// dropped. A change event followed later in the run by a deletion of the same
// object is dropped as superseded. Every other event is a separate state
// change and is kept.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	type key struct{ ns, id string }
	deleted := make(map[key]int)
	for i, ev := range r.events {
		if ev.ObjectID == "" {
			continue
		}
		for _, ns := range supersededBy[ev.Namespace] {
			deleted[key{ns, ev.ObjectID}] = i
		}
	}

	lastKept := make(map[key][]byte)
	out := make([]Event, 0, len(r.events))
	for i, ev := range r.events {
		if ev.ObjectID == "" {
			out = append(out, ev)
			continue
		}
		k := key{ev.Namespace, ev.ObjectID}
		if at, ok := deleted[k]; ok && at > i {
			continue
		}
		state, err := json.Marshal(ev.Data)
		if err == nil {
			if prev, ok := lastKept[k]; ok && bytes.Equal(prev, state) {
				continue
			}
			lastKept[k] = state
		} else {
			delete(lastKept, k)
		}
		out = append(out, ev)
	}
	return out
}

// Flush publishes the events returned by Events to p and empties the
// recorder. It returns the number of events published; a nil p drops them.
func (r *Recorder) Flush(p Publisher) int {
	events := r.Events()
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()

	if p == nil {
		return 0
	}
	for _, ev := range events {
		p.Publish(ev)
	}
	return len(events)
}

type recorderKey struct{}

// WithRecorder returns a context routing Emit to r.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

func RecorderFrom(ctx context.Context) (*Recorder, bool) {
	r, ok := ctx.Value(recorderKey{}).(*Recorder)
	return r, ok
}

// Emit records ev on the run recorder carried by ctx, or publishes it right
// away when there is none.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if r, ok := RecorderFrom(ctx); ok {
		r.Record(ev)
		return
	}
	if p != nil {
		p.Publish(ev)
	}
}
