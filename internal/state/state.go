// Package state holds the pieces shared by the client-side slices: the
// transient request flags, lifecycle phases, and the observer hook that
// receives every transition.
package state

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// CodeUnknown is recorded when a failure carries no machine code.
const CodeUnknown = "UNKNOWN_ERROR"

// Phase is the lifecycle stage an action reports.
type Phase string

const (
	Pending   Phase = "pending"
	Fulfilled Phase = "fulfilled"
	Rejected  Phase = "rejected"
	// Local marks synchronous mutations that never touch the network.
	Local Phase = "local"
)

// Failure is a normalized error: a human-readable message and a code.
type Failure struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Flags describe the outcome of the most recent operation.
type Flags struct {
	IsLoading    bool   `json:"isLoading"`
	IsSuccess    bool   `json:"isSuccess"`
	IsError      bool   `json:"isError"`
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    Code   `json:"errorCode"`
}

// Code is a machine-readable failure code. It encodes as null when empty.
type Code string

func (c Code) MarshalJSON() ([]byte, error) {
	if c == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(c))
}

// Begin marks an operation as in flight and clears the previous outcome.
func (f *Flags) Begin() {
	f.IsLoading = true
	f.IsSuccess = false
	f.IsError = false
	f.ErrorMessage = ""
	f.ErrorCode = ""
}

// Succeed settles the operation successfully.
func (f *Flags) Succeed() {
	f.IsLoading = false
	f.IsSuccess = true
	f.IsError = false
	f.ErrorMessage = ""
	f.ErrorCode = ""
}

// Fail settles the operation with an error. An empty message falls back
// to fallback and an empty code to CodeUnknown.
func (f *Flags) Fail(fl Failure, fallback string) {
	f.IsLoading = false
	f.IsSuccess = false
	f.IsError = true
	f.ErrorMessage = fl.Message
	if f.ErrorMessage == "" {
		f.ErrorMessage = fallback
	}
	f.ErrorCode = Code(fl.Code)
	if f.ErrorCode == "" {
		f.ErrorCode = CodeUnknown
	}
}

// Reset returns the flags to their initial values.
func (f *Flags) Reset() {
	*f = Flags{}
}

// Settled reports whether exactly one terminal outcome holds.
func (f Flags) Settled() bool {
	return !f.IsLoading && f.IsSuccess != f.IsError
}

// Event is what observers receive after a transition has been applied.
type Event struct {
	Slice     string
	Action    string
	Phase     Phase
	Note      string
	Seq       uint64
	RequestID string
}

// Observer is notified after every transition.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// LogObserver writes transitions with the standard logger.
type LogObserver struct {
	Logger *log.Logger
}

func (o LogObserver) Observe(e Event) {
	if e.Note == "" {
		return
	}
	logf := log.Printf
	if o.Logger != nil {
		logf = o.Logger.Printf
	}
	if e.Seq > 0 {
		logf("%s: %s %s #%d %s", e.Slice, e.Action, e.Phase, e.Seq, e.Note)
		return
	}
	logf("%s: %s %s %s", e.Slice, e.Action, e.Phase, e.Note)
}

// Sequencer hands out dispatch numbers. They order events for diagnosis;
// stores do not use them to reject stale responses.
type Sequencer struct {
	n atomic.Uint64
}

func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Observers is a concurrency-safe observer registry.
type Observers struct {
	mu   sync.RWMutex
	next uint64
	byID map[uint64]Observer
	ids  []uint64
}

// Add registers o and returns a function that removes it.
func (r *Observers) Add(o Observer) func() {
	if o == nil {
		return func() {}
	}
	r.mu.Lock()
	if r.byID == nil {
		r.byID = make(map[uint64]Observer)
	}
	r.next++
	id := r.next
	r.byID[id] = o
	r.ids = append(r.ids, id)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.byID[id]; !ok {
			return
		}
		delete(r.byID, id)
		for i, cur := range r.ids {
			if cur == id {
				r.ids = append(r.ids[:i:i], r.ids[i+1:]...)
				break
			}
		}
	}
}

// Notify delivers e to every registered observer in registration order.
func (r *Observers) Notify(e Event) {
	r.mu.RLock()
	list := make([]Observer, 0, len(r.ids))
	for _, id := range r.ids {
		list = append(list, r.byID[id])
	}
	r.mu.RUnlock()
	for _, o := range list {
		o.Observe(e)
	}
}
