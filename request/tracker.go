// Package request implements the correlation engine and the fluent
// request builder: unique task ids, a pending-call table with
// at-most-once resolution, timeout scheduling, and send-failure
// propagation.
package request

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crossmq/crossmq/message"
)

// taskIDSpace bounds generated correlation ids. Ids are scoped to the
// process; the space keeps collisions negligible for realistic
// concurrency, and callers with stronger needs supply explicit ids.
const taskIDSpace = 100000

// ErrSendFailed marks a request whose publish was rejected by the
// broker port. The pending entry is resolved immediately; the timeout
// is not waited for.
var ErrSendFailed = errors.New("failed to send request")

// NewTaskID generates a random correlation id.
func NewTaskID() int {
	return rand.Intn(taskIDSpace)
}

// Tracker is the correlation engine: it owns the pending-call table
// and guarantees each entry resolves exactly once. Registration happens
// on sender goroutines while resolution races between receiver and
// timer goroutines, so every resolution path goes through a single
// atomic take on the table.
type Tracker struct {
	mu       sync.Mutex
	pending  map[int]*Future
	timeouts atomic.Int64
	logger   *slog.Logger
}

// NewTracker creates a Tracker. A nil logger falls back to slog.Default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		pending: make(map[int]*Future),
		logger:  logger,
	}
}

// Register inserts a new pending entry and returns its outcome. The id
// must be unique among live requests; re-registering a live id replaces
// the entry and orphans the previous future.
func (t *Tracker) Register(id int) *Future {
	f := newFuture()
	t.mu.Lock()
	t.pending[id] = f
	t.mu.Unlock()
	return f
}

// take removes and returns the pending entry, if present. This is the
// single atomic step both resolution paths race through: whichever
// take succeeds owns the resolution, the loser observes absence.
func (t *Tracker) take(id int) (*Future, bool) {
	t.mu.Lock()
	f, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	return f, ok
}

// takeExact removes the entry only if it is still the given future,
// so a timer firing after its id was reused cannot steal the newer
// entry.
func (t *Tracker) takeExact(id int, f *Future) bool {
	t.mu.Lock()
	cur, ok := t.pending[id]
	if ok && cur == f {
		delete(t.pending, id)
		t.mu.Unlock()
		return true
	}
	t.mu.Unlock()
	return false
}

// Complete resolves the pending entry with a reply, if one is still
// pending, and reports whether resolution happened. A reply arriving
// after the timeout already fired is a no-op.
func (t *Tracker) Complete(id int, resp *message.Response) bool {
	f, ok := t.take(id)
	if !ok {
		return false
	}
	f.resolve(resp, nil)
	return true
}

// Fail resolves the pending entry with a send failure, if still
// pending.
func (t *Tracker) Fail(id int, cause error) bool {
	f, ok := t.take(id)
	if !ok {
		return false
	}
	if cause != nil {
		f.resolve(nil, fmt.Errorf("%w: %v", ErrSendFailed, cause))
	} else {
		f.resolve(nil, ErrSendFailed)
	}
	return true
}

// ScheduleTimeout arms a timer that resolves the entry with a
// synthesized TIMEOUT response if it is still pending when the timer
// fires. Cancellation of the returned timer on early completion is
// best-effort only; a timer firing after the entry is gone is a safe
// no-op.
func (t *Tracker) ScheduleTimeout(id int, d time.Duration) *time.Timer {
	t.mu.Lock()
	f := t.pending[id]
	t.mu.Unlock()
	if f == nil {
		return nil
	}
	return time.AfterFunc(d, func() {
		if t.takeExact(id, f) {
			t.timeouts.Add(1)
			t.logger.Warn("request timeout",
				slog.Int("taskID", id),
				slog.Duration("timeout", d))
			f.resolve(timeoutResponse(), nil)
		}
	})
}

// TimeoutCount returns how many requests have resolved by timeout.
func (t *Tracker) TimeoutCount() int64 {
	return t.timeouts.Load()
}

// PendingCount returns the number of unresolved requests.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	n := len(t.pending)
	t.mu.Unlock()
	return n
}

// Clear drops every pending entry without resolving it. Intended for
// teardown; outstanding futures only resolve through their timers'
// takeExact, which will find the table empty and do nothing.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.pending = make(map[int]*Future)
	t.mu.Unlock()
}

func timeoutResponse() *message.Response {
	return message.NewResponse(message.Envelope{"error": "timeout"}, message.StatusTimeout)
}
