package request_test

import (
	"sync"
	"testing"
	"time"

	"github.com/crossmq/crossmq/message"
	"github.com/crossmq/crossmq/request"
)

func reply(fields message.Envelope) *message.Response {
	return message.NewResponse(fields, message.StatusSuccess)
}

func TestTracker_CompleteResolvesAndRemoves(t *testing.T) {
	tr := request.NewTracker(nil)
	fut := tr.Register(7)

	if !tr.Complete(7, reply(message.Envelope{"ok": true})) {
		t.Fatal("Complete() = false, want true for a pending entry")
	}
	if tr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", tr.PendingCount())
	}

	resp, err := fut.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !resp.Bool("ok") {
		t.Error("resolved response lost its payload")
	}

	// second resolution attempt observes absence
	if tr.Complete(7, reply(nil)) {
		t.Error("Complete() = true on an already-resolved entry")
	}
}

func TestTracker_TimeoutSynthesizesResponse(t *testing.T) {
	tr := request.NewTracker(nil)
	fut := tr.Register(9)
	tr.ScheduleTimeout(9, 30*time.Millisecond)

	start := time.Now()
	resp, err := fut.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !resp.Status().IsTimeout() {
		t.Errorf("Status() = %v, want TIMEOUT", resp.Status())
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout fired after %v, want ~30ms", elapsed)
	}
	if tr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0 (no leak)", tr.PendingCount())
	}
}

func TestTracker_ReplyBeatsTimeout(t *testing.T) {
	tr := request.NewTracker(nil)
	fut := tr.Register(11)
	timer := tr.ScheduleTimeout(11, 50*time.Millisecond)

	if !tr.Complete(11, reply(message.Envelope{"value": 1})) {
		t.Fatal("Complete() = false, want true")
	}

	resp, err := fut.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if resp.Status().IsTimeout() {
		t.Error("reply arrived first but outcome is TIMEOUT")
	}

	// let the timer fire anyway: it must be a no-op
	if timer != nil {
		time.Sleep(80 * time.Millisecond)
	}
	if got, _ := fut.Wait(); got.Int("value") != 1 {
		t.Error("late timeout overwrote the resolved outcome")
	}
}

func TestTracker_ConcurrentResolutionIsExactlyOnce(t *testing.T) {
	for i := 0; i < 200; i++ {
		tr := request.NewTracker(nil)
		fut := tr.Register(i)

		var wg sync.WaitGroup
		wg.Add(2)
		var completed bool
		go func() {
			defer wg.Done()
			completed = tr.Complete(i, reply(message.Envelope{"winner": "reply"}))
		}()
		go func() {
			defer wg.Done()
			tr.ScheduleTimeout(i, 0)
		}()
		wg.Wait()

		resp, err := fut.Wait()
		if err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if completed && resp.Status().IsTimeout() {
			t.Fatal("Complete() won the take but the outcome is TIMEOUT")
		}
		if !completed && !resp.Status().IsTimeout() {
			// the timer won; Complete must have observed absence
			t.Fatal("Complete() lost the take but the outcome is the reply")
		}
		if tr.PendingCount() != 0 {
			t.Fatalf("PendingCount() = %d, want 0", tr.PendingCount())
		}
	}
}

func TestTracker_FailResolvesWithSendFailure(t *testing.T) {
	tr := request.NewTracker(nil)
	fut := tr.Register(3)

	if !tr.Fail(3, nil) {
		t.Fatal("Fail() = false, want true")
	}
	if _, err := fut.Wait(); err == nil {
		t.Error("Wait() error = nil, want ErrSendFailed")
	}
	if tr.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", tr.PendingCount())
	}
}

func TestTracker_ScheduleTimeoutOnAbsentEntry(t *testing.T) {
	tr := request.NewTracker(nil)
	if timer := tr.ScheduleTimeout(42, time.Millisecond); timer != nil {
		t.Error("ScheduleTimeout() on an absent id should not arm a timer")
	}
}

func TestNewTaskID_Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := request.NewTaskID()
		if id < 0 || id >= 100000 {
			t.Fatalf("NewTaskID() = %d, want [0, 100000)", id)
		}
	}
}
