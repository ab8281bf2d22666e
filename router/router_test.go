package router_test

import (
	"errors"
	"testing"

	"github.com/crossmq/crossmq/message"
	"github.com/crossmq/crossmq/router"
)

type fakeCompleter struct {
	calls  int
	lastID int
}

func (f *fakeCompleter) Complete(taskID int, resp *message.Response) bool {
	f.calls++
	f.lastID = taskID
	return true
}

func TestRouter_RoutesActionToHandler(t *testing.T) {
	r := router.New(nil)

	var got int
	calls := 0
	r.On("ping", func(resp *message.Response) {
		calls++
		got = resp.Int("value")
	})

	r.Route(`{"action":"ping","value":5}`)

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if got != 5 {
		t.Errorf("value = %d, want 5", got)
	}
}

func TestRouter_ActionIsCaseInsensitive(t *testing.T) {
	r := router.New(nil)

	calls := 0
	r.On("Ping", func(*message.Response) { calls++ })
	r.Route(`{"action":"PING"}`)

	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
}

func TestRouter_OnReplacesHandler(t *testing.T) {
	r := router.New(nil)

	first, second := 0, 0
	r.On("ping", func(*message.Response) { first++ })
	r.On("ping", func(*message.Response) { second++ })

	r.Route(`{"action":"ping"}`)

	if first != 0 {
		t.Errorf("replaced handler calls = %d, want 0", first)
	}
	if second != 1 {
		t.Errorf("handler calls = %d, want 1", second)
	}
	if got := r.HandlerCount(); got != 1 {
		t.Errorf("HandlerCount() = %d, want 1", got)
	}
}

func TestRouter_DefaultHandler(t *testing.T) {
	r := router.New(nil)

	defaults := 0
	r.OnDefault(func(*message.Response) { defaults++ })

	// unmatched action falls back to the default handler
	r.Route(`{"action":"unknown"}`)
	// no action and no taskID also goes to the default handler
	r.Route(`{"payload":1}`)

	if defaults != 2 {
		t.Errorf("default handler calls = %d, want 2", defaults)
	}
}

func TestRouter_ParseErrorGoesToSink(t *testing.T) {
	r := router.New(nil)

	var sunk error
	r.OnError(func(err error) { sunk = err })
	r.Route(`{broken`)

	var parseErr *router.ParseError
	if !errors.As(sunk, &parseErr) {
		t.Fatalf("error sink got %T, want *router.ParseError", sunk)
	}
	if parseErr.Raw != `{broken` {
		t.Errorf("ParseError.Raw = %q, want the dropped message", parseErr.Raw)
	}
}

func TestRouter_HandlerPanicIsolated(t *testing.T) {
	r := router.New(nil)

	var sunk error
	r.OnError(func(err error) { sunk = err })
	r.On("bad", func(*message.Response) { panic("boom") })

	calls := 0
	r.On("good", func(*message.Response) { calls++ })

	r.Route(`{"action":"bad"}`)
	r.Route(`{"action":"good"}`)

	var fault *router.HandlerFault
	if !errors.As(sunk, &fault) {
		t.Fatalf("error sink got %T, want *router.HandlerFault", sunk)
	}
	if fault.Action != "bad" {
		t.Errorf("HandlerFault.Action = %q, want bad", fault.Action)
	}
	if calls != 1 {
		t.Errorf("routing after a fault: handler calls = %d, want 1", calls)
	}
}

func TestRouter_TaskIDHandsOffToCompleter(t *testing.T) {
	r := router.New(nil)
	completer := &fakeCompleter{}
	r.SetCompleter(completer)

	r.Route(`{"taskID":77,"result":"ok"}`)

	if completer.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", completer.calls)
	}
	if completer.lastID != 77 {
		t.Errorf("completer id = %d, want 77", completer.lastID)
	}
}

func TestRouter_DualDispatch(t *testing.T) {
	r := router.New(nil)
	completer := &fakeCompleter{}
	r.SetCompleter(completer)

	handled := 0
	r.On("status", func(*message.Response) { handled++ })

	// taskID and action are independent signals: both paths run
	r.Route(`{"taskID":5,"action":"status"}`)

	if completer.calls != 1 {
		t.Errorf("completer calls = %d, want 1", completer.calls)
	}
	if handled != 1 {
		t.Errorf("handler calls = %d, want 1", handled)
	}
}

func TestRouter_TaskIDOnlySkipsDefault(t *testing.T) {
	r := router.New(nil)
	r.SetCompleter(&fakeCompleter{})

	defaults := 0
	r.OnDefault(func(*message.Response) { defaults++ })
	r.Route(`{"taskID":5}`)

	if defaults != 0 {
		t.Errorf("default handler calls = %d, want 0 for a pure reply", defaults)
	}
}

func TestRouter_InterceptorRewritesAndDrops(t *testing.T) {
	r := router.New(nil)

	var got []int
	r.On("ping", func(resp *message.Response) {
		got = append(got, resp.Int("value"))
	})
	r.SetInterceptor(func(resp *message.Response) (*message.Response, bool) {
		if resp.Bool("drop") {
			return nil, false
		}
		rewritten, err := message.Parse(`{"action":"ping","value":99}`)
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		return rewritten, true
	})

	r.Route(`{"action":"ping","value":1,"drop":true}`)
	r.Route(`{"action":"ping","value":1}`)

	if len(got) != 1 {
		t.Fatalf("handler calls = %d, want 1 (dropped message never dispatched)", len(got))
	}
	if got[0] != 99 {
		t.Errorf("value = %d, want 99 (interceptor rewrite)", got[0])
	}
}

func TestRouter_RemoveAndClear(t *testing.T) {
	r := router.New(nil)
	r.On("a", func(*message.Response) {})
	r.On("b", func(*message.Response) {})

	r.Remove("A")
	if r.HasHandler("a") {
		t.Error("HasHandler(a) = true after Remove")
	}
	if !r.HasHandler("b") {
		t.Error("HasHandler(b) = false, want true")
	}

	r.Clear()
	if got := r.HandlerCount(); got != 0 {
		t.Errorf("HandlerCount() after Clear = %d, want 0", got)
	}
}
