package message_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crossmq/crossmq/message"
)

func TestParse_DefaultsToSuccess(t *testing.T) {
	resp, err := message.Parse(`{"action":"ping","value":5}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := resp.Status(); got != message.StatusSuccess {
		t.Errorf("Status() = %v, want %v", got, message.StatusSuccess)
	}
	if got := resp.Int("value"); got != 5 {
		t.Errorf("Int(value) = %d, want 5", got)
	}
}

func TestParse_ReadsStatusField(t *testing.T) {
	resp, err := message.Parse(`{"status":"error","error":"boom"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !resp.Status().IsError() {
		t.Errorf("Status() = %v, want ERROR", resp.Status())
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := message.Parse(`{not json`); err == nil {
		t.Error("Parse() should fail on malformed input")
	}
}

func TestResponse_AccessorDefaults(t *testing.T) {
	resp, err := message.Parse(`{"s":"hi","n":42,"f":2.5,"b":true,"numstr":"7","null":null}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if got := resp.String("s"); got != "hi" {
		t.Errorf("String(s) = %q, want %q", got, "hi")
	}
	if got := resp.Int("n"); got != 42 {
		t.Errorf("Int(n) = %d, want 42", got)
	}
	if got := resp.Float("f"); got != 2.5 {
		t.Errorf("Float(f) = %v, want 2.5", got)
	}
	if !resp.Bool("b") {
		t.Error("Bool(b) = false, want true")
	}

	// numeric strings parse, per the safe-fallback policy
	if got := resp.Int("numstr"); got != 7 {
		t.Errorf("Int(numstr) = %d, want 7", got)
	}

	// missing, null, and mistyped fields return defaults, never fail
	if got := resp.Int("missing"); got != 0 {
		t.Errorf("Int(missing) = %d, want 0", got)
	}
	if got := resp.IntOr("missing", -1); got != -1 {
		t.Errorf("IntOr(missing, -1) = %d, want -1", got)
	}
	if got := resp.Int("s"); got != 0 {
		t.Errorf("Int(s) = %d, want 0", got)
	}
	if got := resp.Int("null"); got != 0 {
		t.Errorf("Int(null) = %d, want 0", got)
	}
	if got := resp.String("n"); got != "" {
		t.Errorf("String(n) = %q, want empty", got)
	}
	if resp.Bool("missing") {
		t.Error("Bool(missing) = true, want false")
	}
}

func TestResponse_NestedValues(t *testing.T) {
	resp, err := message.Parse(`{"data":{"k":"v"},"list":[1,2,3]}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := resp.Map("data")["k"]; got != "v" {
		t.Errorf("Map(data)[k] = %v, want v", got)
	}
	if got := len(resp.List("list")); got != 3 {
		t.Errorf("len(List(list)) = %d, want 3", got)
	}
	if resp.Map("list") != nil {
		t.Error("Map(list) should be nil for a list field")
	}
}

func TestBuilder_Build(t *testing.T) {
	raw, err := message.NewMessage("update").
		Add("count", 3).
		Add("name", "west").
		AddIf(false, "skipped", 1).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Build() produced invalid JSON: %v", err)
	}
	if env["action"] != "update" {
		t.Errorf("action = %v, want update", env["action"])
	}
	if env["count"] != float64(3) {
		t.Errorf("count = %v, want 3", env["count"])
	}
	if _, ok := env["skipped"]; ok {
		t.Error("AddIf(false) should not set the field")
	}
}

func TestBuilder_NormalizesStructs(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	b := message.NewBuilder().Add("p", point{X: 1, Y: 2})
	got, ok := b.Data()["p"].(map[string]any)
	if !ok {
		t.Fatalf("Data()[p] = %T, want map[string]any", b.Data()["p"])
	}
	if got["x"] != float64(1) || got["y"] != float64(2) {
		t.Errorf("normalized struct = %v, want x:1 y:2", got)
	}
}

func TestBuilder_AddTimestamp(t *testing.T) {
	before := time.Now().UnixMilli()
	b := message.NewBuilder().AddTimestamp("ts")
	ts, ok := b.Data()["ts"].(int64)
	if !ok {
		t.Fatalf("Data()[ts] = %T, want int64", b.Data()["ts"])
	}
	if ts < before || ts > time.Now().UnixMilli() {
		t.Errorf("timestamp %d outside the call window", ts)
	}
}

func TestBuilder_RemoveAndHas(t *testing.T) {
	b := message.NewBuilder().Add("a", 1).Add("b", 2).Remove("a")
	if b.Has("a") {
		t.Error("Has(a) = true after Remove")
	}
	if !b.Has("b") {
		t.Error("Has(b) = false, want true")
	}
}

func TestStatusFromString(t *testing.T) {
	tests := []struct {
		in   string
		want message.Status
	}{
		{"success", message.StatusSuccess},
		{"TIMEOUT", message.StatusTimeout},
		{"", message.StatusSuccess},
		{"rate_limited", message.Status("RATE_LIMITED")},
	}
	for _, tt := range tests {
		if got := message.StatusFromString(tt.in); got != tt.want {
			t.Errorf("StatusFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
