// Package message defines the JSON envelope exchanged between nodes:
// the Envelope value tree, the typed Response wrapper with
// default-on-mismatch accessors, and the fluent Builder.
package message

import (
	"encoding/json"
	"strconv"
)

// Reserved envelope field names. Everything else is caller-defined.
const (
	FieldAction  = "action"
	FieldTaskID  = "taskID"
	FieldReplyTo = "replyTo"
	FieldStatus  = "status"
)

// Envelope is the semantic document carried on the wire: a mapping from
// field names to JSON-representable values (string, number, bool, nil,
// nested map, list). Field order is irrelevant.
type Envelope map[string]any

// Has reports whether the field is present, including explicit nulls.
func (e Envelope) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Response wraps a received envelope together with its outcome status
// and the raw wire text it was parsed from. Accessors never fail on a
// missing or mistyped field; they return the zero value (or the caller
// supplied default) instead.
type Response struct {
	env    Envelope
	raw    string
	status Status
}

// Parse decodes a raw wire message into a Response. The status is read
// from the reserved "status" field when present, otherwise SUCCESS.
func Parse(raw string) (*Response, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, err
	}
	status := StatusSuccess
	if s, ok := env[FieldStatus].(string); ok {
		status = StatusFromString(s)
	}
	return &Response{env: env, raw: raw, status: status}, nil
}

// NewResponse wraps an already-decoded envelope. Used for responses
// synthesized locally (timeouts) rather than received off the wire.
func NewResponse(env Envelope, status Status) *Response {
	raw, _ := json.Marshal(env)
	return &Response{env: env, raw: string(raw), status: status}
}

// Status returns the outcome code attached to this response. A TIMEOUT
// status never comes from the network; it is synthesized locally.
func (r *Response) Status() Status { return r.status }

// Raw returns the original wire text.
func (r *Response) Raw() string { return r.raw }

// Data returns the underlying envelope.
func (r *Response) Data() Envelope { return r.env }

// Has reports whether the field is present.
func (r *Response) Has(key string) bool { return r.env.Has(key) }

func (r *Response) String(key string) string { return r.StringOr(key, "") }
func (r *Response) Int(key string) int       { return r.IntOr(key, 0) }
func (r *Response) Int64(key string) int64   { return r.Int64Or(key, 0) }
func (r *Response) Float(key string) float64 { return r.FloatOr(key, 0) }
func (r *Response) Bool(key string) bool     { return r.BoolOr(key, false) }
func (r *Response) Map(key string) Envelope  { return r.MapOr(key, nil) }

func (r *Response) StringOr(key, def string) string {
	if v, ok := r.env[key].(string); ok {
		return v
	}
	return def
}

func (r *Response) IntOr(key string, def int) int {
	if v, ok := asInt64(r.env[key]); ok {
		return int(v)
	}
	return def
}

func (r *Response) Int64Or(key string, def int64) int64 {
	if v, ok := asInt64(r.env[key]); ok {
		return v
	}
	return def
}

func (r *Response) FloatOr(key string, def float64) float64 {
	switch v := r.env[key].(type) {
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (r *Response) BoolOr(key string, def bool) bool {
	switch v := r.env[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (r *Response) MapOr(key string, def Envelope) Envelope {
	if v, ok := r.env[key].(map[string]any); ok {
		return Envelope(v)
	}
	return def
}

// List returns a list field, or nil when absent or not a list.
func (r *Response) List(key string) []any {
	if v, ok := r.env[key].([]any); ok {
		return v
	}
	return nil
}

// asInt64 coerces JSON scalar shapes to an integer. Decoded JSON
// numbers arrive as float64; numeric strings are accepted the way the
// accessors' safe-fallback policy promises.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
