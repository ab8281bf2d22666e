package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Builder constructs an outbound envelope fluently. Scalar values are
// stored as-is; anything else is round-tripped through JSON so the
// resulting envelope is a pure value tree.
type Builder struct {
	env Envelope
	err error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{env: make(Envelope)}
}

// NewMessage returns a builder with the action already set.
func NewMessage(action string) *Builder {
	return NewBuilder().Action(action)
}

// Action sets the logical message type used for routing.
func (b *Builder) Action(action string) *Builder {
	b.env[FieldAction] = action
	return b
}

// Add sets a field. Non-scalar values are normalized through the JSON
// codec; a value that cannot be serialized poisons the builder and the
// error surfaces from Build.
func (b *Builder) Add(key string, value any) *Builder {
	v, err := normalize(value)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("field %q: %w", key, err)
		return b
	}
	b.env[key] = v
	return b
}

// AddIf sets the field only when cond is true.
func (b *Builder) AddIf(cond bool, key string, value any) *Builder {
	if cond {
		return b.Add(key, value)
	}
	return b
}

// AddTimestamp sets the field to the current time in epoch millis.
func (b *Builder) AddTimestamp(key string) *Builder {
	return b.Add(key, time.Now().UnixMilli())
}

// AddAll sets every entry of the map as a field.
func (b *Builder) AddAll(fields map[string]any) *Builder {
	for k, v := range fields {
		b.Add(k, v)
	}
	return b
}

// Remove drops a field.
func (b *Builder) Remove(key string) *Builder {
	delete(b.env, key)
	return b
}

// Has reports whether the field has been set.
func (b *Builder) Has(key string) bool { return b.env.Has(key) }

// Data returns the envelope under construction.
func (b *Builder) Data() Envelope { return b.env }

// Build serializes the envelope to its wire form.
func (b *Builder) Build() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	raw, err := json.Marshal(b.env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func normalize(value any) (any, error) {
	switch value.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
