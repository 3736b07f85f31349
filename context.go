package masedb

import (
	"context"
	"encoding/json"
	"sync"
)

type ctxKey int

const (
	metadataKey ctxKey = 0
)

const requestIDTag = "request_id"

// Context holds key value pairs associated with a go Context. Transports and loggers read request scoped tags from it.
type Context struct {
	tags sync.Map
}

// NewContext creates a context with the given tags
func NewContext(tags map[string]any) *Context {
	m := &Context{}
	if tags != nil {
		m.SetAll(tags)
	}
	return m
}

// String return a json string of the context
func (m *Context) String() string {
	bits, _ := m.MarshalJSON()
	return string(bits)
}

// MarshalJSON returns the context values as json bytes
func (m *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// SetAll sets the key value fields on the context
func (m *Context) SetAll(data map[string]any) {
	for k, v := range data {
		m.tags.Store(k, v)
	}
}

// Set sets a key value pair on the context
func (m *Context) Set(key string, value any) {
	m.tags.Store(key, value)
}

// Get gets a key from the context if it exists
func (m *Context) Get(key string) (any, bool) {
	return m.tags.Load(key)
}

// Map returns the context keyvalues as a map
func (m *Context) Map() map[string]any {
	data := map[string]any{}
	m.tags.Range(func(key, value any) bool {
		data[key.(string)] = value
		return true
	})
	return data
}

// ToContext adds the context to the input go context
func (m *Context) ToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, metadataKey, m)
}

// GetContext gets metadata from the context if it exists
func GetContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return &Context{}, false
	}
	m, ok := ctx.Value(metadataKey).(*Context)
	if ok {
		return m, true
	}
	return &Context{}, false
}

// WithRequestID returns a child go context carrying the request id. Tags of a parent Context are copied;
// the parent itself is left unchanged. Transports send the id with each request.
func WithRequestID(ctx context.Context, id string) context.Context {
	m := NewContext(nil)
	if parent, ok := GetContext(ctx); ok {
		m.SetAll(parent.Map())
	}
	m.Set(requestIDTag, id)
	return m.ToContext(ctx)
}

// RequestID returns the request id set with WithRequestID
func RequestID(ctx context.Context) (string, bool) {
	m, ok := GetContext(ctx)
	if !ok {
		return "", false
	}
	v, ok := m.Get(requestIDTag)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
