// Package domain holds the flag evaluation model: FlagContext, toggle
// definitions, evaluation results and the error categories shared by every
// layer.
package domain

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/mohae/deepcopy"
)

// Context field names understood by Field and by strategy constraints.
const (
	FieldUserID        = "userId"
	FieldSessionID     = "sessionId"
	FieldRemoteAddress = "remoteAddress"
)

// FlagContext carries the request attributes a feature toggle is evaluated
// against. It is usually built once per request by a context provider and
// read, never mutated, by strategies.
//
// FlagContext is not safe for concurrent mutation. Give each goroutine its
// own copy with Clone.
type FlagContext struct {
	// UserID is the stable identifier of the acting principal.
	UserID string

	// SessionID identifies the current session.
	SessionID string

	// RemoteAddress is the network origin of the request.
	RemoteAddress string

	// Properties holds open-ended metadata for custom strategies.
	// Keys are unique; AppendProperties refuses to overwrite them.
	Properties map[string]string
}

// AppendProperties merges additional into Properties.
//
// The merge is all-or-nothing: every key is checked before any is written,
// so a duplicate leaves the receiver untouched. The first duplicate in sorted
// key order is reported as an *InvalidArgumentError. additional is never
// modified. A nil Properties map is initialized.
func (c *FlagContext) AppendProperties(additional map[string]string) error {
	if c.Properties == nil {
		c.Properties = make(map[string]string, len(additional))
	}

	for _, key := range slices.Sorted(maps.Keys(additional)) {
		if _, exists := c.Properties[key]; exists {
			return NewDuplicateKeyError("properties", key)
		}
	}

	maps.Copy(c.Properties, additional)

	return nil
}

// Clone returns an independent copy. The property map is deep-copied, so
// mutating either copy's Properties never affects the other.
func (c *FlagContext) Clone() *FlagContext {
	if c == nil {
		return nil
	}

	clone := deepcopy.Copy(c).(*FlagContext) //nolint:forcetypeassert // Copy preserves the dynamic type
	if clone.Properties == nil {
		clone.Properties = make(map[string]string)
	}

	return clone
}

// Property returns the value stored under key.
func (c *FlagContext) Property(key string) (string, bool) {
	if c == nil {
		return "", false
	}

	value, ok := c.Properties[key]

	return value, ok
}

// Field resolves a context field by name. The built-in names userId,
// sessionId and remoteAddress map to the scalar fields; anything else is
// looked up in Properties. Empty scalar fields report as absent.
func (c *FlagContext) Field(name string) (string, bool) {
	if c == nil {
		return "", false
	}

	switch name {
	case FieldUserID:
		return c.UserID, c.UserID != ""
	case FieldSessionID:
		return c.SessionID, c.SessionID != ""
	case FieldRemoteAddress:
		return c.RemoteAddress, c.RemoteAddress != ""
	default:
		return c.Property(name)
	}
}

// LogValue implements slog.LogValuer. Property values may carry user data,
// so only their keys are logged.
func (c *FlagContext) LogValue() slog.Value {
	if c == nil {
		return slog.GroupValue()
	}

	return slog.GroupValue(
		slog.String("user_id", c.UserID),
		slog.String("session_id", c.SessionID),
		slog.String("remote_address", c.RemoteAddress),
		slog.Any("property_keys", slices.Sorted(maps.Keys(c.Properties))),
	)
}

// FlagContextOption configures a FlagContext built by NewFlagContext.
type FlagContextOption func(*FlagContextBuilder)

// WithUserID sets the user identifier.
func WithUserID(id string) FlagContextOption {
	return func(b *FlagContextBuilder) { b.UserID(id) }
}

// WithSessionID sets the session identifier.
func WithSessionID(id string) FlagContextOption {
	return func(b *FlagContextBuilder) { b.SessionID(id) }
}

// WithRemoteAddress sets the remote address.
func WithRemoteAddress(addr string) FlagContextOption {
	return func(b *FlagContextBuilder) { b.RemoteAddress(addr) }
}

// WithProperty adds a single property.
func WithProperty(key, value string) FlagContextOption {
	return func(b *FlagContextBuilder) { b.AddProperty(key, value) }
}

// WithProperties adds every entry of props. Keys are applied in sorted order.
func WithProperties(props map[string]string) FlagContextOption {
	return func(b *FlagContextBuilder) {
		for _, key := range slices.Sorted(maps.Keys(props)) {
			b.AddProperty(key, props[key])
		}
	}
}

// NewFlagContext builds a FlagContext from options. It fails with
// ErrInvalidArgument when two options add the same property key.
func NewFlagContext(opts ...FlagContextOption) (*FlagContext, error) {
	b := NewFlagContextBuilder()
	for _, opt := range opts {
		opt(b)
	}

	return b.Build()
}
