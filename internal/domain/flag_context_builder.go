package domain

// ErrBuilderUsed is returned by Build when the builder has already produced
// a FlagContext.
var ErrBuilderUsed = NewInvalidArgumentError("builder", "already built")

// FlagContextBuilder assembles a FlagContext with chained calls:
//
//	fc, err := domain.NewFlagContextBuilder().
//	    UserID("u1").
//	    SessionID("s1").
//	    RemoteAddress("1.2.3.4").
//	    AddProperty("env", "prod").
//	    Build()
//
// A duplicate AddProperty key records an *InvalidArgumentError. The first
// recorded error sticks: later calls become no-ops, Err reports it right
// away and Build returns it. A successful Build records ErrBuilderUsed, so
// the built FlagContext can no longer be reached through the builder.
type FlagContextBuilder struct {
	userID        string
	sessionID     string
	remoteAddress string
	properties    map[string]string
	err           error
}

// NewFlagContextBuilder returns an empty builder.
func NewFlagContextBuilder() *FlagContextBuilder {
	return &FlagContextBuilder{
		properties: make(map[string]string),
	}
}

// UserID sets the user identifier.
func (b *FlagContextBuilder) UserID(id string) *FlagContextBuilder {
	if b.err == nil {
		b.userID = id
	}

	return b
}

// SessionID sets the session identifier.
func (b *FlagContextBuilder) SessionID(id string) *FlagContextBuilder {
	if b.err == nil {
		b.sessionID = id
	}

	return b
}

// RemoteAddress sets the remote address.
func (b *FlagContextBuilder) RemoteAddress(addr string) *FlagContextBuilder {
	if b.err == nil {
		b.remoteAddress = addr
	}

	return b
}

// AddProperty inserts one property. Adding a key twice records an error.
func (b *FlagContextBuilder) AddProperty(key, value string) *FlagContextBuilder {
	if b.err != nil {
		return b
	}

	if _, exists := b.properties[key]; exists {
		b.err = NewDuplicateKeyError("property", key)
		return b
	}

	b.properties[key] = value

	return b
}

// Err returns the first error recorded by the builder, if any.
func (b *FlagContextBuilder) Err() error {
	return b.err
}

// Build returns the assembled FlagContext. The builder's property map is
// handed to the result without copying, so a builder can be built once.
func (b *FlagContextBuilder) Build() (*FlagContext, error) {
	if b.err != nil {
		return nil, b.err
	}

	fc := &FlagContext{
		UserID:        b.userID,
		SessionID:     b.sessionID,
		RemoteAddress: b.remoteAddress,
		Properties:    b.properties,
	}

	b.properties = nil
	b.err = ErrBuilderUsed

	return fc, nil
}
