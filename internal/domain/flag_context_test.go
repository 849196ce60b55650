package domain

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagContext_AppendProperties_Disjoint(t *testing.T) {
	fc := &FlagContext{Properties: map[string]string{"a": "1"}}

	err := fc.AppendProperties(map[string]string{"b": "2", "c": "3"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, fc.Properties)
	assert.Len(t, fc.Properties, 3)
}

func TestFlagContext_AppendProperties_DuplicateKeyIsAtomic(t *testing.T) {
	fc := &FlagContext{Properties: map[string]string{"a": "1"}}

	err := fc.AppendProperties(map[string]string{"0-first": "x", "a": "9", "z": "y"})

	require.ErrorIs(t, err, ErrInvalidArgument)

	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "a", invalid.Key)

	// Nothing from the failed call was applied.
	assert.Equal(t, map[string]string{"a": "1"}, fc.Properties)
}

func TestFlagContext_AppendProperties_DoesNotMutateInput(t *testing.T) {
	fc := &FlagContext{Properties: map[string]string{}}
	additional := map[string]string{"b": "2"}

	require.NoError(t, fc.AppendProperties(additional))

	fc.Properties["b"] = "changed"
	fc.Properties["c"] = "3"

	assert.Equal(t, map[string]string{"b": "2"}, additional)
}

func TestFlagContext_AppendProperties_NilProperties(t *testing.T) {
	fc := &FlagContext{UserID: "u1"}

	require.NoError(t, fc.AppendProperties(map[string]string{"env": "prod"}))
	assert.Equal(t, map[string]string{"env": "prod"}, fc.Properties)
}

func TestFlagContext_AppendProperties_EmptyInput(t *testing.T) {
	fc := &FlagContext{}

	require.NoError(t, fc.AppendProperties(nil))
	assert.NotNil(t, fc.Properties)
	assert.Empty(t, fc.Properties)
}

func TestFlagContext_AppendProperties_ReportsFirstSortedDuplicate(t *testing.T) {
	fc := &FlagContext{Properties: map[string]string{"b": "1", "d": "1"}}

	err := fc.AppendProperties(map[string]string{"d": "2", "b": "2"})

	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "b", invalid.Key)
}

func TestFlagContext_Clone(t *testing.T) {
	original := &FlagContext{
		UserID:        "u1",
		SessionID:     "s1",
		RemoteAddress: "10.0.0.1",
		Properties:    map[string]string{"env": "prod"},
	}

	clone := original.Clone()

	require.NotSame(t, original, clone)
	assert.Equal(t, original.UserID, clone.UserID)
	assert.Equal(t, original.SessionID, clone.SessionID)
	assert.Equal(t, original.RemoteAddress, clone.RemoteAddress)
	assert.Equal(t, original.Properties, clone.Properties)

	clone.Properties["tenant"] = "acme"
	original.Properties["env"] = "staging"

	assert.Equal(t, map[string]string{"env": "staging"}, original.Properties)
	assert.Equal(t, map[string]string{"env": "prod", "tenant": "acme"}, clone.Properties)
}

func TestFlagContext_Clone_NilProperties(t *testing.T) {
	clone := (&FlagContext{UserID: "u1"}).Clone()

	require.NotNil(t, clone.Properties)
	require.NoError(t, clone.AppendProperties(map[string]string{"a": "1"}))
}

func TestFlagContext_Clone_Nil(t *testing.T) {
	var fc *FlagContext
	assert.Nil(t, fc.Clone())
}

func TestFlagContext_Clone_ThenAppendLeavesOriginal(t *testing.T) {
	original := &FlagContext{Properties: map[string]string{"a": "1"}}

	clone := original.Clone()
	require.NoError(t, clone.AppendProperties(map[string]string{"b": "2"}))

	assert.Equal(t, map[string]string{"a": "1"}, original.Properties)
}

func TestFlagContext_Field(t *testing.T) {
	fc := &FlagContext{
		UserID:        "u1",
		RemoteAddress: "1.2.3.4",
		Properties:    map[string]string{"tenant": "acme", "userId": "shadowed"},
	}

	tests := []struct {
		name      string
		field     string
		wantValue string
		wantOK    bool
	}{
		{"user id", FieldUserID, "u1", true},
		{"empty session id is absent", FieldSessionID, "", false},
		{"remote address", FieldRemoteAddress, "1.2.3.4", true},
		{"property", "tenant", "acme", true},
		{"missing property", "region", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := fc.Field(tt.field)
			assert.Equal(t, tt.wantValue, value)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestFlagContext_NilReceiverLookups(t *testing.T) {
	var fc *FlagContext

	_, ok := fc.Field(FieldUserID)
	assert.False(t, ok)

	_, ok = fc.Property("anything")
	assert.False(t, ok)
}

func TestFlagContext_LogValue_OmitsPropertyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	fc := &FlagContext{
		UserID:     "u1",
		Properties: map[string]string{"email": "someone@example.com"},
	}
	logger.Info("evaluating", slog.Any("flag_context", fc))

	assert.Contains(t, buf.String(), "email")
	assert.NotContains(t, buf.String(), "someone@example.com")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	group, ok := entry["flag_context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", group["user_id"])
}

func TestFlagContextBuilder_Build(t *testing.T) {
	fc, err := NewFlagContextBuilder().
		UserID("u1").
		SessionID("s1").
		RemoteAddress("1.2.3.4").
		AddProperty("env", "prod").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "u1", fc.UserID)
	assert.Equal(t, "s1", fc.SessionID)
	assert.Equal(t, "1.2.3.4", fc.RemoteAddress)
	assert.Equal(t, map[string]string{"env": "prod"}, fc.Properties)
}

func TestFlagContextBuilder_EmptyBuildHasProperties(t *testing.T) {
	fc, err := NewFlagContextBuilder().Build()

	require.NoError(t, err)
	assert.NotNil(t, fc.Properties)
}

func TestFlagContextBuilder_DuplicateKey(t *testing.T) {
	b := NewFlagContextBuilder().AddProperty("k", "v1")
	require.NoError(t, b.Err())

	b.AddProperty("k", "v2")
	require.ErrorIs(t, b.Err(), ErrInvalidArgument)

	fc, err := b.Build()
	assert.Nil(t, fc)
	require.ErrorIs(t, err, ErrInvalidArgument)

	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "k", invalid.Key)
}

func TestFlagContextBuilder_ErrorSticks(t *testing.T) {
	b := NewFlagContextBuilder().
		AddProperty("k", "v1").
		AddProperty("k", "v2").
		AddProperty("other", "x").
		UserID("ignored")

	var invalid *InvalidArgumentError
	require.ErrorAs(t, b.Err(), &invalid)
	assert.Equal(t, "k", invalid.Key)
}

func TestFlagContextBuilder_SingleUse(t *testing.T) {
	b := NewFlagContextBuilder().AddProperty("a", "1")

	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	require.ErrorIs(t, err, ErrBuilderUsed)
	assert.True(t, IsInvalidArgument(err))
}

func TestFlagContextBuilder_UseAfterBuild(t *testing.T) {
	b := NewFlagContextBuilder().UserID("u1").AddProperty("env", "prod")

	fc, err := b.Build()
	require.NoError(t, err)

	b.UserID("u2").
		SessionID("s2").
		RemoteAddress("10.0.0.1").
		AddProperty("tenant", "acme").
		AddProperty("env", "dev")

	require.ErrorIs(t, b.Err(), ErrBuilderUsed)
	assert.Equal(t, "u1", fc.UserID)
	assert.Empty(t, fc.SessionID)
	assert.Empty(t, fc.RemoteAddress)
	assert.Equal(t, map[string]string{"env": "prod"}, fc.Properties)
}

func TestNewFlagContext_Options(t *testing.T) {
	fc, err := NewFlagContext(
		WithUserID("u1"),
		WithSessionID("s1"),
		WithRemoteAddress("10.1.1.1"),
		WithProperty("env", "prod"),
		WithProperties(map[string]string{"tenant": "acme", "region": "eu"}),
	)

	require.NoError(t, err)
	assert.Equal(t, "u1", fc.UserID)
	assert.Equal(t, "s1", fc.SessionID)
	assert.Equal(t, "10.1.1.1", fc.RemoteAddress)
	assert.Equal(t, map[string]string{"env": "prod", "tenant": "acme", "region": "eu"}, fc.Properties)
}

func TestNewFlagContext_DuplicateOption(t *testing.T) {
	fc, err := NewFlagContext(
		WithProperty("env", "prod"),
		WithProperties(map[string]string{"env": "dev"}),
	)

	assert.Nil(t, fc)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
