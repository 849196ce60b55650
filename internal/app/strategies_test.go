package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/mocks"
)

func TestNormalizedHash(t *testing.T) {
	tests := []struct {
		groupID    string
		identifier string
		expected   uint32
	}{
		{"gr1", "123", 73},
		{"groupX", "999", 25},
		{"feature", "u1", 58},
		{"feature", "u2", 10},
	}

	for _, tt := range tests {
		t.Run(tt.groupID+":"+tt.identifier, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizedHash(tt.groupID, tt.identifier))
		})
	}
}

func TestStrategyRegistry_BuiltIns(t *testing.T) {
	r := NewStrategyRegistry()

	assert.Equal(t, []string{
		StrategyDefault,
		StrategyFlexibleRollout,
		StrategyGradualRolloutSessionID,
		StrategyGradualRolloutUserID,
		StrategyRemoteAddress,
		StrategyUserWithID,
	}, r.Names())

	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}

func TestStrategyRegistry_ExtraOverrides(t *testing.T) {
	custom := mocks.NewMockStrategy(t)
	custom.EXPECT().Name().Return(StrategyDefault)

	r := NewStrategyRegistry(custom)

	s, ok := r.Lookup(StrategyDefault)
	require.True(t, ok)
	assert.Same(t, custom, s)
}

func TestUserWithIDStrategy(t *testing.T) {
	params := map[string]string{"userIds": "alice, bob ,carol"}

	tests := []struct {
		name     string
		fc       *domain.FlagContext
		expected bool
	}{
		{"listed user", &domain.FlagContext{UserID: "bob"}, true},
		{"unlisted user", &domain.FlagContext{UserID: "dave"}, false},
		{"no user", &domain.FlagContext{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, UserWithIDStrategy{}.IsEnabled(params, tt.fc))
		})
	}
}

func TestRemoteAddressStrategy(t *testing.T) {
	params := map[string]string{"IPs": "10.0.0.1, 192.168.0.0/16, 2001:db8::/32, not-an-ip"}

	tests := []struct {
		name     string
		address  string
		expected bool
	}{
		{"exact match", "10.0.0.1", true},
		{"inside prefix", "192.168.44.3", true},
		{"ipv6 prefix", "2001:db8::5", true},
		{"ipv4-mapped ipv6", "::ffff:10.0.0.1", true},
		{"outside", "10.0.0.2", false},
		{"empty", "", false},
		{"garbage", "localhost", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &domain.FlagContext{RemoteAddress: tt.address}
			assert.Equal(t, tt.expected, RemoteAddressStrategy{}.IsEnabled(params, fc))
		})
	}
}

func TestFlexibleRolloutStrategy(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]string
		fc       *domain.FlagContext
		expected bool
	}{
		{
			name:     "user inside rollout",
			params:   map[string]string{"rollout": "60", "groupId": "feature"},
			fc:       &domain.FlagContext{UserID: "u1"}, // bucket 58
			expected: true,
		},
		{
			name:     "user outside rollout",
			params:   map[string]string{"rollout": "50", "groupId": "feature"},
			fc:       &domain.FlagContext{UserID: "u1"},
			expected: false,
		},
		{
			name:     "default stickiness falls back to session",
			params:   map[string]string{"rollout": "92", "groupId": "feature"},
			fc:       &domain.FlagContext{SessionID: "s1"}, // bucket 93
			expected: false,
		},
		{
			name:     "explicit session stickiness",
			params:   map[string]string{"rollout": "93", "stickiness": "sessionId", "groupId": "feature"},
			fc:       &domain.FlagContext{UserID: "u2", SessionID: "s1"},
			expected: true,
		},
		{
			name:     "property stickiness missing",
			params:   map[string]string{"rollout": "100", "stickiness": "tenant", "groupId": "feature"},
			fc:       &domain.FlagContext{UserID: "u1"},
			expected: false,
		},
		{
			name:     "property stickiness present",
			params:   map[string]string{"rollout": "100", "stickiness": "tenant", "groupId": "feature"},
			fc:       &domain.FlagContext{Properties: map[string]string{"tenant": "acme"}},
			expected: true,
		},
		{
			name:     "zero rollout",
			params:   map[string]string{"rollout": "0", "groupId": "feature"},
			fc:       &domain.FlagContext{UserID: "u1"},
			expected: false,
		},
		{
			name:     "invalid rollout",
			params:   map[string]string{"rollout": "lots"},
			fc:       &domain.FlagContext{UserID: "u1"},
			expected: false,
		},
		{
			name:     "full random rollout",
			params:   map[string]string{"rollout": "100", "stickiness": "random"},
			fc:       &domain.FlagContext{},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FlexibleRolloutStrategy{}.IsEnabled(tt.params, tt.fc))
		})
	}
}

func TestFlexibleRolloutStrategy_IsSticky(t *testing.T) {
	params := map[string]string{"rollout": "30", "groupId": "sticky"}
	fc := &domain.FlagContext{UserID: "user-42"}

	first := FlexibleRolloutStrategy{}.IsEnabled(params, fc)
	for range 50 {
		assert.Equal(t, first, FlexibleRolloutStrategy{}.IsEnabled(params, fc))
	}
}

func TestGradualRolloutStrategies(t *testing.T) {
	r := NewStrategyRegistry()

	byUser, ok := r.Lookup(StrategyGradualRolloutUserID)
	require.True(t, ok)

	bySession, ok := r.Lookup(StrategyGradualRolloutSessionID)
	require.True(t, ok)

	params := map[string]string{"percentage": "20", "groupId": "feature"}

	assert.True(t, byUser.IsEnabled(params, &domain.FlagContext{UserID: "u2"}))  // bucket 10
	assert.True(t, byUser.IsEnabled(params, &domain.FlagContext{UserID: "u3"}))  // bucket 20
	assert.False(t, byUser.IsEnabled(params, &domain.FlagContext{UserID: "u1"})) // bucket 58
	assert.False(t, byUser.IsEnabled(params, &domain.FlagContext{SessionID: "u2"}))

	assert.False(t, bySession.IsEnabled(params, &domain.FlagContext{SessionID: "s1"})) // bucket 93
	assert.True(t, bySession.IsEnabled(map[string]string{"percentage": "150", "groupId": "feature"},
		&domain.FlagContext{SessionID: "s1"}))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a ,, b ,"))
}
