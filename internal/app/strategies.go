package app

import (
	"math/rand/v2"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/jsamuelsen/flagcontext-service/internal/domain"
	"github.com/jsamuelsen/flagcontext-service/internal/ports"
)

// Built-in strategy names, as they appear in toggle definitions.
const (
	StrategyDefault                 = "default"
	StrategyUserWithID              = "userWithId"
	StrategyRemoteAddress           = "remoteAddress"
	StrategyFlexibleRollout         = "flexibleRollout"
	StrategyGradualRolloutUserID    = "gradualRolloutUserId"
	StrategyGradualRolloutSessionID = "gradualRolloutSessionId"
)

// Stickiness values understood by flexibleRollout.
const (
	StickinessDefault = "default"
	StickinessRandom  = "random"
)

// StrategyRegistry maps strategy names to implementations.
// It is built once at startup and read-only afterwards.
type StrategyRegistry struct {
	strategies map[string]ports.Strategy
}

// NewStrategyRegistry returns a registry holding the built-in strategies
// plus any extras. An extra with a built-in name replaces it.
func NewStrategyRegistry(extra ...ports.Strategy) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[string]ports.Strategy)}

	for _, s := range []ports.Strategy{
		DefaultStrategy{},
		UserWithIDStrategy{},
		RemoteAddressStrategy{},
		FlexibleRolloutStrategy{},
		GradualRolloutStrategy{name: StrategyGradualRolloutUserID, field: domain.FieldUserID},
		GradualRolloutStrategy{name: StrategyGradualRolloutSessionID, field: domain.FieldSessionID},
	} {
		r.strategies[s.Name()] = s
	}

	for _, s := range extra {
		r.strategies[s.Name()] = s
	}

	return r
}

// Lookup returns the strategy registered under name.
func (r *StrategyRegistry) Lookup(name string) (ports.Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in sorted order.
func (r *StrategyRegistry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// DefaultStrategy is on for everyone.
type DefaultStrategy struct{}

func (DefaultStrategy) Name() string { return StrategyDefault }

func (DefaultStrategy) IsEnabled(map[string]string, *domain.FlagContext) bool { return true }

// UserWithIDStrategy is on when the user id is listed in the "userIds" parameter.
type UserWithIDStrategy struct{}

func (UserWithIDStrategy) Name() string { return StrategyUserWithID }

func (UserWithIDStrategy) IsEnabled(params map[string]string, fc *domain.FlagContext) bool {
	userID, ok := fc.Field(domain.FieldUserID)
	if !ok {
		return false
	}

	return slices.Contains(splitList(params["userIds"]), userID)
}

// RemoteAddressStrategy is on when the remote address matches an entry of
// the "IPs" parameter. Entries are single addresses or CIDR prefixes.
type RemoteAddressStrategy struct{}

func (RemoteAddressStrategy) Name() string { return StrategyRemoteAddress }

func (RemoteAddressStrategy) IsEnabled(params map[string]string, fc *domain.FlagContext) bool {
	raw, ok := fc.Field(domain.FieldRemoteAddress)
	if !ok {
		return false
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	for _, entry := range splitList(params["IPs"]) {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}

			continue
		}

		if candidate, err := netip.ParseAddr(entry); err == nil && candidate.Unmap() == addr {
			return true
		}
	}

	return false
}

// FlexibleRolloutStrategy enables a stable percentage of contexts.
//
// Parameters: "rollout" (0-100), "stickiness" (default, userId, sessionId,
// random or any property name) and "groupId" (defaults to the toggle name
// when the definition sets it).
type FlexibleRolloutStrategy struct{}

func (FlexibleRolloutStrategy) Name() string { return StrategyFlexibleRollout }

func (FlexibleRolloutStrategy) IsEnabled(params map[string]string, fc *domain.FlagContext) bool {
	percentage := parsePercentage(params["rollout"])
	if percentage == 0 {
		return false
	}

	stickiness := params["stickiness"]
	if stickiness == "" {
		stickiness = StickinessDefault
	}

	var identifier string

	switch stickiness {
	case StickinessDefault:
		if id, ok := fc.Field(domain.FieldUserID); ok {
			identifier = id
		} else if id, ok := fc.Field(domain.FieldSessionID); ok {
			identifier = id
		} else {
			identifier = randomIdentifier()
		}
	case StickinessRandom:
		identifier = randomIdentifier()
	default:
		id, ok := fc.Field(stickiness)
		if !ok {
			return false
		}

		identifier = id
	}

	return NormalizedHash(params["groupId"], identifier) <= percentage
}

// GradualRolloutStrategy enables a stable percentage of contexts keyed on a
// single field. Parameters: "percentage" (0-100) and "groupId".
type GradualRolloutStrategy struct {
	name  string
	field string
}

func (s GradualRolloutStrategy) Name() string { return s.name }

func (s GradualRolloutStrategy) IsEnabled(params map[string]string, fc *domain.FlagContext) bool {
	identifier, ok := fc.Field(s.field)
	if !ok {
		return false
	}

	percentage := parsePercentage(params["percentage"])
	if percentage == 0 {
		return false
	}

	return NormalizedHash(params["groupId"], identifier) <= percentage
}

// NormalizedHash maps groupID and identifier into 1..100 using murmur3, so
// the same identifier always lands in the same bucket for a group.
func NormalizedHash(groupID, identifier string) uint32 {
	return murmur3.Sum32([]byte(groupID+":"+identifier))%100 + 1
}

func parsePercentage(raw string) uint32 {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}

	return uint32(min(n, 100)) //nolint:gosec // clamped to 1..100
}

func randomIdentifier() string {
	return strconv.Itoa(rand.IntN(100) + 1) //nolint:gosec // rollout bucketing, not security
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := parts[:0]

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
