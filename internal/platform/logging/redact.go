package logging

import (
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

var (
	jwtValue    = regexp.MustCompile(`^eyJ[\w-]*\.eyJ[\w-]*\.[\w-]*$`)
	authValue   = regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`)
	clientToken = regexp.MustCompile(`^[\w*-]+:[\w-]+\.[0-9a-f]{32,}$`)
)

// RedactOptions are the masq rules every handler built by this package
// applies: credential-looking field names, toggle server API tokens and
// authorization header values.
func RedactOptions() []masq.Option {
	opts := make([]masq.Option, 0, 24)

	for _, name := range []string{
		"password", "secret", "token", "api_token", "apiToken", "APIToken",
		"authorization", "Authorization", "cookie", "Cookie",
		"access_token", "refresh_token", "private_key", "credentials",
	} {
		opts = append(opts, masq.WithFieldName(name))
	}

	return append(opts,
		masq.WithFieldPrefix("secret"),
		masq.WithFieldPrefix("private"),
		masq.WithRegex(jwtValue),
		masq.WithRegex(authValue),
		masq.WithRegex(clientToken),
	)
}

// NewReplaceAttr returns a slog ReplaceAttr that applies RedactOptions plus
// extra.
func NewReplaceAttr(extra ...masq.Option) func(groups []string, a slog.Attr) slog.Attr {
	return masq.New(append(RedactOptions(), extra...)...)
}
