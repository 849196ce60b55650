// Package acl is the anti-corruption layer between the service and an
// Unleash-compatible toggle server.
//
// [ToggleClient] fetches GET /api/client/features with If-None-Match,
// translates the payload into [domain.FeatureToggle] values and serves
// reads from the last good snapshot. Nothing outside this package sees the
// server's JSON shapes.
//
// Failures are reported as domain errors. An error name in the response
// body wins over the status code:
//
//	NotFoundError, 404                       domain.ErrNotFound
//	ValidationError, BadDataError, 400, 422  domain.ErrValidation
//	NoAccessError, AuthenticationRequired,
//	401, 403                                 domain.ErrForbidden
//	anything else, transport failures        domain.ErrUnavailable
package acl
