package context

import "errors"

// ErrNoFlagContext is returned when an operation needs a FlagContext and
// none was supplied.
var ErrNoFlagContext = errors.New("no flag context")
