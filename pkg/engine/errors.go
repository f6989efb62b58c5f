package engine

import "errors"

// ErrValidation marks a request rejected before any state changed.
// Callers can rely on errors.Is(err, ErrValidation) meaning "nothing
// was mutated".
var ErrValidation = errors.New("invalid request")
