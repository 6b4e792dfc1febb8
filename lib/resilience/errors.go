package resilience

import apperrors "github.com/go-i2p/regionpool/lib/errors"

// ErrCircuitOpen is returned when a region's breaker rejects a request.
var ErrCircuitOpen = apperrors.ErrCircuitOpen
