// Package resilience provides per-region circuit breakers for the pool
// manager.
package resilience

import (
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()
