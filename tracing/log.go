package tracing

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-level structured logger for the tracing/metrics
// layer. Callers wire in a concrete logger via UseLogger; until then,
// messages are discarded.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the tracing package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
