package actor

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-level structured logger for the actor runtime.
// Callers wire in a concrete logger via UseLogger before spawning any
// actor system; until then, messages are discarded.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the actor runtime.
func UseLogger(logger btclog.Logger) {
	log = logger
}
