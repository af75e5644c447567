package cluster

import (
	"github.com/btcsuite/btclog/v2"
)

// log is the package-level structured logger for cluster membership.
// Callers wire in a concrete logger via UseLogger; until then, messages
// are discarded.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by the cluster package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
