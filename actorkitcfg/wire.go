package actorkitcfg

import (
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/corvidlabs/actorkit/cluster"
	"github.com/corvidlabs/actorkit/workerpool"
)

// ActorSystemConfig translates the loaded SystemSection into an
// actor.SystemConfig, falling back to actor.DefaultConfig's values for
// any zero field left unset.
func (c Config) ActorSystemConfig() actor.SystemConfig {
	def := actor.DefaultConfig()

	cfg := actor.SystemConfig{
		MailboxCapacity:   c.System.DefaultMailbox.Capacity,
		Throughput:        def.Throughput,
		DispatcherWorkers: c.System.Dispatcher.Threads,
	}
	if cfg.DispatcherWorkers <= 0 {
		cfg.DispatcherWorkers = def.DispatcherWorkers
	}
	return cfg
}

// WorkerPoolConfig translates the loaded WorkerPoolSection into a
// workerpool.Config.
func (c Config) WorkerPoolConfig() workerpool.Config {
	def := workerpool.DefaultConfig()

	cfg := workerpool.Config{
		MinWorkers:          c.WorkerPool.MinWorkers,
		MaxWorkers:          c.WorkerPool.MaxWorkers,
		IdleTimeout:         def.IdleTimeout,
		MaintenanceInterval: def.MaintenanceInterval,
		QueueCapacity:       c.WorkerPool.QueueCapacity,
		CancelGrace:         def.CancelGrace,
	}
	if c.WorkerPool.IdleTimeoutMs > 0 {
		cfg.IdleTimeout = time.Duration(c.WorkerPool.IdleTimeoutMs) * time.Millisecond
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = def.MinWorkers
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	return cfg
}

// ClusterConfig translates the loaded ClusterSection into a
// cluster.Config.
func (c Config) ClusterConfig() cluster.Config {
	def := cluster.DefaultConfig()

	cfg := cluster.Config{
		HeartbeatInterval:         c.Cluster.HeartbeatInterval,
		FailureDetectionThreshold: c.Cluster.FailureDetectionThreshold,
		SeedNodes:                 c.Cluster.SeedNodes,
		GossipFanout:              def.GossipFanout,
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.FailureDetectionThreshold <= 0 {
		cfg.FailureDetectionThreshold = def.FailureDetectionThreshold
	}

	switch c.Cluster.ReconnectionStrategy {
	case "immediate":
		cfg.ReconnectionStrategy = cluster.Immediate
	case "linear":
		cfg.ReconnectionStrategy = cluster.Linear
	default:
		cfg.ReconnectionStrategy = cluster.ExponentialBackoff
	}

	switch c.Cluster.MembershipProtocol {
	case "static":
		cfg.MembershipProtocol = cluster.ProtocolStatic
	case "multicast":
		cfg.MembershipProtocol = cluster.ProtocolMulticast
	default:
		cfg.MembershipProtocol = cluster.ProtocolGossip
	}

	return cfg
}
