// Command actord runs an actorkit node: an ActorSystem fronted by a
// gRPC remote transport and a heartbeat-driven cluster membership
// view, configurable via file/env/flags through actorkitcfg.
//
// Grounded on the teacher's cmd/substrated/main.go: flag parsing, a
// rotating log file alongside console output fanned into a single
// btclog.Handler via internal/build.HandlerSet, and a signal-driven
// graceful shutdown with a bounded grace period.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/spf13/pflag"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/corvidlabs/actorkit/actorkitcfg"
	"github.com/corvidlabs/actorkit/cluster"
	"github.com/corvidlabs/actorkit/internal/build"
	"github.com/corvidlabs/actorkit/remote"
	"github.com/corvidlabs/actorkit/tracing"
)

func main() {
	flags := pflag.NewFlagSet("actord", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to actord config file (yaml/toml/json)")
	listenAddr := flags.StringP("listen", "l", ":7070", "gRPC transport listen address")
	nodeID := flags.String("node-id", "", "Stable node id (default: random uuid)")
	logDir := flags.String("log-dir", "", "Directory for rotating log files (empty disables file logging)")
	flags.Parse(os.Args[1:])

	cfgLoader, err := actorkitcfg.NewLoader(*configPath, flags)
	if err != nil {
		log.Fatalf("actord: load config: %v", err)
	}
	cfg := cfgLoader.Current()

	logger, closeLog := setupLogging(*logDir, cfg.Log.Level)
	defer closeLog()

	actor.UseLogger(logger.WithPrefix("ACTR"))
	remote.UseLogger(logger.WithPrefix("RMTE"))
	cluster.UseLogger(logger.WithPrefix("CLUS"))
	tracing.UseLogger(logger.WithPrefix("TRAC"))

	sys := actor.NewActorSystemWithConfig(cfg.ActorSystemConfig())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), cfg.System.ShutdownGracePeriod,
		)
		defer cancel()
		if err := sys.Shutdown(shutdownCtx); err != nil {
			log.Printf("actord: shutdown incomplete: %v", err)
		}
	}()

	metrics := tracing.NewMetrics()
	tracer := tracing.NewTracer()
	tracing.InstrumentSystem(sys, tracer, metrics)
	tracing.InstrumentErrorLogging(sys, tracing.NewLogBridge())

	transport := remote.NewGRPCTransport(remote.DefaultGRPCTransportConfig(*listenAddr))
	resolver := remote.NewStaticPeerResolver()
	id := *nodeID
	if id == "" {
		id = cluster.NewNodeID()
	}

	codec := remote.NewJSONCodec()
	codec.Register("EchoMessage", func() actor.Message { return &EchoMessage{} })
	bridge := remote.NewBridge(sys, transport, codec, resolver, id)

	echoRef := spawnEchoActor(sys)
	bridge.Expose("echo", demoTellOnlyRef{echoRef})

	startCtx, startCancel := context.WithCancel(context.Background())
	defer startCancel()

	if err := bridge.Start(startCtx); err != nil {
		log.Fatalf("actord: start transport: %v", err)
	}
	defer bridge.Stop(context.Background())

	clusterCfg := cfg.ClusterConfig()
	clusterCfg.MembershipProtocol = cluster.ProtocolStatic
	mgr := cluster.NewManager(id, transport.LocalAddress(), clusterCfg, nil)
	mgr.Start(startCtx)
	defer mgr.Stop()

	fmt.Printf("actord listening on %s (node %s)\n", transport.LocalAddress(), id)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("actord: shutting down")
}

// setupLogging builds the combined console+rotating-file btclog
// handler, mirroring the teacher's dual-stream logging setup.
func setupLogging(logDir, level string) (btclogv2.Logger, func()) {
	var handlers []btclogv2.Handler
	handlers = append(handlers, btclogv2.NewDefaultHandler(os.Stderr))

	var rotator *build.RotatingLogWriter
	if logDir != "" {
		rotator = build.NewRotatingLogWriter()
		cfg := build.DefaultLogRotatorConfig()
		cfg.LogDir = logDir
		cfg.Filename = "actord.log"
		if err := rotator.InitLogRotator(cfg); err != nil {
			log.Printf("actord: log rotation disabled: %v", err)
			rotator = nil
		} else {
			handlers = append(handlers, btclogv2.NewDefaultHandler(rotator))
		}
	}

	combined := build.NewHandlerSet(handlers...)
	combined.SetLevel(parseLevel(level))

	logger := btclogv2.NewSLogger(combined)
	closeFn := func() {
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, closeFn
}

// parseLevel maps a config string onto a btclog.Level, defaulting to
// Info for anything unrecognized.
func parseLevel(s string) btclog.Level {
	switch s {
	case "trace":
		return btclog.LevelTrace
	case "debug":
		return btclog.LevelDebug
	case "warn", "warning":
		return btclog.LevelWarn
	case "error":
		return btclog.LevelError
	case "critical":
		return btclog.LevelCritical
	case "off":
		return btclog.LevelOff
	default:
		return btclog.LevelInfo
	}
}

// EchoMessage is the demo actor's request type: actord always exposes
// a trivial "echo" actor over the remote transport so actorctl has
// something to talk to out of the box.
type EchoMessage struct {
	actor.BaseMessage
	Text string
}

// MessageType implements actor.Message.
func (EchoMessage) MessageType() string { return "EchoMessage" }

func spawnEchoActor(sys *actor.ActorSystem) actor.ActorRef[EchoMessage, any] {
	return actor.Spawn[EchoMessage, any](sys, "echo", func() actor.ActorBehavior[EchoMessage, any] {
		return actor.NewFunctionBehavior(func(_ context.Context, msg EchoMessage) fn.Result[any] {
			return fn.Ok[any](msg.Text)
		})
	})
}

// demoTellOnlyRef adapts an ActorRef[EchoMessage, any] to the
// TellOnlyRef[actor.Message] the Bridge needs for Expose, decoding the
// concrete EchoMessage out of the wire-decoded actor.Message.
type demoTellOnlyRef struct {
	ref actor.ActorRef[EchoMessage, any]
}

func (d demoTellOnlyRef) ID() string { return d.ref.ID() }

func (d demoTellOnlyRef) Tell(ctx context.Context, msg actor.Message) {
	switch em := msg.(type) {
	case *EchoMessage:
		d.ref.Tell(ctx, *em)
	case EchoMessage:
		d.ref.Tell(ctx, em)
	}
}
