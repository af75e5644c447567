package actor

import "context"

// envelope wraps a user message with its associated promise and caller
// context. If promise is nil, it signifies a Tell (fire-and-forget);
// otherwise it is an Ask awaiting completion.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// --- built-in system messages -------------------------------------------
//
// These travel on every mailbox's system lane ahead of user messages,
// regardless of the cell's M/R type parameters (see SystemMessage).

// Stop requests that the target cell terminate. A cell keeps no set of
// children, so no other cell is stopped along with it.
type Stop struct{ BaseMessage }

// MessageType implements Message.
func (Stop) MessageType() string { return "actor.Stop" }
func (Stop) systemKind() systemKind { return sysStop }

// Restart requests that the target cell be restarted by its supervisor:
// preRestart on the old instance, postRestart on the new one.
type Restart struct {
	BaseMessage
	Cause error
}

// MessageType implements Message.
func (Restart) MessageType() string   { return "actor.Restart" }
func (Restart) systemKind() systemKind { return sysRestart }

// Watch registers Watcher to receive a Terminated message when the
// target cell reaches Stopped. WatcherRef is the delivery path used to
// actually send that Terminated notification; Watcher identifies the
// watcher for later Unwatch.
type Watch struct {
	BaseMessage
	Watcher    PID
	WatcherRef TellOnlyRef[Message]
}

// MessageType implements Message.
func (Watch) MessageType() string    { return "actor.Watch" }
func (Watch) systemKind() systemKind { return sysWatch }

// Unwatch removes a previously registered watcher.
type Unwatch struct {
	BaseMessage
	Watcher PID
}

// MessageType implements Message.
func (Unwatch) MessageType() string   { return "actor.Unwatch" }
func (Unwatch) systemKind() systemKind { return sysUnwatch }

// Terminated is delivered exactly once to every watcher of an actor that
// reaches the Stopped state.
type Terminated struct {
	BaseMessage
	Who PID
}

// MessageType implements Message.
func (Terminated) MessageType() string    { return "actor.Terminated" }
func (Terminated) systemKind() systemKind { return sysTerminated }
