package actor

import "fmt"

// Local is the node name used for actors resident on this ActorSystem.
const Local = ""

// Address uniquely identifies an actor, local or remote, by the pair
// (node, id). Equality is value equality; Address is intentionally a
// plain comparable struct rather than a pointer so that PIDs can be held,
// hashed, and compared without introducing pointer cycles between
// parents and children (REDESIGN FLAGS, "Parent-child cyclic ownership").
type Address struct {
	// Node is the owning node's identifier. Local (the empty string)
	// means the actor is resident on this ActorSystem.
	Node string

	// ID is the actor's identifier, unique within its node.
	ID string
}

// IsLocal reports whether this address refers to an actor on this node.
func (a Address) IsLocal() bool {
	return a.Node == Local
}

// String renders the address as "node/id", or just "id" when local.
func (a Address) String() string {
	if a.IsLocal() {
		return a.ID
	}
	return fmt.Sprintf("%s/%s", a.Node, a.ID)
}

// PID is a located actor reference: an Address plus an optional Kind used
// by remote spawn to look up the actor template on the target node.
type PID struct {
	Address

	// Kind names the registered actor template this PID was spawned
	// from. Empty for locally-created PIDs that were never remoted.
	Kind string
}

// NewLocalPID returns a PID addressing a local actor with the given id.
func NewLocalPID(id string) PID {
	return PID{Address: Address{Node: Local, ID: id}}
}

// NewRemotePID returns a PID addressing an actor on a remote node.
func NewRemotePID(node, id string) PID {
	return PID{Address: Address{Node: node, ID: id}}
}
