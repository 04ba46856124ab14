// Package transport defines the group-communication primitives the spawn layer
// runs on: rank-addressed point-to-point messaging inside a fixed process group,
// plus communicator construction and lifecycle calls.
//
// A Transport is one process's endpoint into the group. Implementations are not
// safe for concurrent use by multiple goroutines of the same process.
package transport

import (
	"errors"
	"fmt"
)

const (
	// AnySource matches a message from any rank.
	AnySource = -1
	// AnyTag matches a message with any non-negative tag.
	AnyTag = -1
	// Undefined is the split color for ranks that join no new communicator.
	Undefined = -32766
)

var (
	ErrAborted     = errors.New("transport aborted")
	ErrTruncated   = errors.New("message truncated")
	ErrInvalidComm = errors.New("invalid communicator")
	ErrInvalidRank = errors.New("invalid rank")
	ErrInvalidTag  = errors.New("invalid tag")
	ErrFinalized   = errors.New("transport finalized")
)

// Comm is an opaque communicator handle owned by a Transport.
type Comm interface {
	fmt.Stringer
}

// Status describes a received message.
type Status struct {
	Source int
	Tag    int
	Count  int
}

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/pf-aics-riken/mpispawner/internal/transport Transport

// Transport is the primitive surface of the messaging runtime.
type Transport interface {
	World() Comm
	Self() Comm

	Init() error
	Finalize() error
	Abort(comm Comm, code int) error

	Send(buf []byte, dst, tag int, comm Comm) error
	Recv(buf []byte, src, tag int, comm Comm) (Status, error)
	GetCount(st Status) int

	CommSize(comm Comm) (int, error)
	CommRank(comm Comm) (int, error)
	CommRemoteSize(comm Comm) (int, error)
	CommGetName(comm Comm) (string, error)
	CommSetName(comm Comm, name string) error

	IntercommCreate(local Comm, localLeader int, peer Comm, remoteLeader, tag int) (Comm, error)
	CommDup(comm Comm) (Comm, error)
	CommSplit(comm Comm, color, key int) (Comm, error)
	CommFree(comm Comm) error

	// HandleSize is the byte size of one communicator handle value.
	HandleSize() int
}
