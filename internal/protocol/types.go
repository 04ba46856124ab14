// Package protocol defines the spawn RPC messages and their fixed binary
// layout. All integers are in the host's native byte order since every
// process of a run shares one machine architecture.
package protocol

import "fmt"

const (
	// Version is the protocol version every message carries.
	Version int32 = 20160904

	// ArgsSize is the hard cap on the argument bytes of a WORK message.
	ArgsSize = 8 * 1024

	// RPCTag is the transport tag of NEXT/WORK/NONE exchanges.
	RPCTag = 600
	// ICommTag is the transport tag of the job attach handshake.
	ICommTag = 601
)

// Wire sizes in bytes.
const (
	HeaderSize     = 8
	NextSize       = 16
	NoneSize       = HeaderSize
	WorkHeaderSize = 32
	MaxMessageSize = WorkHeaderSize + ArgsSize
)

// Kind is the message discriminant.
type Kind int32

const (
	KindNone Kind = 0
	KindWork Kind = 1
	KindNext Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindWork:
		return "WORK"
	case KindNext:
		return "NEXT"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

// Message is one of *Next, *Work or *None.
type Message interface {
	Kind() Kind
}

// Next is sent by a worker to ask for its next job.
type Next struct {
	// Initial is set only on the first request a worker sends.
	Initial bool
	// Status is how the previous job ended; 0 is success.
	Status int32
}

// Work dispatches a job to a worker.
type Work struct {
	Subworld int32
	Color    uint64
	NProcs   int32
	Trace    bool
	// Args holds the packed argument string; see PackArgs.
	Args []byte
}

// None tells a worker there is no more work.
type None struct{}

func (*Next) Kind() Kind { return KindNext }
func (*Work) Kind() Kind { return KindWork }
func (*None) Kind() Kind { return KindNone }

// Size returns the wire size of the message.
func (w *Work) Size() int { return WorkHeaderSize + len(w.Args) }
