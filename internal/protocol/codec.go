package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVersion      = errors.New("protocol version mismatch")
	ErrMalformed    = errors.New("malformed message")
	ErrArgsTooLarge = errors.New("work arguments too large")
)

var order = binary.NativeEndian

func boolInt(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Encode serializes msg. A Work message is sized to its arguments, never to
// the full capacity.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Next:
		buf := make([]byte, NextSize)
		putHeader(buf, KindNext)
		order.PutUint32(buf[8:], boolInt(m.Initial))
		order.PutUint32(buf[12:], uint32(m.Status))
		return buf, nil

	case *Work:
		if len(m.Args) > ArgsSize {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrArgsTooLarge, len(m.Args), ArgsSize)
		}
		buf := make([]byte, m.Size())
		putHeader(buf, KindWork)
		order.PutUint32(buf[8:], uint32(m.Size()))
		order.PutUint32(buf[12:], uint32(m.Subworld))
		order.PutUint64(buf[16:], m.Color)
		order.PutUint32(buf[24:], uint32(m.NProcs))
		order.PutUint32(buf[28:], boolInt(m.Trace))
		copy(buf[WorkHeaderSize:], m.Args)
		return buf, nil

	case *None:
		buf := make([]byte, NoneSize)
		putHeader(buf, KindNone)
		return buf, nil

	default:
		return nil, fmt.Errorf("cannot encode %T", msg)
	}
}

func putHeader(buf []byte, kind Kind) {
	order.PutUint32(buf[0:], uint32(kind))
	order.PutUint32(buf[4:], uint32(Version))
}

// Decode parses the count bytes actually received. The version is checked
// before anything else. For WORK, only the bytes within the declared message
// size are read; anything after it is ignored.
func Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformed, len(data))
	}
	kind := Kind(int32(order.Uint32(data[0:])))
	version := int32(order.Uint32(data[4:]))
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersion, version, Version)
	}

	switch kind {
	case KindNext:
		if len(data) < NextSize {
			return nil, fmt.Errorf("%w: NEXT of %d bytes", ErrMalformed, len(data))
		}
		return &Next{
			Initial: order.Uint32(data[8:]) != 0,
			Status:  int32(order.Uint32(data[12:])),
		}, nil

	case KindWork:
		if len(data) < WorkHeaderSize {
			return nil, fmt.Errorf("%w: WORK of %d bytes", ErrMalformed, len(data))
		}
		size := int(int32(order.Uint32(data[8:])))
		if size < WorkHeaderSize || size > len(data) {
			return nil, fmt.Errorf("%w: WORK declares %d bytes, received %d", ErrMalformed, size, len(data))
		}
		if size-WorkHeaderSize > ArgsSize {
			return nil, fmt.Errorf("%w: WORK arguments of %d bytes", ErrMalformed, size-WorkHeaderSize)
		}
		return &Work{
			Subworld: int32(order.Uint32(data[12:])),
			Color:    order.Uint64(data[16:]),
			NProcs:   int32(order.Uint32(data[24:])),
			Trace:    order.Uint32(data[28:]) != 0,
			Args:     bytes.Clone(data[WorkHeaderSize:size]),
		}, nil

	case KindNone:
		return &None{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %s", ErrMalformed, kind)
	}
}

// PackArgs packs argv as NUL-terminated strings, so arguments may hold
// white space. Empty arguments do not survive ParseArgs.
func PackArgs(argv []string) []byte {
	var b bytes.Buffer
	for _, a := range argv {
		b.WriteString(a)
		b.WriteByte(0)
	}
	return b.Bytes()
}

// ParseArgs unpacks an argument string. One holding a NUL byte is PackArgs
// output and splits on NUL only; any other splits on white space. Empty
// fields are dropped.
func ParseArgs(args []byte) []string {
	s := string(args)
	if strings.IndexByte(s, 0) < 0 {
		return strings.Fields(s)
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == 0 })
}
