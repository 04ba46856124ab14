package spawn

import (
	"fmt"

	"github.com/pf-aics-riken/mpispawner/internal/subworld"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// SplitSubworlds creates the subworld groups. It is collective over base:
// every rank calls it with the same colors, and block is the index of the
// caller's group or -1 for ranks in none. The returned entries carry a nil
// Comm for groups the caller is not in.
func SplitSubworlds(prims transport.Transport, base transport.Comm, block int, colors []uint64) ([]subworld.Entry, error) {
	if block >= len(colors) {
		return nil, fmt.Errorf("%w: block %d with %d subworlds", ErrConfig, block, len(colors))
	}
	rank, err := prims.CommRank(base)
	if err != nil {
		return nil, err
	}
	color := transport.Undefined
	if block >= 0 {
		color = block
	}
	sub, err := prims.CommSplit(base, color, rank)
	if err != nil {
		return nil, fmt.Errorf("split subworlds: %w", err)
	}

	entries := make([]subworld.Entry, len(colors))
	for i, c := range colors {
		entries[i].Color = c
		if i == block {
			entries[i].Comm = sub
		}
	}
	return entries, nil
}
