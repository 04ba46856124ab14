package config

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
)

// MaxGroups is the number of subworld groups the spawn layer can register.
const MaxGroups = 20

// Group is one registered subworld group.
type Group struct {
	// Index is the group's subworld registry index.
	Index    int
	Subworld string
	// Ranks are the base-group ranks of the members, in subworld rank order.
	Ranks []int
	Color uint64
}

// Layout assigns worker ranks to subworld groups.
type Layout struct {
	Master int
	Groups []Group
	// Spare are worker ranks in no group.
	Spare []int

	block map[int]int
}

// GroupColor is the integrity color of the block-th group overall, declared
// by subworld name. Master and workers derive it independently.
func GroupColor(name string, block int) uint64 {
	sum := blake3.Sum256([]byte(name + "#" + strconv.Itoa(block)))
	return binary.LittleEndian.Uint64(sum[:8])
}

// Layout partitions the worker ranks (every rank but the master, ascending)
// into consecutive groups in declaration order.
func (c *Config) Layout() (*Layout, error) {
	workers := make([]int, 0, c.Cluster.Size)
	for r := range c.Cluster.Size {
		if r != c.Cluster.MasterRank {
			workers = append(workers, r)
		}
	}

	l := &Layout{Master: c.Cluster.MasterRank, block: make(map[int]int)}
	next := 0
	for _, sw := range c.Subworlds {
		for range sw.Groups {
			if len(l.Groups) == MaxGroups {
				return nil, fmt.Errorf("subworlds declare more than %d groups", MaxGroups)
			}
			if next+sw.GroupSize > len(workers) {
				return nil, fmt.Errorf("subworld %q: not enough workers for another group of %d (%d of %d used)",
					sw.Name, sw.GroupSize, next, len(workers))
			}
			index := len(l.Groups)
			ranks := append([]int(nil), workers[next:next+sw.GroupSize]...)
			for _, r := range ranks {
				l.block[r] = index
			}
			l.Groups = append(l.Groups, Group{
				Index:    index,
				Subworld: sw.Name,
				Ranks:    ranks,
				Color:    GroupColor(sw.Name, index),
			})
			next += sw.GroupSize
		}
	}
	l.Spare = append([]int(nil), workers[next:]...)
	return l, nil
}

// Colors returns the group colors in registry order.
func (l *Layout) Colors() []uint64 {
	out := make([]uint64, len(l.Groups))
	for i, g := range l.Groups {
		out[i] = g.Color
	}
	return out
}

// BlockOf returns the index of the group rank belongs to, or -1.
func (l *Layout) BlockOf(rank int) int {
	if b, ok := l.block[rank]; ok {
		return b
	}
	return -1
}

// GroupsOf returns the groups declared by the named subworld.
func (l *Layout) GroupsOf(subworld string) []Group {
	var out []Group
	for _, g := range l.Groups {
		if g.Subworld == subworld {
			out = append(out, g)
		}
	}
	return out
}
