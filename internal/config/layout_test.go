package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	tests := []struct {
		name    string
		cluster ClusterConfig
		subs    []SubworldConfig
		wantErr string
		checkFn func(t *testing.T, l *Layout)
	}{
		{
			name:    "groups fill workers in declaration order",
			cluster: ClusterConfig{Size: 7, MasterRank: 0},
			subs: []SubworldConfig{
				{Name: "small", GroupSize: 2, Groups: 1},
				{Name: "large", GroupSize: 4, Groups: 1},
			},
			checkFn: func(t *testing.T, l *Layout) {
				require.Len(t, l.Groups, 2)
				assert.Equal(t, []int{1, 2}, l.Groups[0].Ranks)
				assert.Equal(t, []int{3, 4, 5, 6}, l.Groups[1].Ranks)
				assert.Empty(t, l.Spare)
				assert.Equal(t, -1, l.BlockOf(0))
				assert.Equal(t, 1, l.BlockOf(4))
			},
		},
		{
			name:    "master in the middle is skipped",
			cluster: ClusterConfig{Size: 5, MasterRank: 2},
			subs:    []SubworldConfig{{Name: "pair", GroupSize: 2, Groups: 2}},
			checkFn: func(t *testing.T, l *Layout) {
				require.Len(t, l.Groups, 2)
				assert.Equal(t, []int{0, 1}, l.Groups[0].Ranks)
				assert.Equal(t, []int{3, 4}, l.Groups[1].Ranks)
				assert.Len(t, l.GroupsOf("pair"), 2)
				assert.NotEqual(t, l.Groups[0].Color, l.Groups[1].Color)
			},
		},
		{
			name:    "unassigned workers are spare",
			cluster: ClusterConfig{Size: 6, MasterRank: 0},
			subs:    []SubworldConfig{{Name: "pair", GroupSize: 2, Groups: 1}},
			checkFn: func(t *testing.T, l *Layout) {
				assert.Equal(t, []int{3, 4, 5}, l.Spare)
				assert.Equal(t, -1, l.BlockOf(5))
			},
		},
		{
			name:    "not enough workers",
			cluster: ClusterConfig{Size: 4, MasterRank: 0},
			subs:    []SubworldConfig{{Name: "pair", GroupSize: 2, Groups: 2}},
			wantErr: "not enough workers",
		},
		{
			name:    "too many groups",
			cluster: ClusterConfig{Size: 30, MasterRank: 0},
			subs:    []SubworldConfig{{Name: "one", GroupSize: 1, Groups: MaxGroups + 1}},
			wantErr: "more than",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Cluster: tt.cluster, Subworlds: tt.subs}
			l, err := cfg.Layout()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.checkFn(t, l)
		})
	}
}

func TestGroupColorIsDeterministic(t *testing.T) {
	assert.Equal(t, GroupColor("pair", 0), GroupColor("pair", 0))
	assert.NotEqual(t, GroupColor("pair", 0), GroupColor("pair", 1))
	assert.NotEqual(t, GroupColor("pair", 0), GroupColor("quad", 0))
}

func TestLayoutColorsMatchGroups(t *testing.T) {
	cfg := &Config{
		Cluster:   ClusterConfig{Size: 4},
		Subworlds: []SubworldConfig{{Name: "a", GroupSize: 1, Groups: 3}},
	}
	l, err := cfg.Layout()
	require.NoError(t, err)
	colors := l.Colors()
	require.Len(t, colors, 3)
	for i, g := range l.Groups {
		assert.Equal(t, g.Color, colors[i])
		assert.Equal(t, i, g.Index)
	}
}
