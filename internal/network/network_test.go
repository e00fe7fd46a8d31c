package network

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/ontolink-go/internal/parsers"
)

func trivialFeatures(n int) []parsers.FeatureRow {
	rows := make([]parsers.FeatureRow, n)
	for i := range rows {
		rows[i] = parsers.FeatureRow{Index: i, Values: []float64{float64(i), 0}}
	}
	return rows
}

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("RootLinksEveryNode", func(t *testing.T) {
		t.Parallel()
		// 1-2 and 3-4 are separate components until the root joins them.
		net, err := Build([][2]int{{1, 2}, {3, 4}}, []string{"source_idx", "feature"}, trivialFeatures(5))
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2, 3, 4, 0}, net.Order)
		assert.Equal(t, 5, net.NumNodes())
		// 2 edges + 4 root links
		assert.Equal(t, 6, net.NumEdges())

		root := slices.Index(net.Order, RootIndex)
		require.GreaterOrEqual(t, root, 0)
		assert.Equal(t, []int{0, 1, 2, 3}, net.Neighbors(root))

		r, c := net.Features.Dims()
		assert.Equal(t, 5, r)
		assert.Equal(t, 2, c)
		// Row 0 is node 1.
		assert.Equal(t, 1.0, net.Features.At(0, 0))
		assert.Equal(t, 0.0, net.Features.At(4, 0))
	})

	t.Run("FeatureOnlyNodesJoinRoot", func(t *testing.T) {
		t.Parallel()
		net, err := Build([][2]int{{0, 1}}, []string{"source_idx", "feature"}, trivialFeatures(4))
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1, 2, 3}, net.Order)
		assert.Equal(t, []int{0}, net.Neighbors(3))
		assert.Equal(t, 3.0, net.Features.At(3, 0))
	})

	t.Run("DuplicateEdgesCollapse", func(t *testing.T) {
		t.Parallel()
		net, err := Build([][2]int{{0, 1}, {1, 0}, {0, 1}}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, [][2]int{{0, 1}}, net.Edges())
		assert.Nil(t, net.Features)
	})

	t.Run("SelfLoopCountsOnce", func(t *testing.T) {
		t.Parallel()
		net, err := Build([][2]int{{0, 1}, {1, 1}}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, [][2]int{{0, 1}, {1, 1}}, net.Edges())
	})

	t.Run("MissingFeatureRowIsZero", func(t *testing.T) {
		t.Parallel()
		net, err := Build([][2]int{{0, 1}, {1, 2}}, []string{"f"}, []parsers.FeatureRow{{Index: 2, Values: []float64{7}}})
		require.NoError(t, err)
		assert.Equal(t, 0.0, net.Features.At(0, 0))
		assert.Equal(t, 7.0, net.Features.At(2, 0))
	})

	t.Run("FeatureWidthMismatch", func(t *testing.T) {
		t.Parallel()
		_, err := Build([][2]int{{0, 1}}, []string{"a", "b"}, []parsers.FeatureRow{{Index: 1, Values: []float64{1}}})
		assert.Error(t, err)
	})
}

func TestBuild_FromFiles(t *testing.T) {
	t.Parallel()

	edges, err := parsers.ReadEdgeList(strings.NewReader("0,2\n1,2\n"))
	require.NoError(t, err)
	header, rows, err := parsers.ReadFeatures(strings.NewReader("idx,source_idx,feature\n0,0,0\n1,1,0\n2,2,0\n"))
	require.NoError(t, err)

	net, err := Build(edges, header, rows)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, net.Order)
	assert.Equal(t, 3, net.NumEdges())
}

func TestBuilder_Connected(t *testing.T) {
	t.Parallel()

	b := newBuilder()
	b.addEdge(0, 1)
	b.addNode(5)
	assert.False(t, b.connected())

	b.addEdge(5, 1)
	assert.True(t, b.connected())

	assert.True(t, newBuilder().connected())
}

func TestFromEdges(t *testing.T) {
	t.Parallel()

	net := FromEdges([]int{4, 5, 6}, [][2]int{{0, 2}})

	assert.Equal(t, 3, net.NumNodes())
	assert.Equal(t, [][2]int{{0, 2}}, net.Edges())
	assert.Equal(t, []int{0}, net.Neighbors(2))
	assert.Empty(t, net.Neighbors(1))

	assert.Equal(t, 2, slices.Index(net.Order, 6))
	assert.Equal(t, -1, slices.Index(net.Order, 9))
}
