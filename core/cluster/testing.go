package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func CreateInMemoryTransport(t *testing.T) *MemoryTransport {
	tr := NewInMemoryTransport()
	t.Cleanup(func() {
		require.NoError(t, tr.Close())
	})
	return tr
}

// CreateTestCluster starts numNodes nodes that all serve address with h.
func CreateTestCluster(
	t *testing.T,
	tr ServerTransport,
	numNodes int,
	address string,
	h ServerHandlerFunc,
) []*Node {
	nodes := make([]*Node, 0, numNodes)
	for i := 0; i < numNodes; i++ {
		n := NewNode(NodeOptions{
			NodeID:    fmt.Sprintf("node-%d", i),
			Transport: tr,
			Addresses: []string{address},
			Handler:   h,
		})

		require.NoError(t, n.Run(t.Context()))
		nodes = append(nodes, n)
	}
	return nodes
}
