package cluster

import (
	"fmt"
	"time"

	"kvbench/internal/config"
)

// Cluster bundles one NodeClient per configured node. The node set is
// read-only after construction and safe to share across workers.
type Cluster struct {
	nodes  []*NodeClient
	byName map[string]*NodeClient
}

// New builds clients for every node in the configuration.
func New(cfg config.ClusterConfig, timeout time.Duration) (*Cluster, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("cluster has no nodes")
	}

	c := &Cluster{byName: make(map[string]*NodeClient, len(cfg.Nodes))}
	for _, n := range cfg.Nodes {
		if _, dup := c.byName[n.Name]; dup {
			return nil, fmt.Errorf("duplicate node name %s", n.Name)
		}
		nc := NewNodeClient(n.Name, n.BaseURL, timeout)
		c.nodes = append(c.nodes, nc)
		c.byName[n.Name] = nc
	}
	return c, nil
}

// FromClients builds a Cluster from pre-built node clients. Used by tests
// that point nodes at httptest servers.
func FromClients(nodes ...*NodeClient) (*Cluster, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("cluster has no nodes")
	}
	c := &Cluster{byName: make(map[string]*NodeClient, len(nodes))}
	for _, n := range nodes {
		if _, dup := c.byName[n.Name()]; dup {
			return nil, fmt.Errorf("duplicate node name %s", n.Name())
		}
		c.nodes = append(c.nodes, n)
		c.byName[n.Name()] = n
	}
	return c, nil
}

// Nodes returns all node clients in configuration order.
func (c *Cluster) Nodes() []*NodeClient { return c.nodes }

// Primary returns the first configured node, the coordinator used by
// sequential probes.
func (c *Cluster) Primary() *NodeClient { return c.nodes[0] }

// Node looks a client up by name.
func (c *Cluster) Node(name string) (*NodeClient, error) {
	nc, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %s", name)
	}
	return nc, nil
}

// Names returns the node names in configuration order.
func (c *Cluster) Names() []string {
	names := make([]string, len(c.nodes))
	for i, n := range c.nodes {
		names[i] = n.Name()
	}
	return names
}
