package models

// NodeSet is a nested subgraph embedded inside a branch or loop node's
// config (§4.3 branch.trueBranch/falseBranch, loop.loopBody). It reuses
// Node/Edge so the planner and dispatcher can treat a nested body as a
// self-contained mini-workflow without a separate type hierarchy.
type NodeSet struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Validate checks that every edge in the set references a node within
// the same set. Cycle detection is left to the planner, which builds
// the same DAG machinery for a nested set as for the root workflow.
func (ns *NodeSet) Validate() error {
	if ns == nil {
		return nil
	}

	ids := make(map[string]bool, len(ns.Nodes))
	for _, n := range ns.Nodes {
		if err := n.Validate(); err != nil {
			return err
		}
		if ids[n.ID] {
			return &ValidationError{Field: "nodes", Message: "duplicate node ID in nested body: " + n.ID}
		}
		ids[n.ID] = true
	}

	for _, e := range ns.Edges {
		if err := e.Validate(); err != nil {
			return err
		}
		if !ids[e.From] || !ids[e.To] {
			return &ValidationError{Field: "edges", Message: "nested edge references a node outside its body: " + e.ID}
		}
	}

	return nil
}

// ParseNodeSet extracts a NodeSet from a raw config field, the shape a
// branch or loop node stores its nested body under (e.g.
// config["trueBranch"], config["loopBody"]). Node.Config stays untyped
// at rest; this is the one place it gets interpreted.
func ParseNodeSet(raw interface{}) (*NodeSet, error) {
	if raw == nil {
		return nil, nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Field: "nodeSet", Message: "nested body must be an object with nodes/edges"}
	}

	ns := &NodeSet{}

	if rawNodes, ok := m["nodes"].([]interface{}); ok {
		for _, rn := range rawNodes {
			node, err := decodeNode(rn)
			if err != nil {
				return nil, err
			}
			ns.Nodes = append(ns.Nodes, node)
		}
	}

	if rawEdges, ok := m["edges"].([]interface{}); ok {
		for _, re := range rawEdges {
			edge, err := decodeEdge(re)
			if err != nil {
				return nil, err
			}
			ns.Edges = append(ns.Edges, edge)
		}
	}

	return ns, ns.Validate()
}

func decodeNode(raw interface{}) (*Node, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Field: "nodes", Message: "nested node must be an object"}
	}
	n := &Node{
		Config: map[string]interface{}{},
	}
	if v, ok := m["id"].(string); ok {
		n.ID = v
	}
	if v, ok := m["name"].(string); ok {
		n.Name = v
	}
	if v, ok := m["type"].(string); ok {
		n.Type = v
	}
	if v, ok := m["description"].(string); ok {
		n.Description = v
	}
	if v, ok := m["config"].(map[string]interface{}); ok {
		n.Config = v
	}
	return n, nil
}

func decodeEdge(raw interface{}) (*Edge, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Field: "edges", Message: "nested edge must be an object"}
	}
	e := &Edge{}
	if v, ok := m["id"].(string); ok {
		e.ID = v
	}
	if v, ok := m["from"].(string); ok {
		e.From = v
	}
	if v, ok := m["to"].(string); ok {
		e.To = v
	}
	if v, ok := m["condition"].(string); ok {
		e.Condition = v
	}
	return e, nil
}
