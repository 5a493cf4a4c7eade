package engine

import (
	"sync"

	"github.com/workflowkit/engine/pkg/executor"
	"github.com/workflowkit/engine/pkg/models"
)

// statsProvider is implemented by executor.Manager backends that track
// per-type usage counters (executor.Registry does). Checked with a type
// assertion so connectorStatistics degrades gracefully against a Manager
// that doesn't track stats, rather than widening the Manager interface.
type statsProvider interface {
	AllStats() map[string]executor.ExecutorStats
}

// connectorCatalog is the in-memory registry of connector definitions
// (C2 discovery metadata), separate from the executor.Manager: a
// ConnectorDefinition is what registerConnector/listConnectors expose,
// the registered executor.Executor is what actually runs the node.
type connectorCatalog struct {
	mu         sync.RWMutex
	registry   executor.Manager
	connectors map[string]*models.ConnectorDefinition
}

func newConnectorCatalog(registry executor.Manager) *connectorCatalog {
	return &connectorCatalog{
		registry:   registry,
		connectors: make(map[string]*models.ConnectorDefinition),
	}
}

// Register adds or replaces a connector definition in the catalog.
func (c *connectorCatalog) Register(def *models.ConnectorDefinition) error {
	if def == nil {
		return &models.ValidationError{Field: "connector", Message: "definition is required"}
	}
	if err := def.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectors[def.Type] = def
	return nil
}

// Get retrieves a connector definition by type.
func (c *connectorCatalog) Get(connectorType string) (*models.ConnectorDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.connectors[connectorType]
	if !ok {
		return nil, models.ErrConnectorNotFound
	}
	return def, nil
}

// List returns every registered connector definition.
func (c *connectorCatalog) List() []*models.ConnectorDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.ConnectorDefinition, 0, len(c.connectors))
	for _, def := range c.connectors {
		out = append(out, def)
	}
	return out
}

// Statistics returns per-connector-type usage counters from the
// underlying executor registry, keyed by node type.
func (c *connectorCatalog) Statistics() map[string]executor.ExecutorStats {
	if sp, ok := c.registry.(statsProvider); ok {
		return sp.AllStats()
	}
	return map[string]executor.ExecutorStats{}
}
