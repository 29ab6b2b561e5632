package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Gate exposes only the tool families a turn is entitled to.
type Gate struct {
	backend Invoker
	product bool
	order   bool
}

func NewGate(backend Invoker, hasProductTools, hasOrderTools bool) *Gate {
	return &Gate{backend: backend, product: hasProductTools, order: hasOrderTools}
}

// HasTool reports whether name is known, its family flag is set and the
// backend serves it.
func (g *Gate) HasTool(name string) bool {
	if g == nil || g.backend == nil {
		return false
	}
	family, ok := FamilyOf(name)
	if !ok {
		return false
	}
	switch family {
	case FamilyProduct:
		if !g.product {
			return false
		}
	case FamilyOrder:
		if !g.order {
			return false
		}
	}
	return g.backend.HasTool(name)
}

func (g *Gate) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	if !g.HasTool(name) {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	return g.backend.CallTool(ctx, name, arguments)
}
