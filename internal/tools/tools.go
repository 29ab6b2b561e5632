// Package tools defines the commerce tools a turn may call and the
// plumbing that gates, isolates and retries them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	SearchProducts         = "search_products"
	ProductRecommendations = "get_product_recommendations"
	OrderStatus            = "get_order_status"
)

// Family groups tools behind one capability flag.
type Family uint8

const (
	FamilyProduct Family = iota + 1
	FamilyOrder
)

func (f Family) String() string {
	switch f {
	case FamilyProduct:
		return "product"
	case FamilyOrder:
		return "order"
	default:
		return "unknown"
	}
}

var families = map[string]Family{
	SearchProducts:         FamilyProduct,
	ProductRecommendations: FamilyProduct,
	OrderStatus:            FamilyOrder,
}

// FamilyOf reports the capability family of a known tool.
func FamilyOf(name string) (Family, bool) {
	f, ok := families[name]
	return f, ok
}

// ErrRejected marks a failure reported by the tool itself (bad arguments,
// unknown order). Rejections are not retried.
var ErrRejected = errors.New("tool rejected call")

// ErrUnavailable is returned when a tool is not exposed to the caller.
var ErrUnavailable = errors.New("tool unavailable")

// Invoker calls a named tool with JSON arguments and returns its text output.
type Invoker interface {
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error)
	HasTool(name string) bool
}

// Func is an in-process tool implementation.
type Func func(ctx context.Context, arguments json.RawMessage) (string, error)

// Registry is an in-process Invoker.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) CallTool(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, name)
	}
	return fn(ctx, arguments)
}
