package gateway

import (
	"sort"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"
)

// Registry maps gateway names to drivers. It is populated once at
// startup and read-only afterward, so lookups need no locking.
type Registry struct {
	gateways map[domain.GatewayName]ports.Gateway
}

// NewRegistry builds a registry from the given drivers.
func NewRegistry(gws ...ports.Gateway) *Registry {
	m := make(map[domain.GatewayName]ports.Gateway, len(gws))
	for _, gw := range gws {
		m[gw.Name()] = gw
	}
	return &Registry{gateways: m}
}

// Get resolves a gateway by name.
func (r *Registry) Get(name domain.GatewayName) (ports.Gateway, error) {
	gw, ok := r.gateways[name]
	if !ok {
		return nil, apperror.ErrUnknownGateway(string(name))
	}
	return gw, nil
}

// List returns capability descriptors for all registered gateways,
// sorted by name for stable output.
func (r *Registry) List() []ports.Capabilities {
	out := make([]ports.Capabilities, 0, len(r.gateways))
	for _, gw := range r.gateways {
		out = append(out, gw.Capabilities())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
