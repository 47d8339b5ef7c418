// Package principal maps connection-level identity to logical principals
package principal

import (
	"fmt"

	"github.com/broker-authz/go-core/pkg/types"
)

// ConnectionContext carries the transport identity the broker negotiated
// for a connection. It is assembled once at connection setup; authentication
// itself (verifying the credential) happens upstream.
type ConnectionContext struct {
	// ListenerName is the broker listener the client connected through
	ListenerName string
	// SecurityProtocol names the transport security in use (e.g. PLAINTEXT,
	// SASL_SSL); informational for resolvers that discriminate by it
	SecurityProtocol string
	// AuthenticatedName is the credential name authentication produced,
	// empty when the connection is unauthenticated
	AuthenticatedName string
	// ClientAddr is the remote host address
	ClientAddr string
}

// Resolver turns a connection context into the logical principal ACL
// matching uses. Implementations must be deterministic and side-effect-free:
// the same context always resolves to the same principal. A resolution
// failure is a configuration error surfaced at connection setup, never a
// per-request condition.
type Resolver interface {
	Resolve(ctx ConnectionContext) (types.Principal, error)
}

// DefaultResolver derives the principal 1:1 from the authenticated
// credential's name, under a fixed principal type.
type DefaultResolver struct {
	principalType string
}

// NewDefaultResolver creates a resolver using the given principal type,
// defaulting to "User"
func NewDefaultResolver(principalType string) *DefaultResolver {
	if principalType == "" {
		principalType = types.PrincipalTypeUser
	}
	return &DefaultResolver{principalType: principalType}
}

// Resolve maps the authenticated name to a principal
func (r *DefaultResolver) Resolve(ctx ConnectionContext) (types.Principal, error) {
	if ctx.AuthenticatedName == "" {
		return types.Principal{}, fmt.Errorf("cannot resolve principal: connection on listener %q carries no authenticated identity", ctx.ListenerName)
	}
	return types.Principal{Type: r.principalType, Name: ctx.AuthenticatedName}, nil
}

// ListenerResolver maps selected listeners to fixed principals, delegating
// everything else to a fallback resolver. This grants broker-internal
// traffic a distinguished identity separate from client traffic.
type ListenerResolver struct {
	mappings map[string]types.Principal
	fallback Resolver
}

// NewListenerResolver creates a listener-mapping resolver. The fallback may
// be nil, in which case an unmapped listener is a resolution error.
func NewListenerResolver(mappings map[string]types.Principal, fallback Resolver) *ListenerResolver {
	cp := make(map[string]types.Principal, len(mappings))
	for k, v := range mappings {
		cp[k] = v
	}
	return &ListenerResolver{mappings: cp, fallback: fallback}
}

// Resolve returns the mapped principal for known listeners
func (r *ListenerResolver) Resolve(ctx ConnectionContext) (types.Principal, error) {
	if p, ok := r.mappings[ctx.ListenerName]; ok {
		return p, nil
	}
	if r.fallback != nil {
		return r.fallback.Resolve(ctx)
	}
	return types.Principal{}, fmt.Errorf("cannot resolve principal: listener %q has no mapping and no fallback resolver is configured", ctx.ListenerName)
}
