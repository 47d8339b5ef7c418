// Package authorizer provides the broker access-control decision engine
package authorizer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/broker-authz/go-core/internal/audit"
	"github.com/broker-authz/go-core/internal/cache"
	"github.com/broker-authz/go-core/internal/metrics"
	"github.com/broker-authz/go-core/internal/store"
	"github.com/broker-authz/go-core/pkg/types"
)

// Authorizer answers resource-touching authorization questions and manages
// the ACL bindings those answers derive from.
type Authorizer interface {
	// Authorize decides one request. The error reports an operational or
	// validation failure; the decision is DENY whenever the error is non-nil.
	Authorize(ctx context.Context, req *types.AuthorizeRequest) (types.Decision, error)

	// AuthorizeBatch decides several requests, preserving order
	AuthorizeBatch(ctx context.Context, reqs []*types.AuthorizeRequest) ([]types.Decision, error)

	// AddAcls stores bindings and returns those actually added
	AddAcls(ctx context.Context, bindings []types.AclBinding) ([]types.AclBinding, error)

	// RemoveAcls deletes every binding the filter selects and returns them
	RemoveAcls(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error)

	// ListAcls returns the bindings the filter selects
	ListAcls(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error)

	// Close releases the decision cache and flushes audit state
	Close() error
}

// Config configures the decision engine
type Config struct {
	// SuperUsers bypass ACL evaluation entirely, including explicit DENY
	SuperUsers []types.Principal

	// StoreTimeout caps one binding lookup against the store. Zero disables
	// the per-lookup deadline.
	StoreTimeout time.Duration

	// CacheEnabled enables memoization of decisions
	CacheEnabled bool
	// CacheSize is the maximum number of cached decisions
	CacheSize int
	// CacheTTL bounds the lifetime of a cached decision; epoch invalidation
	// applies regardless of TTL
	CacheTTL time.Duration
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{
		StoreTimeout: 500 * time.Millisecond,
		CacheEnabled: true,
		CacheSize:    100000,
		CacheTTL:     5 * time.Minute,
	}
}

// AclAuthorizer is the default Authorizer backed by a binding store
type AclAuthorizer struct {
	store      store.Store
	cache      cache.Cache
	superUsers map[types.Principal]bool

	auditLog audit.Logger
	metrics  *metrics.Metrics
	logger   *zap.Logger

	config Config
}

var _ Authorizer = (*AclAuthorizer)(nil)

// Option customizes an AclAuthorizer
type Option func(*AclAuthorizer)

// WithCache installs a pre-built decision cache instead of the default LRU
func WithCache(c cache.Cache) Option {
	return func(a *AclAuthorizer) { a.cache = c }
}

// WithAuditLogger installs an audit logger
func WithAuditLogger(l audit.Logger) Option {
	return func(a *AclAuthorizer) { a.auditLog = l }
}

// WithMetrics installs a metrics recorder
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *AclAuthorizer) { a.metrics = m }
}

// WithLogger installs a structured logger
func WithLogger(l *zap.Logger) Option {
	return func(a *AclAuthorizer) { a.logger = l }
}

// New creates an AclAuthorizer on top of the given binding store
func New(cfg Config, s store.Store, opts ...Option) (*AclAuthorizer, error) {
	if s == nil {
		return nil, fmt.Errorf("authorizer requires a binding store")
	}

	superUsers := make(map[types.Principal]bool, len(cfg.SuperUsers))
	for _, p := range cfg.SuperUsers {
		if p.Type == "" || p.Name == "" {
			return nil, fmt.Errorf("superuser %q is incomplete", p)
		}
		superUsers[p] = true
	}

	a := &AclAuthorizer{
		store:      s,
		superUsers: superUsers,
		auditLog:   audit.NopLogger(),
		logger:     zap.NewNop(),
		config:     cfg,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.cache == nil && cfg.CacheEnabled {
		a.cache = cache.NewLRU(cfg.CacheSize, cfg.CacheTTL)
	}

	if a.metrics != nil {
		a.metrics.SetEpoch(s.Epoch())
		s.OnChange(func(epoch uint64) {
			a.metrics.SetEpoch(epoch)
		})
	}

	return a, nil
}

// Authorize evaluates one request against the stored bindings.
//
// Evaluation order: validation, superuser bypass, decision cache, then the
// matching set. Within the matching set any applicable DENY wins, otherwise
// any applicable ALLOW wins, otherwise the default is DENY. Store faults
// fail closed: the caller gets DENY together with the wrapped fault.
func (a *AclAuthorizer) Authorize(ctx context.Context, req *types.AuthorizeRequest) (types.Decision, error) {
	start := time.Now()

	if a.metrics != nil {
		a.metrics.IncActiveRequests()
		defer a.metrics.DecActiveRequests()
	}

	if err := req.Validate(); err != nil {
		return types.DecisionDeny, err
	}

	if a.superUsers[req.Principal] {
		a.observe(ctx, req, types.DecisionAllow, start, decisionMeta{superuser: true})
		return types.DecisionAllow, nil
	}

	// The epoch is read before the store fetch. A mutation that commits
	// between the read and the Put makes the cached entry stale by epoch
	// comparison, never silently authoritative.
	epoch := a.store.Epoch()

	var key string
	if a.cache != nil {
		key = req.CacheKey()
		if decision, ok := a.cache.Get(key, epoch); ok {
			a.observe(ctx, req, decision, start, decisionMeta{cacheHit: true})
			return decision, nil
		}
	}

	bindings, err := a.fetchMatching(ctx, req.Resource)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordStoreFault("query")
		}
		a.observe(ctx, req, types.DecisionDeny, start, decisionMeta{fault: err})
		return types.DecisionDeny, fmt.Errorf("authorize %s: %w", req.Resource, err)
	}

	decision := evaluate(bindings, req.Principal, req.Host, req.Operation)

	if a.cache != nil {
		a.cache.Put(key, decision, epoch)
	}

	a.observe(ctx, req, decision, start, decisionMeta{})
	return decision, nil
}

// AuthorizeBatch evaluates several requests concurrently. Results keep the
// request order; the error is the first one encountered, with the matching
// positions already forced to DENY.
func (a *AclAuthorizer) AuthorizeBatch(ctx context.Context, reqs []*types.AuthorizeRequest) ([]types.Decision, error) {
	decisions := make([]types.Decision, len(reqs))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r *types.AuthorizeRequest) {
			defer wg.Done()

			decision, err := a.Authorize(ctx, r)
			decisions[idx] = decision
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i, req)
	}

	wg.Wait()
	return decisions, firstErr
}

// AddAcls validates and stores bindings. Already-present bindings are
// skipped; only the newly stored ones are returned and audited.
func (a *AclAuthorizer) AddAcls(ctx context.Context, bindings []types.AclBinding) ([]types.AclBinding, error) {
	added, err := a.store.AddBindings(ctx, bindings)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		a.recordMutation(ctx, audit.AclChangeAdd, added)
	}
	return added, nil
}

// RemoveAcls deletes every stored binding the filter selects
func (a *AclAuthorizer) RemoveAcls(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	removed, err := a.store.RemoveBindings(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		a.recordMutation(ctx, audit.AclChangeRemove, removed)
	}
	return removed, nil
}

// ListAcls returns the bindings the filter selects. With a MATCH filter the
// result is ordered most specific first, for diagnostics; the ordering never
// affects decisions.
func (a *AclAuthorizer) ListAcls(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	bindings, err := a.store.FindBindings(ctx, filter)
	if err != nil {
		return nil, err
	}

	if filter.Pattern.PatternType == types.PatternMatch {
		resource := types.Resource{Type: filter.Pattern.ResourceType, Name: filter.Pattern.Name}
		sort.SliceStable(bindings, func(i, j int) bool {
			return bindings[i].Pattern.Specificity(resource) > bindings[j].Pattern.Specificity(resource)
		})
	}

	return bindings, nil
}

// Close releases the decision cache
func (a *AclAuthorizer) Close() error {
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}

// fetchMatching loads every binding whose pattern covers the resource,
// under the configured store deadline.
func (a *AclAuthorizer) fetchMatching(ctx context.Context, resource types.Resource) ([]types.AclBinding, error) {
	if a.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.StoreTimeout)
		defer cancel()
	}
	return a.store.FindBindings(ctx, types.AclBindingFilter{
		Pattern: types.MatchPatternFilter(resource),
		Entry:   types.AnyEntryFilter(),
	})
}

// evaluate applies deny-overrides-allow over the matching set. Candidate
// bindings are narrowed to the ones whose entry applies to the principal,
// host and operation; a single applicable DENY decides the request no
// matter how many ALLOWs also apply.
func evaluate(bindings []types.AclBinding, principal types.Principal, host string, op types.Operation) types.Decision {
	allowed := false
	for _, b := range bindings {
		if !b.Entry.MatchesRequest(principal, host, op) {
			continue
		}
		if b.Entry.Permission == types.PermissionDeny {
			return types.DecisionDeny
		}
		allowed = true
	}
	if allowed {
		return types.DecisionAllow
	}
	return types.DecisionDeny
}

type decisionMeta struct {
	superuser bool
	cacheHit  bool
	fault     error
}

func (a *AclAuthorizer) observe(ctx context.Context, req *types.AuthorizeRequest, decision types.Decision, start time.Time, meta decisionMeta) {
	elapsed := time.Since(start)

	if a.metrics != nil {
		a.metrics.RecordDecision(decision, elapsed)
		if meta.superuser {
			a.metrics.RecordSuperuserBypass()
		}
		if a.cache != nil && !meta.superuser && meta.fault == nil {
			if meta.cacheHit {
				a.metrics.RecordCacheHit()
			} else {
				a.metrics.RecordCacheMiss()
			}
		}
	}

	event := &audit.DecisionEvent{
		Principal:  req.Principal,
		Host:       req.Host,
		Operation:  req.Operation,
		Resource:   req.Resource,
		Decision:   decision,
		Superuser:  meta.superuser,
		CacheHit:   meta.cacheHit,
		DurationUs: float64(elapsed.Microseconds()),
	}
	if meta.fault != nil {
		event.Fault = meta.fault.Error()
		a.logger.Warn("authorization failed closed",
			zap.String("principal", req.Principal.String()),
			zap.String("resource", req.Resource.String()),
			zap.Error(meta.fault))
	}
	a.auditLog.LogDecision(ctx, event)
}

func (a *AclAuthorizer) recordMutation(ctx context.Context, op audit.AclChangeOp, bindings []types.AclBinding) {
	epoch := a.store.Epoch()
	if a.metrics != nil {
		a.metrics.RecordMutation(string(op), len(bindings))
	}
	a.logger.Info("acl bindings changed",
		zap.String("operation", string(op)),
		zap.Int("bindings", len(bindings)),
		zap.Uint64("epoch", epoch))
	a.auditLog.LogAclChange(ctx, &audit.AclChangeEvent{
		Operation: op,
		Bindings:  bindings,
		Epoch:     epoch,
	})
}
