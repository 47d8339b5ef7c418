package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	iradix "github.com/hashicorp/go-immutable-radix/v2"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/pkg/types"
)

// bindingSet holds the bindings stored under one pattern name, keyed by the
// binding's canonical identity. Sets are treated as immutable once published;
// mutations replace the set rather than editing it in place.
type bindingSet map[string]types.AclBinding

func (s bindingSet) clone() bindingSet {
	out := make(bindingSet, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// typeIndex indexes one resource type's patterns by name. Literal and
// prefixed patterns live in separate radix trees: literal lookups are exact
// (plus the wildcard key), and the prefixed tree answers "which stored
// prefixes cover this resource name" by walking the name's radix path.
type typeIndex struct {
	literal  *iradix.Tree[bindingSet]
	prefixed *iradix.Tree[bindingSet]
}

func newTypeIndex() *typeIndex {
	return &typeIndex{
		literal:  iradix.New[bindingSet](),
		prefixed: iradix.New[bindingSet](),
	}
}

// memoryState is the store's published view. It is immutable: writers build
// a fresh state and swap the pointer, so readers run without any locking.
type memoryState struct {
	byType map[types.ResourceType]*typeIndex
}

// MemoryStore is the reference in-memory Store. Reads work against an
// atomically published copy-on-write radix index; a single mutex serializes
// the infrequent administrative writers.
type MemoryStore struct {
	mu    sync.Mutex // writers only
	state atomic.Pointer[memoryState]
	epoch atomic.Uint64

	listenerMu sync.RWMutex
	listeners  []ChangeListener

	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory ACL store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{logger: logger}
	s.state.Store(&memoryState{byType: map[types.ResourceType]*typeIndex{}})
	return s
}

// Epoch returns the current mutation epoch
func (s *MemoryStore) Epoch() uint64 {
	return s.epoch.Load()
}

// OnChange registers a mutation listener
func (s *MemoryStore) OnChange(listener ChangeListener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *MemoryStore) notify(epoch uint64) {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	for _, l := range s.listeners {
		l(epoch)
	}
}

// Close releases resources (no-op for the in-memory store)
func (s *MemoryStore) Close() error { return nil }

// FindBindings returns all stored bindings the filter selects. MATCH pattern
// filters take the indexed candidate path; everything else scans only the
// resource types the filter names.
func (s *MemoryStore) FindBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	if err := filter.Validate(); err != nil {
		return nil, ErrInvalidFilter(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrQueryFailed(err)
	}

	st := s.state.Load()
	var out []types.AclBinding

	if filter.Pattern.PatternType == types.PatternMatch && filter.Pattern.ResourceType != types.ResourceAny {
		resource := types.Resource{Type: filter.Pattern.ResourceType, Name: filter.Pattern.Name}
		for _, b := range st.candidates(resource) {
			if filter.Entry.Matches(b.Entry) {
				out = append(out, b)
			}
		}
		return sortBindings(out), nil
	}

	scan := func(idx *typeIndex) {
		collect := func(_ []byte, set bindingSet) bool {
			for _, b := range set {
				if filter.Matches(b) {
					out = append(out, b)
				}
			}
			return false
		}
		idx.literal.Root().Walk(collect)
		idx.prefixed.Root().Walk(collect)
	}

	if filter.Pattern.ResourceType == types.ResourceAny {
		for _, idx := range st.byType {
			scan(idx)
		}
	} else if idx, ok := st.byType[filter.Pattern.ResourceType]; ok {
		scan(idx)
	}
	return sortBindings(out), nil
}

// candidates returns every stored binding whose pattern covers the resource:
// the exact literal, the wildcard literal, and each stored prefix of the
// resource name found along the radix path.
func (st *memoryState) candidates(resource types.Resource) []types.AclBinding {
	idx, ok := st.byType[resource.Type]
	if !ok {
		return nil
	}

	var out []types.AclBinding
	if set, ok := idx.literal.Get([]byte(resource.Name)); ok {
		for _, b := range set {
			out = append(out, b)
		}
	}
	if resource.Name != types.WildcardResource {
		if set, ok := idx.literal.Get([]byte(types.WildcardResource)); ok {
			for _, b := range set {
				out = append(out, b)
			}
		}
	}
	idx.prefixed.Root().WalkPath([]byte(resource.Name), func(_ []byte, set bindingSet) bool {
		for _, b := range set {
			out = append(out, b)
		}
		return false
	})
	return out
}

// AddBindings stores the valid bindings not already present. The whole batch
// becomes visible atomically, and the epoch is bumped once iff anything was
// actually added.
func (s *MemoryStore) AddBindings(ctx context.Context, bindings []types.AclBinding) ([]types.AclBinding, error) {
	for _, b := range bindings {
		if err := b.Validate(); err != nil {
			return nil, ErrInvalidBinding(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrMutationFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	next := st.clone()
	var added []types.AclBinding

	for _, b := range bindings {
		idx := next.byType[b.Pattern.ResourceType]
		if idx == nil {
			idx = newTypeIndex()
			next.byType[b.Pattern.ResourceType] = idx
		}

		tree := &idx.literal
		if b.Pattern.PatternType == types.PatternPrefixed {
			tree = &idx.prefixed
		}

		key := []byte(b.Pattern.Name)
		set, _ := (*tree).Get(key)
		if _, exists := set[b.Key()]; exists {
			continue // idempotent add
		}
		set = set.clone()
		set[b.Key()] = b
		*tree, _, _ = (*tree).Insert(key, set)
		added = append(added, b)
	}

	if len(added) == 0 {
		return nil, nil
	}

	s.state.Store(next)
	epoch := s.epoch.Add(1)
	s.logger.Debug("acl bindings added",
		zap.Int("count", len(added)),
		zap.Uint64("epoch", epoch),
	)
	s.notify(epoch)
	return sortBindings(added), nil
}

// RemoveBindings deletes every stored binding the filter selects
func (s *MemoryStore) RemoveBindings(ctx context.Context, filter types.AclBindingFilter) ([]types.AclBinding, error) {
	if err := filter.Validate(); err != nil {
		return nil, ErrInvalidFilter(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrMutationFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	next := st.clone()
	var removed []types.AclBinding

	for rt, idx := range next.byType {
		if filter.Pattern.ResourceType != types.ResourceAny && filter.Pattern.ResourceType != rt {
			continue
		}
		literal, gone := pruneTree(idx.literal, filter)
		removed = append(removed, gone...)
		prefixed, gone := pruneTree(idx.prefixed, filter)
		removed = append(removed, gone...)
		next.byType[rt] = &typeIndex{literal: literal, prefixed: prefixed}
	}

	if len(removed) == 0 {
		return nil, nil
	}

	s.state.Store(next)
	epoch := s.epoch.Add(1)
	s.logger.Debug("acl bindings removed",
		zap.Int("count", len(removed)),
		zap.Uint64("epoch", epoch),
	)
	s.notify(epoch)
	return sortBindings(removed), nil
}

// pruneTree rebuilds a tree without the bindings the filter selects
func pruneTree(tree *iradix.Tree[bindingSet], filter types.AclBindingFilter) (*iradix.Tree[bindingSet], []types.AclBinding) {
	var removed []types.AclBinding
	txn := tree.Txn()

	tree.Root().Walk(func(key []byte, set bindingSet) bool {
		var kept bindingSet
		for k, b := range set {
			if filter.Matches(b) {
				removed = append(removed, b)
				if kept == nil {
					kept = set.clone()
				}
				delete(kept, k)
			}
		}
		if kept != nil {
			if len(kept) == 0 {
				txn.Delete(key)
			} else {
				txn.Insert(key, kept)
			}
		}
		return false
	})

	if len(removed) == 0 {
		return tree, nil
	}
	return txn.Commit(), removed
}

func (st *memoryState) clone() *memoryState {
	byType := make(map[types.ResourceType]*typeIndex, len(st.byType))
	for rt, idx := range st.byType {
		cp := *idx
		byType[rt] = &cp
	}
	return &memoryState{byType: byType}
}

func sortBindings(bindings []types.AclBinding) []types.AclBinding {
	sort.Slice(bindings, func(i, j int) bool {
		return bindings[i].Key() < bindings[j].Key()
	})
	return bindings
}
