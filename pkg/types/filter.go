package types

import "fmt"

// ResourcePatternFilter selects stored resource patterns. The zero value
// matches nothing; use AnyPatternFilter for a match-all filter.
//
// Filter kinds:
//   - ANY: matches patterns of every pattern type; an empty name matches any
//     name, a non-empty name must be equal.
//   - MATCH: matches every stored pattern that would cover Name if it were a
//     concrete resource (exact literal, the wildcard literal, and every
//     covering prefix). This is the filter the authorization hot path uses.
//   - LITERAL / PREFIXED: matches only that pattern type, by name equality
//     (or any name when the filter name is empty).
type ResourcePatternFilter struct {
	ResourceType ResourceType `json:"resourceType" yaml:"resourceType"`
	Name         string       `json:"name" yaml:"name"`
	PatternType  PatternType  `json:"patternType" yaml:"patternType"`
}

// AnyPatternFilter matches every stored resource pattern
func AnyPatternFilter() ResourcePatternFilter {
	return ResourcePatternFilter{ResourceType: ResourceAny, PatternType: PatternAny}
}

// MatchPatternFilter returns the hot-path filter selecting all patterns
// that cover the given resource
func MatchPatternFilter(r Resource) ResourcePatternFilter {
	return ResourcePatternFilter{ResourceType: r.Type, Name: r.Name, PatternType: PatternMatch}
}

// Validate rejects malformed filters
func (f ResourcePatternFilter) Validate() error {
	if f.ResourceType == "" {
		return fmt.Errorf("pattern filter has empty resource type")
	}
	if f.ResourceType != ResourceAny && !resourceTypes[f.ResourceType] {
		return fmt.Errorf("pattern filter has unknown resource type %q", f.ResourceType)
	}
	switch f.PatternType {
	case PatternLiteral, PatternPrefixed, PatternAny, PatternMatch:
	default:
		return fmt.Errorf("pattern filter has unknown pattern type %q", f.PatternType)
	}
	if f.PatternType == PatternMatch && f.Name == "" {
		return fmt.Errorf("MATCH pattern filter requires a resource name")
	}
	return nil
}

// Matches reports whether the filter selects the stored pattern
func (f ResourcePatternFilter) Matches(p ResourcePattern) bool {
	if f.ResourceType != ResourceAny && f.ResourceType != p.ResourceType {
		return false
	}
	switch f.PatternType {
	case PatternAny:
		return f.Name == "" || f.Name == p.Name
	case PatternMatch:
		return p.Matches(Resource{Type: p.ResourceType, Name: f.Name})
	default:
		if f.PatternType != p.PatternType {
			return false
		}
		return f.Name == "" || f.Name == p.Name
	}
}

// AccessControlEntryFilter selects stored ACEs. A nil Principal, empty
// Host, OpAny operation or PermissionAny permission each match anything.
type AccessControlEntryFilter struct {
	Principal  *Principal     `json:"principal,omitempty" yaml:"principal,omitempty"`
	Host       string         `json:"host,omitempty" yaml:"host,omitempty"`
	Operation  Operation      `json:"operation" yaml:"operation"`
	Permission PermissionType `json:"permission" yaml:"permission"`
}

// AnyEntryFilter matches every stored ACE
func AnyEntryFilter() AccessControlEntryFilter {
	return AccessControlEntryFilter{Operation: OpAny, Permission: PermissionAny}
}

// Validate rejects malformed filters
func (f AccessControlEntryFilter) Validate() error {
	if f.Principal != nil && (f.Principal.Type == "" || f.Principal.Name == "") {
		return fmt.Errorf("entry filter has incomplete principal")
	}
	if f.Operation != OpAny && !operations[f.Operation] {
		return fmt.Errorf("entry filter has unknown operation %q", f.Operation)
	}
	switch f.Permission {
	case PermissionAllow, PermissionDeny, PermissionAny:
	default:
		return fmt.Errorf("entry filter has unknown permission %q", f.Permission)
	}
	return nil
}

// Matches reports whether the filter selects the stored entry. Filter
// matching is exact; operation implication applies only to authorization,
// never to administrative listing or removal.
func (f AccessControlEntryFilter) Matches(e AccessControlEntry) bool {
	if f.Principal != nil && *f.Principal != e.Principal {
		return false
	}
	if f.Host != "" && f.Host != e.Host {
		return false
	}
	if f.Operation != OpAny && f.Operation != e.Operation {
		return false
	}
	if f.Permission != PermissionAny && f.Permission != e.Permission {
		return false
	}
	return true
}

// AclBindingFilter selects stored bindings for listing and removal
type AclBindingFilter struct {
	Pattern ResourcePatternFilter    `json:"pattern" yaml:"pattern"`
	Entry   AccessControlEntryFilter `json:"entry" yaml:"entry"`
}

// AnyBindingFilter matches every stored binding
func AnyBindingFilter() AclBindingFilter {
	return AclBindingFilter{Pattern: AnyPatternFilter(), Entry: AnyEntryFilter()}
}

// Validate rejects malformed filters
func (f AclBindingFilter) Validate() error {
	if err := f.Pattern.Validate(); err != nil {
		return err
	}
	return f.Entry.Validate()
}

// Matches reports whether the filter selects the binding
func (f AclBindingFilter) Matches(b AclBinding) bool {
	return f.Pattern.Matches(b.Pattern) && f.Entry.Matches(b.Entry)
}
