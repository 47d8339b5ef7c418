// Package types provides shared types for the broker authorization core
package types

import (
	"fmt"
	"strings"
)

// Decision is the outcome of an authorization check
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionDeny  Decision = "DENY"
)

// ResourceType identifies the kind of broker resource an ACL applies to
type ResourceType string

const (
	ResourceTopic           ResourceType = "TOPIC"
	ResourceGroup           ResourceType = "GROUP"
	ResourceCluster         ResourceType = "CLUSTER"
	ResourceTransactionalID ResourceType = "TRANSACTIONAL_ID"
	ResourceDelegationToken ResourceType = "DELEGATION_TOKEN"

	// ResourceAny is a filter-only value; it is never stored.
	ResourceAny ResourceType = "ANY"
)

// ClusterResourceName is the fixed sentinel name of the CLUSTER resource
const ClusterResourceName = "broker-cluster"

// WildcardResource is the LITERAL resource name that matches every name of a type
const WildcardResource = "*"

// WildcardHost matches any client host in an ACE
const WildcardHost = "*"

var resourceTypes = map[ResourceType]bool{
	ResourceTopic:           true,
	ResourceGroup:           true,
	ResourceCluster:         true,
	ResourceTransactionalID: true,
	ResourceDelegationToken: true,
}

// ParseResourceType parses a resource type name, accepting any case
func ParseResourceType(s string) (ResourceType, error) {
	rt := ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	if rt == ResourceAny || resourceTypes[rt] {
		return rt, nil
	}
	return "", fmt.Errorf("unknown resource type: %q", s)
}

// PatternType identifies how a ResourcePattern name matches resource names
type PatternType string

const (
	PatternLiteral  PatternType = "LITERAL"
	PatternPrefixed PatternType = "PREFIXED"

	// PatternAny and PatternMatch are filter-only kinds; they are never stored.
	// PatternAny matches stored patterns of any pattern type by name equality.
	// PatternMatch matches every stored pattern that would cover the filter
	// name if it were a concrete resource.
	PatternAny   PatternType = "ANY"
	PatternMatch PatternType = "MATCH"
)

// ParsePatternType parses a pattern type name, accepting any case
func ParsePatternType(s string) (PatternType, error) {
	pt := PatternType(strings.ToUpper(strings.TrimSpace(s)))
	switch pt {
	case PatternLiteral, PatternPrefixed, PatternAny, PatternMatch:
		return pt, nil
	}
	return "", fmt.Errorf("unknown pattern type: %q", s)
}

// Operation is a broker action an ACE allows or denies
type Operation string

const (
	OpAll             Operation = "ALL"
	OpRead            Operation = "READ"
	OpWrite           Operation = "WRITE"
	OpCreate          Operation = "CREATE"
	OpDelete          Operation = "DELETE"
	OpAlter           Operation = "ALTER"
	OpDescribe        Operation = "DESCRIBE"
	OpClusterAction   Operation = "CLUSTER_ACTION"
	OpAlterConfigs    Operation = "ALTER_CONFIGS"
	OpDescribeConfigs Operation = "DESCRIBE_CONFIGS"
	OpIdempotentWrite Operation = "IDEMPOTENT_WRITE"

	// OpAny is a filter-only value; it is never stored.
	OpAny Operation = "ANY"
)

var operations = map[Operation]bool{
	OpAll:             true,
	OpRead:            true,
	OpWrite:           true,
	OpCreate:          true,
	OpDelete:          true,
	OpAlter:           true,
	OpDescribe:        true,
	OpClusterAction:   true,
	OpAlterConfigs:    true,
	OpDescribeConfigs: true,
	OpIdempotentWrite: true,
}

// impliedBy maps an operation to the super-operations that imply it. ALL
// implies everything; READ, WRITE, DELETE and ALTER each carry an implicit
// DESCRIBE, and ALTER_CONFIGS carries an implicit DESCRIBE_CONFIGS. The
// relation is a static table, not dynamic dispatch.
var impliedBy = map[Operation][]Operation{
	OpDescribe:        {OpRead, OpWrite, OpDelete, OpAlter},
	OpDescribeConfigs: {OpAlterConfigs},
}

// ParseOperation parses an operation name, accepting any case
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	if op == OpAny || operations[op] {
		return op, nil
	}
	return "", fmt.Errorf("unknown operation: %q", s)
}

// Implies reports whether an ACE granted for o covers the requested
// operation. ALL covers every operation; otherwise the static implication
// table applies on top of exact equality.
func (o Operation) Implies(requested Operation) bool {
	if o == OpAll || o == requested {
		return true
	}
	for _, super := range impliedBy[requested] {
		if o == super {
			return true
		}
	}
	return false
}

// PermissionType is the grant kind of an ACE
type PermissionType string

const (
	PermissionAllow PermissionType = "ALLOW"
	PermissionDeny  PermissionType = "DENY"

	// PermissionAny is a filter-only value; it is never stored.
	PermissionAny PermissionType = "ANY"
)

// ParsePermissionType parses a permission type name, accepting any case
func ParsePermissionType(s string) (PermissionType, error) {
	pt := PermissionType(strings.ToUpper(strings.TrimSpace(s)))
	switch pt {
	case PermissionAllow, PermissionDeny, PermissionAny:
		return pt, nil
	}
	return "", fmt.Errorf("unknown permission type: %q", s)
}

// Principal is a logical identity: (type, name). Equality is structural.
type Principal struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

// PrincipalTypeUser is the default principal type
const PrincipalTypeUser = "User"

// String renders the principal in "Type:name" form
func (p Principal) String() string {
	return p.Type + ":" + p.Name
}

// ParsePrincipal parses a "Type:name" principal string
func ParsePrincipal(s string) (Principal, error) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return Principal{}, fmt.Errorf("invalid principal %q: expected Type:name", s)
	}
	return Principal{Type: s[:idx], Name: s[idx+1:]}, nil
}

// Resource is a concrete addressable entity a request targets
type Resource struct {
	Type ResourceType `json:"resourceType" yaml:"resourceType"`
	Name string       `json:"resourceName" yaml:"resourceName"`
}

// ClusterResource returns the singleton CLUSTER resource
func ClusterResource() Resource {
	return Resource{Type: ResourceCluster, Name: ClusterResourceName}
}

func (r Resource) String() string {
	return string(r.Type) + ":" + r.Name
}

// ResourcePattern is an ACL matching template over resources of one type
type ResourcePattern struct {
	ResourceType ResourceType `json:"resourceType" yaml:"resourceType"`
	Name         string       `json:"name" yaml:"name"`
	PatternType  PatternType  `json:"patternType" yaml:"patternType"`
}

// Validate checks the pattern is storable. Only LITERAL and PREFIXED
// patterns are ever persisted; empty names and empty prefixes are rejected.
func (p ResourcePattern) Validate() error {
	if !resourceTypes[p.ResourceType] {
		return fmt.Errorf("resource pattern has unstorable resource type %q", p.ResourceType)
	}
	switch p.PatternType {
	case PatternLiteral:
		if p.Name == "" {
			return fmt.Errorf("literal resource pattern has empty name")
		}
	case PatternPrefixed:
		if p.Name == "" {
			return fmt.Errorf("prefixed resource pattern has empty prefix")
		}
		if p.Name == WildcardResource {
			return fmt.Errorf("prefixed resource pattern cannot use the wildcard name")
		}
	default:
		return fmt.Errorf("pattern type %q cannot be stored", p.PatternType)
	}
	return nil
}

// Matches reports whether the pattern covers the resource. Resource types
// never cross-match. A LITERAL pattern matches its exact name or, with the
// wildcard name, every name of the type. A PREFIXED pattern matches any
// name that starts with its prefix.
func (p ResourcePattern) Matches(r Resource) bool {
	if p.ResourceType != r.Type {
		return false
	}
	switch p.PatternType {
	case PatternLiteral:
		return p.Name == r.Name || p.Name == WildcardResource
	case PatternPrefixed:
		return p.Name != "" && strings.HasPrefix(r.Name, p.Name)
	}
	return false
}

// Specificity ranks a matching pattern against a resource for diagnostic
// ordering: an exact LITERAL match outranks any PREFIXED match, longer
// prefixes outrank shorter ones, and the wildcard LITERAL ranks last. The
// rank never influences decisions; deny-overrides-allow evaluates the whole
// matching set.
func (p ResourcePattern) Specificity(r Resource) int {
	switch p.PatternType {
	case PatternLiteral:
		if p.Name == r.Name {
			return len(r.Name) + 1
		}
		return 0 // wildcard
	case PatternPrefixed:
		return len(p.Name)
	}
	return 0
}

func (p ResourcePattern) String() string {
	return fmt.Sprintf("%s:%s:%s", p.ResourceType, p.PatternType, p.Name)
}

// AccessControlEntry binds a principal, host and operation to a permission
type AccessControlEntry struct {
	Principal  Principal      `json:"principal" yaml:"principal"`
	Host       string         `json:"host" yaml:"host"`
	Operation  Operation      `json:"operation" yaml:"operation"`
	Permission PermissionType `json:"permission" yaml:"permission"`
}

// Validate checks the entry is storable
func (e AccessControlEntry) Validate() error {
	if e.Principal.Type == "" || e.Principal.Name == "" {
		return fmt.Errorf("access control entry has empty principal")
	}
	if e.Host == "" {
		return fmt.Errorf("access control entry has empty host")
	}
	if !operations[e.Operation] {
		return fmt.Errorf("operation %q cannot be stored", e.Operation)
	}
	if e.Permission != PermissionAllow && e.Permission != PermissionDeny {
		return fmt.Errorf("permission %q cannot be stored", e.Permission)
	}
	return nil
}

// MatchesRequest reports whether the entry applies to a request: the
// principal must be structurally equal, the host exact or the wildcard,
// and the entry operation must imply the requested one.
func (e AccessControlEntry) MatchesRequest(principal Principal, host string, op Operation) bool {
	if e.Principal != principal {
		return false
	}
	if e.Host != WildcardHost && e.Host != host {
		return false
	}
	return e.Operation.Implies(op)
}

func (e AccessControlEntry) String() string {
	return fmt.Sprintf("%s has %s permission for %s from host %s",
		e.Principal, e.Permission, e.Operation, e.Host)
}

// AclBinding is the unit of ACL storage: a pattern plus an entry.
// Bindings have set semantics; the full tuple identifies a binding.
type AclBinding struct {
	Pattern ResourcePattern    `json:"pattern" yaml:"pattern"`
	Entry   AccessControlEntry `json:"entry" yaml:"entry"`
}

// Validate checks the binding is storable
func (b AclBinding) Validate() error {
	if err := b.Pattern.Validate(); err != nil {
		return err
	}
	return b.Entry.Validate()
}

// Key returns the canonical identity of the binding, used for set semantics
func (b AclBinding) Key() string {
	return strings.Join([]string{
		string(b.Pattern.ResourceType),
		string(b.Pattern.PatternType),
		b.Pattern.Name,
		b.Entry.Principal.Type,
		b.Entry.Principal.Name,
		b.Entry.Host,
		string(b.Entry.Operation),
		string(b.Entry.Permission),
	}, "\x00")
}

func (b AclBinding) String() string {
	return fmt.Sprintf("(pattern=%s, entry=%s)", b.Pattern, b.Entry)
}
