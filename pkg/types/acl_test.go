package types

import "testing"

func TestResourcePattern_Matches(t *testing.T) {
	tests := []struct {
		name     string
		pattern  ResourcePattern
		resource Resource
		want     bool
	}{
		{
			name:     "literal exact match",
			pattern:  ResourcePattern{ResourceTopic, "orders", PatternLiteral},
			resource: Resource{ResourceTopic, "orders"},
			want:     true,
		},
		{
			name:     "literal mismatch",
			pattern:  ResourcePattern{ResourceTopic, "orders", PatternLiteral},
			resource: Resource{ResourceTopic, "payments"},
			want:     false,
		},
		{
			name:     "wildcard literal matches any name",
			pattern:  ResourcePattern{ResourceTopic, "*", PatternLiteral},
			resource: Resource{ResourceTopic, "anything-at-all"},
			want:     true,
		},
		{
			name:     "no cross-type match even with wildcard",
			pattern:  ResourcePattern{ResourceTopic, "*", PatternLiteral},
			resource: Resource{ResourceGroup, "orders"},
			want:     false,
		},
		{
			name:     "prefixed covers namespace",
			pattern:  ResourcePattern{ResourceTopic, "team-a-", PatternPrefixed},
			resource: Resource{ResourceTopic, "team-a-orders"},
			want:     true,
		},
		{
			name:     "prefixed rejects other namespace",
			pattern:  ResourcePattern{ResourceTopic, "team-a-", PatternPrefixed},
			resource: Resource{ResourceTopic, "team-b-orders"},
			want:     false,
		},
		{
			name:     "prefix equal to full name matches",
			pattern:  ResourcePattern{ResourceTopic, "team-a-", PatternPrefixed},
			resource: Resource{ResourceTopic, "team-a-"},
			want:     true,
		},
		{
			name:     "prefixed is byte-wise, no wildcard semantics",
			pattern:  ResourcePattern{ResourceTopic, "team-*", PatternPrefixed},
			resource: Resource{ResourceTopic, "team-a-orders"},
			want:     false,
		},
		{
			name:     "cluster pattern matches cluster sentinel",
			pattern:  ResourcePattern{ResourceCluster, ClusterResourceName, PatternLiteral},
			resource: ClusterResource(),
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pattern.Matches(tt.resource); got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.pattern, tt.resource, got, tt.want)
			}
		})
	}
}

func TestResourcePattern_Validate(t *testing.T) {
	valid := ResourcePattern{ResourceTopic, "orders", PatternLiteral}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid pattern rejected: %v", err)
	}

	invalid := []ResourcePattern{
		{ResourceTopic, "", PatternLiteral},     // empty name
		{ResourceTopic, "", PatternPrefixed},    // empty prefix
		{ResourceTopic, "*", PatternPrefixed},   // wildcard as prefix
		{ResourceTopic, "orders", PatternAny},   // query-only kind
		{ResourceTopic, "orders", PatternMatch}, // query-only kind
		{ResourceAny, "orders", PatternLiteral}, // filter-only type
		{"BOGUS", "orders", PatternLiteral},     // unknown type
	}
	for _, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Errorf("pattern %v passed validation, want error", p)
		}
	}
}

func TestResourcePattern_Specificity(t *testing.T) {
	resource := Resource{ResourceTopic, "team-a-orders"}

	exact := ResourcePattern{ResourceTopic, "team-a-orders", PatternLiteral}
	longPrefix := ResourcePattern{ResourceTopic, "team-a-", PatternPrefixed}
	shortPrefix := ResourcePattern{ResourceTopic, "team-", PatternPrefixed}
	wildcard := ResourcePattern{ResourceTopic, "*", PatternLiteral}

	if exact.Specificity(resource) <= longPrefix.Specificity(resource) {
		t.Error("exact literal should outrank prefixed")
	}
	if longPrefix.Specificity(resource) <= shortPrefix.Specificity(resource) {
		t.Error("longer prefix should outrank shorter prefix")
	}
	if shortPrefix.Specificity(resource) <= wildcard.Specificity(resource) {
		t.Error("any prefix should outrank the wildcard literal")
	}

	// Equal-length prefixes rank equally; their ACEs are merged, never
	// tie-broken arbitrarily.
	other := ResourcePattern{ResourceTopic, "team-a-", PatternPrefixed}
	if longPrefix.Specificity(resource) != other.Specificity(resource) {
		t.Error("equal-length prefixes should rank equally")
	}
}

func TestOperation_Implies(t *testing.T) {
	if !OpAll.Implies(OpRead) || !OpAll.Implies(OpClusterAction) {
		t.Error("ALL should imply every operation")
	}
	if !OpRead.Implies(OpRead) {
		t.Error("an operation should imply itself")
	}
	if OpRead.Implies(OpWrite) {
		t.Error("READ must not imply WRITE")
	}
	if !OpRead.Implies(OpDescribe) || !OpWrite.Implies(OpDescribe) {
		t.Error("READ and WRITE should imply DESCRIBE")
	}
	if !OpAlterConfigs.Implies(OpDescribeConfigs) {
		t.Error("ALTER_CONFIGS should imply DESCRIBE_CONFIGS")
	}
	if OpDescribe.Implies(OpRead) {
		t.Error("implication is one-way: DESCRIBE must not imply READ")
	}
}

func TestAccessControlEntry_MatchesRequest(t *testing.T) {
	alice := Principal{PrincipalTypeUser, "alice"}
	bob := Principal{PrincipalTypeUser, "bob"}

	entry := AccessControlEntry{
		Principal:  alice,
		Host:       "*",
		Operation:  OpWrite,
		Permission: PermissionAllow,
	}

	if !entry.MatchesRequest(alice, "10.0.0.1", OpWrite) {
		t.Error("wildcard host entry should match any host")
	}
	if entry.MatchesRequest(bob, "10.0.0.1", OpWrite) {
		t.Error("entry must not match a different principal")
	}
	if entry.MatchesRequest(alice, "10.0.0.1", OpRead) {
		t.Error("WRITE entry must not match a READ request")
	}

	hostScoped := entry
	hostScoped.Host = "10.0.0.1"
	if !hostScoped.MatchesRequest(alice, "10.0.0.1", OpWrite) {
		t.Error("exact host should match")
	}
	if hostScoped.MatchesRequest(alice, "10.0.0.2", OpWrite) {
		t.Error("different host must not match")
	}
}

func TestAccessControlEntry_Validate(t *testing.T) {
	invalid := []AccessControlEntry{
		{Principal{}, "*", OpRead, PermissionAllow},                            // empty principal
		{Principal{PrincipalTypeUser, "a"}, "", OpRead, PermissionAllow},       // empty host
		{Principal{PrincipalTypeUser, "a"}, "*", OpAny, PermissionAllow},       // filter-only op
		{Principal{PrincipalTypeUser, "a"}, "*", OpRead, PermissionAny},        // filter-only perm
		{Principal{PrincipalTypeUser, "a"}, "*", "FROBNICATE", PermissionDeny}, // unknown op
	}
	for _, e := range invalid {
		if err := e.Validate(); err == nil {
			t.Errorf("entry %v passed validation, want error", e)
		}
	}
}

func TestParsePrincipal(t *testing.T) {
	p, err := ParsePrincipal("User:alice")
	if err != nil {
		t.Fatalf("ParsePrincipal: %v", err)
	}
	if p.Type != "User" || p.Name != "alice" {
		t.Errorf("got %+v", p)
	}

	// Names may themselves contain colons (e.g. certificate DNs).
	p, err = ParsePrincipal("User:CN=broker,OU=infra")
	if err != nil {
		t.Fatalf("ParsePrincipal: %v", err)
	}
	if p.Name != "CN=broker,OU=infra" {
		t.Errorf("got name %q", p.Name)
	}

	for _, bad := range []string{"", "alice", ":alice", "User:"} {
		if _, err := ParsePrincipal(bad); err == nil {
			t.Errorf("ParsePrincipal(%q) succeeded, want error", bad)
		}
	}
}

func TestAclBinding_Key(t *testing.T) {
	b1 := AclBinding{
		Pattern: ResourcePattern{ResourceTopic, "orders", PatternLiteral},
		Entry:   AccessControlEntry{Principal{PrincipalTypeUser, "alice"}, "*", OpRead, PermissionAllow},
	}
	b2 := b1
	if b1.Key() != b2.Key() {
		t.Error("identical bindings should share a key")
	}
	b2.Entry.Operation = OpWrite
	if b1.Key() == b2.Key() {
		t.Error("different operations should produce different keys")
	}
}
