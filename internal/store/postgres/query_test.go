package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/broker-authz/go-core/pkg/types"
)

func TestBuildWhere_MatchFilter(t *testing.T) {
	filter := types.AclBindingFilter{
		Pattern: types.MatchPatternFilter(types.Resource{Type: types.ResourceTopic, Name: "orders-eu"}),
		Entry:   types.AnyEntryFilter(),
	}

	where, args := buildWhere(filter)

	assert.Equal(t,
		"resource_type = $1 AND "+
			"((pattern_type = 'LITERAL' AND (resource_name = $2 OR resource_name = '*')) "+
			"OR (pattern_type = 'PREFIXED' AND resource_name = left($2, length(resource_name))))",
		where)
	assert.Equal(t, []any{"TOPIC", "orders-eu"}, args)
}

func TestBuildWhere_AnyFilter(t *testing.T) {
	where, args := buildWhere(types.AnyBindingFilter())

	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
}

func TestBuildWhere_LiteralByName(t *testing.T) {
	filter := types.AclBindingFilter{
		Pattern: types.ResourcePatternFilter{
			ResourceType: types.ResourceGroup,
			Name:         "readers",
			PatternType:  types.PatternLiteral,
		},
		Entry: types.AnyEntryFilter(),
	}

	where, args := buildWhere(filter)

	assert.Equal(t, "resource_type = $1 AND pattern_type = $2 AND resource_name = $3", where)
	assert.Equal(t, []any{"GROUP", "LITERAL", "readers"}, args)
}

func TestBuildWhere_EntryConditions(t *testing.T) {
	alice := types.Principal{Type: "User", Name: "alice"}
	filter := types.AclBindingFilter{
		Pattern: types.AnyPatternFilter(),
		Entry: types.AccessControlEntryFilter{
			Principal:  &alice,
			Host:       "10.0.0.1",
			Operation:  types.OpRead,
			Permission: types.PermissionDeny,
		},
	}

	where, args := buildWhere(filter)

	assert.Equal(t,
		"principal_type = $1 AND principal_name = $2 AND host = $3 AND operation = $4 AND permission = $5",
		where)
	assert.Equal(t, []any{"User", "alice", "10.0.0.1", "READ", "DENY"}, args)
}

func TestBuildWhere_AnyPatternWithName(t *testing.T) {
	filter := types.AclBindingFilter{
		Pattern: types.ResourcePatternFilter{
			ResourceType: types.ResourceAny,
			Name:         "orders",
			PatternType:  types.PatternAny,
		},
		Entry: types.AnyEntryFilter(),
	}

	where, args := buildWhere(filter)

	assert.Equal(t, "resource_name = $1", where)
	assert.Equal(t, []any{"orders"}, args)
}
