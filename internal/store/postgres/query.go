package postgres

import (
	"fmt"
	"strings"

	"github.com/broker-authz/go-core/pkg/types"
)

const bindingColumns = "resource_type, pattern_type, resource_name, " +
	"principal_type, principal_name, host, operation, permission"

// buildWhere renders an AclBindingFilter as a SQL predicate over the
// acl_bindings columns. The MATCH pattern kind becomes the covering clause
// the lookup index serves: the exact literal, the wildcard literal, and
// every prefix of the resource name.
func buildWhere(filter types.AclBindingFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	p := filter.Pattern
	if p.ResourceType != types.ResourceAny {
		conds = append(conds, "resource_type = "+arg(string(p.ResourceType)))
	}

	switch p.PatternType {
	case types.PatternMatch:
		name := arg(p.Name)
		conds = append(conds, fmt.Sprintf(
			"((pattern_type = 'LITERAL' AND (resource_name = %s OR resource_name = '*')) "+
				"OR (pattern_type = 'PREFIXED' AND resource_name = left(%s, length(resource_name))))",
			name, name))
	case types.PatternAny:
		if p.Name != "" {
			conds = append(conds, "resource_name = "+arg(p.Name))
		}
	default:
		conds = append(conds, "pattern_type = "+arg(string(p.PatternType)))
		if p.Name != "" {
			conds = append(conds, "resource_name = "+arg(p.Name))
		}
	}

	e := filter.Entry
	if e.Principal != nil {
		conds = append(conds, "principal_type = "+arg(e.Principal.Type))
		conds = append(conds, "principal_name = "+arg(e.Principal.Name))
	}
	if e.Host != "" {
		conds = append(conds, "host = "+arg(e.Host))
	}
	if e.Operation != types.OpAny {
		conds = append(conds, "operation = "+arg(string(e.Operation)))
	}
	if e.Permission != types.PermissionAny {
		conds = append(conds, "permission = "+arg(string(e.Permission)))
	}

	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), args
}
