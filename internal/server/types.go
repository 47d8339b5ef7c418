package server

import (
	"fmt"

	"github.com/broker-authz/go-core/pkg/types"
)

// AuthorizeRequestBody is the wire form of one authorization question.
// Either Principal ("Type:name") or Connection must be set; when both are
// present Principal wins.
type AuthorizeRequestBody struct {
	Principal  string          `json:"principal,omitempty"`
	Connection *ConnectionBody `json:"connection,omitempty"`
	Host       string          `json:"host"`
	Operation  string          `json:"operation" binding:"required"`
	Resource   ResourceBody    `json:"resource" binding:"required"`
}

// ConnectionBody carries transport identity for server-side principal
// resolution
type ConnectionBody struct {
	ListenerName      string `json:"listenerName"`
	SecurityProtocol  string `json:"securityProtocol"`
	AuthenticatedName string `json:"authenticatedName"`
	ClientAddr        string `json:"clientAddr"`
}

// ResourceBody is the wire form of a concrete resource
type ResourceBody struct {
	ResourceType string `json:"resourceType" binding:"required"`
	ResourceName string `json:"resourceName" binding:"required"`
}

// AuthorizeResponseBody carries one decision
type AuthorizeResponseBody struct {
	Decision types.Decision `json:"decision"`
}

// BatchAuthorizeRequestBody carries several authorization questions
type BatchAuthorizeRequestBody struct {
	Requests []AuthorizeRequestBody `json:"requests" binding:"required"`
}

// BatchAuthorizeResponseBody carries decisions in request order
type BatchAuthorizeResponseBody struct {
	Decisions []types.Decision `json:"decisions"`
}

// BindingBody is the wire form of one ACL binding
type BindingBody struct {
	ResourceType string `json:"resourceType"`
	PatternType  string `json:"patternType"`
	Name         string `json:"name"`
	Principal    string `json:"principal"`
	Host         string `json:"host"`
	Operation    string `json:"operation"`
	Permission   string `json:"permission"`
}

// AddAclsRequestBody carries bindings to store
type AddAclsRequestBody struct {
	Bindings []BindingBody `json:"bindings" binding:"required"`
}

// AclsResponseBody lists bindings an operation touched or selected
type AclsResponseBody struct {
	Bindings []BindingBody `json:"bindings"`
}

// ErrorResponse is the uniform error shape
type ErrorResponse struct {
	Error string `json:"error"`
}

func toResource(b ResourceBody) (types.Resource, error) {
	rt, err := types.ParseResourceType(b.ResourceType)
	if err != nil {
		return types.Resource{}, err
	}
	if rt == types.ResourceAny {
		return types.Resource{}, fmt.Errorf("resource type ANY is not a concrete resource")
	}
	return types.Resource{Type: rt, Name: b.ResourceName}, nil
}

func toBinding(b BindingBody) (types.AclBinding, error) {
	var binding types.AclBinding

	rt, err := types.ParseResourceType(b.ResourceType)
	if err != nil {
		return binding, err
	}
	pt, err := types.ParsePatternType(b.PatternType)
	if err != nil {
		return binding, err
	}
	principal, err := types.ParsePrincipal(b.Principal)
	if err != nil {
		return binding, err
	}
	op, err := types.ParseOperation(b.Operation)
	if err != nil {
		return binding, err
	}
	perm, err := types.ParsePermissionType(b.Permission)
	if err != nil {
		return binding, err
	}

	host := b.Host
	if host == "" {
		host = types.WildcardHost
	}

	binding = types.AclBinding{
		Pattern: types.ResourcePattern{ResourceType: rt, Name: b.Name, PatternType: pt},
		Entry: types.AccessControlEntry{
			Principal:  principal,
			Host:       host,
			Operation:  op,
			Permission: perm,
		},
	}
	return binding, binding.Validate()
}

func fromBinding(b types.AclBinding) BindingBody {
	return BindingBody{
		ResourceType: string(b.Pattern.ResourceType),
		PatternType:  string(b.Pattern.PatternType),
		Name:         b.Pattern.Name,
		Principal:    b.Entry.Principal.String(),
		Host:         b.Entry.Host,
		Operation:    string(b.Entry.Operation),
		Permission:   string(b.Entry.Permission),
	}
}

func fromBindings(bindings []types.AclBinding) []BindingBody {
	out := make([]BindingBody, len(bindings))
	for i, b := range bindings {
		out[i] = fromBinding(b)
	}
	return out
}
