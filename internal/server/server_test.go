package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/internal/authorizer"
	"github.com/broker-authz/go-core/internal/metrics"
	"github.com/broker-authz/go-core/internal/principal"
	"github.com/broker-authz/go-core/internal/store"
	"github.com/broker-authz/go-core/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()

	memStore := store.NewMemoryStore(zap.NewNop())

	cfg := authorizer.DefaultConfig()
	cfg.SuperUsers = []types.Principal{{Type: "User", Name: "admin"}}
	authz, err := authorizer.New(cfg, memStore)
	require.NoError(t, err)
	t.Cleanup(func() { authz.Close() })

	resolver := principal.NewListenerResolver(
		map[string]types.Principal{"INTERNAL": {Type: "User", Name: "broker"}},
		principal.NewDefaultResolver(""),
	)

	srv, err := New(DefaultConfig(), authz, memStore, resolver, metrics.New("brokeracl"), zap.NewNop())
	require.NoError(t, err)
	return srv, memStore
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func addBinding(t *testing.T, srv *Server, b BindingBody) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/v1/acls", AddAclsRequestBody{Bindings: []BindingBody{b}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestServer_AuthorizeFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC",
		PatternType:  "PREFIXED",
		Name:         "team-a-",
		Principal:    "User:svc-a",
		Operation:    "WRITE",
		Permission:   "ALLOW",
	})

	rec := doJSON(t, srv, http.MethodPost, "/v1/authorize", AuthorizeRequestBody{
		Principal: "User:svc-a",
		Host:      "10.0.0.1",
		Operation: "WRITE",
		Resource:  ResourceBody{ResourceType: "TOPIC", ResourceName: "team-a-events"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthorizeResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.DecisionAllow, resp.Decision)

	// Outside the granted prefix
	rec = doJSON(t, srv, http.MethodPost, "/v1/authorize", AuthorizeRequestBody{
		Principal: "User:svc-a",
		Host:      "10.0.0.1",
		Operation: "WRITE",
		Resource:  ResourceBody{ResourceType: "TOPIC", ResourceName: "team-b-events"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.DecisionDeny, resp.Decision)
}

func TestServer_AuthorizeWithConnection(t *testing.T) {
	srv, _ := newTestServer(t)

	addBinding(t, srv, BindingBody{
		ResourceType: "CLUSTER",
		PatternType:  "LITERAL",
		Name:         "broker-cluster",
		Principal:    "User:broker",
		Operation:    "CLUSTER_ACTION",
		Permission:   "ALLOW",
	})

	rec := doJSON(t, srv, http.MethodPost, "/v1/authorize", AuthorizeRequestBody{
		Connection: &ConnectionBody{
			ListenerName: "INTERNAL",
			ClientAddr:   "10.0.0.5",
		},
		Operation: "CLUSTER_ACTION",
		Resource:  ResourceBody{ResourceType: "CLUSTER", ResourceName: "broker-cluster"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthorizeResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.DecisionAllow, resp.Decision)
}

func TestServer_AuthorizeBatch(t *testing.T) {
	srv, _ := newTestServer(t)

	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC",
		PatternType:  "LITERAL",
		Name:         "orders",
		Principal:    "User:alice",
		Operation:    "READ",
		Permission:   "ALLOW",
	})

	rec := doJSON(t, srv, http.MethodPost, "/v1/authorize/batch", BatchAuthorizeRequestBody{
		Requests: []AuthorizeRequestBody{
			{Principal: "User:alice", Host: "h", Operation: "READ", Resource: ResourceBody{ResourceType: "TOPIC", ResourceName: "orders"}},
			{Principal: "User:alice", Host: "h", Operation: "WRITE", Resource: ResourceBody{ResourceType: "TOPIC", ResourceName: "orders"}},
			{Principal: "User:admin", Host: "h", Operation: "ALTER", Resource: ResourceBody{ResourceType: "TOPIC", ResourceName: "anything"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchAuthorizeResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []types.Decision{types.DecisionAllow, types.DecisionDeny, types.DecisionAllow}, resp.Decisions)
}

func TestServer_ListAndRemoveAcls(t *testing.T) {
	srv, _ := newTestServer(t)

	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC", PatternType: "LITERAL", Name: "orders",
		Principal: "User:alice", Operation: "READ", Permission: "ALLOW",
	})
	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC", PatternType: "LITERAL", Name: "orders",
		Principal: "User:bob", Operation: "READ", Permission: "ALLOW",
	})

	rec := doJSON(t, srv, http.MethodGet, "/v1/acls?resourceType=TOPIC", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list AclsResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Bindings, 2)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/acls?principal=User:alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var removed AclsResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &removed))
	require.Len(t, removed.Bindings, 1)
	assert.Equal(t, "User:alice", removed.Bindings[0].Principal)

	rec = doJSON(t, srv, http.MethodGet, "/v1/acls", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Bindings, 1)
}

func TestServer_ListAclsMatchFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC", PatternType: "PREFIXED", Name: "orders-",
		Principal: "User:alice", Operation: "READ", Permission: "ALLOW",
	})
	addBinding(t, srv, BindingBody{
		ResourceType: "TOPIC", PatternType: "LITERAL", Name: "payments",
		Principal: "User:alice", Operation: "READ", Permission: "ALLOW",
	})

	rec := doJSON(t, srv, http.MethodGet, "/v1/acls?resourceType=TOPIC&patternType=MATCH&resourceName=orders-eu", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list AclsResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Bindings, 1)
	assert.Equal(t, "orders-", list.Bindings[0].Name)
}

func TestServer_RejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	// No principal and no connection
	rec := doJSON(t, srv, http.MethodPost, "/v1/authorize", AuthorizeRequestBody{
		Operation: "READ",
		Resource:  ResourceBody{ResourceType: "TOPIC", ResourceName: "orders"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown operation
	rec = doJSON(t, srv, http.MethodPost, "/v1/authorize", AuthorizeRequestBody{
		Principal: "User:alice",
		Host:      "h",
		Operation: "FLY",
		Resource:  ResourceBody{ResourceType: "TOPIC", ResourceName: "orders"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Query-only pattern type in a stored binding
	rec = doJSON(t, srv, http.MethodPost, "/v1/acls", AddAclsRequestBody{Bindings: []BindingBody{{
		ResourceType: "TOPIC", PatternType: "ANY", Name: "orders",
		Principal: "User:alice", Operation: "READ", Permission: "ALLOW",
	}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// MATCH listing without a name
	rec = doJSON(t, srv, http.MethodGet, "/v1/acls?patternType=MATCH", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "brokeracl_")
}
