package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/broker-authz/go-core/internal/principal"
	"github.com/broker-authz/go-core/internal/store"
	"github.com/broker-authz/go-core/pkg/types"
)

// handleAuthorize handles POST /v1/authorize
func (s *Server) handleAuthorize(c *gin.Context) {
	var body AuthorizeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid request parameters"})
		return
	}

	req, err := s.toAuthorizeRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	decision, err := s.authz.Authorize(c.Request.Context(), req)
	if err != nil {
		// Fail-closed faults still answer with the DENY decision; only the
		// status distinguishes an unavailable store from a plain denial.
		if errors.Is(err, store.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, AuthorizeResponseBody{Decision: decision})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, AuthorizeResponseBody{Decision: decision})
}

// handleAuthorizeBatch handles POST /v1/authorize/batch
func (s *Server) handleAuthorizeBatch(c *gin.Context) {
	var body BatchAuthorizeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid request parameters"})
		return
	}

	reqs := make([]*types.AuthorizeRequest, len(body.Requests))
	for i, rb := range body.Requests {
		req, err := s.toAuthorizeRequest(rb)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		reqs[i] = req
	}

	decisions, err := s.authz.AuthorizeBatch(c.Request.Context(), reqs)
	if err != nil && errors.Is(err, store.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, BatchAuthorizeResponseBody{Decisions: decisions})
		return
	}

	c.JSON(http.StatusOK, BatchAuthorizeResponseBody{Decisions: decisions})
}

func (s *Server) toAuthorizeRequest(body AuthorizeRequestBody) (*types.AuthorizeRequest, error) {
	resource, err := toResource(body.Resource)
	if err != nil {
		return nil, err
	}
	op, err := types.ParseOperation(body.Operation)
	if err != nil {
		return nil, err
	}

	var p types.Principal
	host := body.Host
	switch {
	case body.Principal != "":
		p, err = types.ParsePrincipal(body.Principal)
		if err != nil {
			return nil, err
		}
	case body.Connection != nil:
		p, err = s.resolver.Resolve(principal.ConnectionContext{
			ListenerName:      body.Connection.ListenerName,
			SecurityProtocol:  body.Connection.SecurityProtocol,
			AuthenticatedName: body.Connection.AuthenticatedName,
			ClientAddr:        body.Connection.ClientAddr,
		})
		if err != nil {
			return nil, err
		}
		if host == "" {
			host = body.Connection.ClientAddr
		}
	default:
		return nil, errors.New("either principal or connection is required")
	}

	return &types.AuthorizeRequest{
		Principal: p,
		Host:      host,
		Operation: op,
		Resource:  resource,
	}, nil
}

// handleListAcls handles GET /v1/acls. The filter comes from query
// parameters; omitted parameters match anything.
func (s *Server) handleListAcls(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	bindings, err := s.authz.ListAcls(c.Request.Context(), filter)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, AclsResponseBody{Bindings: fromBindings(bindings)})
}

// handleAddAcls handles POST /v1/acls
func (s *Server) handleAddAcls(c *gin.Context) {
	var body AddAclsRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid request parameters"})
		return
	}

	bindings := make([]types.AclBinding, len(body.Bindings))
	for i, bb := range body.Bindings {
		b, err := toBinding(bb)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		bindings[i] = b
	}

	added, err := s.authz.AddAcls(c.Request.Context(), bindings)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AclsResponseBody{Bindings: fromBindings(added)})
}

// handleRemoveAcls handles DELETE /v1/acls with the same query filter as GET
func (s *Server) handleRemoveAcls(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	removed, err := s.authz.RemoveAcls(c.Request.Context(), filter)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, AclsResponseBody{Bindings: fromBindings(removed)})
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		s.logger.Error("acl store unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "acl store unavailable"})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// filterFromQuery builds a binding filter from query parameters. Unset
// parameters widen to their ANY value.
func filterFromQuery(c *gin.Context) (types.AclBindingFilter, error) {
	filter := types.AnyBindingFilter()

	if v := c.Query("resourceType"); v != "" {
		rt, err := types.ParseResourceType(v)
		if err != nil {
			return filter, err
		}
		filter.Pattern.ResourceType = rt
	}
	if v := c.Query("patternType"); v != "" {
		pt, err := types.ParsePatternType(v)
		if err != nil {
			return filter, err
		}
		filter.Pattern.PatternType = pt
	}
	filter.Pattern.Name = c.Query("resourceName")

	if v := c.Query("principal"); v != "" {
		p, err := types.ParsePrincipal(v)
		if err != nil {
			return filter, err
		}
		filter.Entry.Principal = &p
	}
	filter.Entry.Host = c.Query("host")

	if v := c.Query("operation"); v != "" {
		op, err := types.ParseOperation(v)
		if err != nil {
			return filter, err
		}
		filter.Entry.Operation = op
	}
	if v := c.Query("permission"); v != "" {
		perm, err := types.ParsePermissionType(v)
		if err != nil {
			return filter, err
		}
		filter.Entry.Permission = perm
	}

	return filter, filter.Validate()
}

// handleHealthz reports process liveness
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz reports readiness: the store must answer a narrow query
func (s *Server) handleReadyz(c *gin.Context) {
	probe := types.AclBindingFilter{
		Pattern: types.ResourcePatternFilter{
			ResourceType: types.ResourceCluster,
			Name:         types.ClusterResourceName,
			PatternType:  types.PatternLiteral,
		},
		Entry: types.AnyEntryFilter(),
	}
	if _, err := s.authz.ListAcls(c.Request.Context(), probe); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "epoch": s.store.Epoch()})
}
