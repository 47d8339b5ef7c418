// Package audit records authorization decisions and ACL mutations
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/broker-authz/go-core/pkg/types"
)

// EventType represents the type of audit event
type EventType string

const (
	EventTypeDecision       EventType = "authorization_decision"
	EventTypeAclChange      EventType = "acl_change"
	EventTypeSystemStartup  EventType = "system_startup"
	EventTypeSystemShutdown EventType = "system_shutdown"
)

// Event represents a generic audit event
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	EventID   string         `json:"event_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// DecisionEvent records one authorization decision
type DecisionEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	EventID   string          `json:"event_id"`
	Principal types.Principal `json:"principal"`
	Host      string          `json:"host"`
	Operation types.Operation `json:"operation"`
	Resource  types.Resource  `json:"resource"`
	Decision  types.Decision  `json:"decision"`
	Superuser bool            `json:"superuser,omitempty"`
	CacheHit  bool            `json:"cache_hit"`
	// Fault carries the operational error behind a fail-closed DENY
	Fault      string  `json:"fault,omitempty"`
	DurationUs float64 `json:"duration_us"`
}

// AclChangeOp names the kind of ACL mutation
type AclChangeOp string

const (
	AclChangeAdd    AclChangeOp = "add"
	AclChangeRemove AclChangeOp = "remove"
)

// AclChangeEvent records one ACL mutation batch
type AclChangeEvent struct {
	Timestamp time.Time          `json:"timestamp"`
	EventType EventType          `json:"event_type"`
	EventID   string             `json:"event_id"`
	Operation AclChangeOp        `json:"operation"`
	Bindings  []types.AclBinding `json:"bindings"`
	Epoch     uint64             `json:"epoch"`
}

func generateEventID() string {
	return uuid.NewString()
}
