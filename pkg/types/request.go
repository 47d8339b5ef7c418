package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// AuthorizeRequest is one resource-touching authorization question
type AuthorizeRequest struct {
	Principal Principal `json:"principal"`
	Host      string    `json:"host"`
	Operation Operation `json:"operation"`
	Resource  Resource  `json:"resource"`
}

// Validate rejects requests that cannot be evaluated
func (r *AuthorizeRequest) Validate() error {
	if r.Principal.Type == "" || r.Principal.Name == "" {
		return errEmptyField("principal")
	}
	if r.Host == "" {
		return errEmptyField("host")
	}
	if !operations[r.Operation] {
		return errEmptyField("operation")
	}
	if !resourceTypes[r.Resource.Type] || r.Resource.Name == "" {
		return errEmptyField("resource")
	}
	return nil
}

type fieldError string

func errEmptyField(name string) error { return fieldError(name) }

func (e fieldError) Error() string {
	return "authorize request has missing or invalid " + string(e)
}

// CacheKey derives the decision-cache key for the full lookup tuple
func (r *AuthorizeRequest) CacheKey() string {
	h := sha256.New()
	for _, part := range []string{
		r.Principal.Type, r.Principal.Name,
		r.Host,
		string(r.Operation),
		string(r.Resource.Type), r.Resource.Name,
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
