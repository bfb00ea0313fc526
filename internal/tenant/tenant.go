package tenant

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// Scope identifies the club (tenant) every core operation runs against.
// It is passed explicitly into repositories and services; there is no
// ambient tenant global. Repositories add the tenant predicate to every
// query so a mismatched id behaves exactly like a missing row.
type Scope struct {
	TenantID int
}

var ErrMissingScope = errors.New("tenant scope is required")

const ginKey = "tenant_id"

// Valid reports whether the scope carries a real tenant id.
func (s Scope) Valid() bool {
	return s.TenantID > 0
}

// SetScope attaches the scope to the current request. Called by the auth
// middleware after token validation.
func SetScope(c *gin.Context, s Scope) {
	c.Set(ginKey, s.TenantID)
}

// FromRequest extracts the scope the auth middleware attached.
func FromRequest(c *gin.Context) (Scope, bool) {
	v, exists := c.Get(ginKey)
	if !exists {
		return Scope{}, false
	}

	id, ok := v.(int)
	if !ok || id <= 0 {
		return Scope{}, false
	}

	return Scope{TenantID: id}, true
}
