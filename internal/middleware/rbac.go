package middleware

import (
	"net/http"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

// RBACMiddleware handles role-based access control
type RBACMiddleware struct {
	roleRepo *repository.RoleRepository
}

// NewRBACMiddleware creates a new RBAC middleware
func NewRBACMiddleware(roleRepo *repository.RoleRepository) *RBACMiddleware {
	return &RBACMiddleware{roleRepo: roleRepo}
}

// RequireRole checks if the user holds the required role
func (m *RBACMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return m.RequireAnyRole(role)
}

// RequireAnyRole checks if the user holds any of the required roles
func (m *RBACMiddleware) RequireAnyRole(required ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := GetUsername(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "User not authenticated")
				return
			}

			roles, err := m.roleRepo.GetRolesForUser(username)
			if err != nil {
				respondWithError(w, http.StatusInternalServerError, "Failed to get user roles")
				return
			}

			hasRole := false
			for _, role := range roles {
				for _, req := range required {
					if role == req {
						hasRole = true
						break
					}
				}
				if hasRole {
					break
				}
			}

			if !hasRole {
				respondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
