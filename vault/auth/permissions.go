package auth

import (
	"errors"
	"fmt"
	"net/http"

	"docuvault/utils"
	"docuvault/vault/schema"

	"gorm.io/gorm"
)

// RequireRoles is the coarse role-set gate: the endpoint declares up front
// which roles may call it at all. It runs after the auth middleware has
// placed the user in the request context, and before any handler logic.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			utils.WriteError(w, fmt.Sprintf("user %v with role %v is not permitted to access this endpoint", user.Id, user.Role), http.StatusForbidden)
		}
		return http.HandlerFunc(hfn)
	}
}

// DocumentAccessOnly is the fine per-resource gate: the document carries its
// own set of permitted roles. A missing document and a document whose
// permission set excludes the caller's role both produce the same 404 so
// that unauthorized callers cannot confirm a document exists. This is the
// single place where that collapse happens.
func DocumentAccessOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			documentId, err := utils.URLParamUUID(r, "document_id")
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				utils.WriteError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			document, err := schema.GetDocument(documentId, db, true, false)
			if err != nil {
				if errors.Is(err, schema.ErrDocumentNotFound) {
					utils.WriteError(w, schema.ErrDocumentNotFound.Error(), http.StatusNotFound)
					return
				}
				utils.WriteError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !document.PermitsRole(user.Role) {
				utils.WriteError(w, schema.ErrDocumentNotFound.Error(), http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
