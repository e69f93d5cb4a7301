package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docuvault/utils"
	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	recorder *audit.Recorder
}

func (s *AuditService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.RequireRoles(schema.RoleAdmin))

		r.Get("/", s.Query)
	})

	return r
}

type AuditEntryInfo struct {
	Id         uuid.UUID       `json:"id"`
	UserId     uuid.UUID       `json:"user_id"`
	Username   string          `json:"username"`
	Action     string          `json:"action"`
	TargetId   *uuid.UUID      `json:"target_id,omitempty"`
	TargetType string          `json:"target_type,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func parseQueryFilter(r *http.Request) (audit.QueryFilter, error) {
	var filter audit.QueryFilter

	if value := r.URL.Query().Get("user_id"); value != "" {
		userId, err := uuid.Parse(value)
		if err != nil {
			return filter, CodedError(fmt.Errorf("invalid user_id filter '%v': %w", value, err), http.StatusBadRequest)
		}
		filter.UserId = &userId
	}

	filter.Action = r.URL.Query().Get("action")

	for key, dest := range map[string]**time.Time{"start": &filter.Start, "end": &filter.End} {
		if value := r.URL.Query().Get(key); value != "" {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return filter, CodedError(fmt.Errorf("invalid %v filter '%v', must be rfc3339: %w", key, value, err), http.StatusBadRequest)
			}
			*dest = &t
		}
	}

	return filter, nil
}

func (s *AuditService) Query(w http.ResponseWriter, r *http.Request) {
	filter, err := parseQueryFilter(r)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	entries, err := s.recorder.Query(filter)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error querying audit log: %v", err), http.StatusInternalServerError)
		return
	}

	infos := make([]AuditEntryInfo, 0, len(entries))
	for _, entry := range entries {
		info := AuditEntryInfo{
			Id:         entry.Id,
			UserId:     entry.UserId,
			Username:   entry.Username,
			Action:     entry.Action,
			TargetId:   entry.TargetId,
			TargetType: entry.TargetType,
			Timestamp:  entry.CreatedAt,
		}
		if entry.Details != "" {
			info.Details = json.RawMessage(entry.Details)
		}
		infos = append(infos, info)
	}

	utils.WriteJsonResponse(w, infos)
}
