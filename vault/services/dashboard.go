package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"docuvault/utils"
	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DashboardService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	audit    *audit.Recorder
}

func (s *DashboardService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/{dashboard_type}", s.Get)

		r.With(auth.RequireRoles(schema.RoleAdmin, schema.RoleEditor)).
			Put("/{dashboard_type}", s.Upsert)
	})

	return r
}

type DashboardInfo struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	UpdatedBy uuid.UUID       `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func dashboardType(r *http.Request) (string, error) {
	dashboardType, err := utils.URLParam(r, "dashboard_type")
	if err != nil {
		return "", CodedError(err, http.StatusBadRequest)
	}
	if !schema.IsValidDashboardType(dashboardType) {
		return "", CodedError(fmt.Errorf("invalid dashboard type '%v'", dashboardType), http.StatusBadRequest)
	}
	return dashboardType, nil
}

func (s *DashboardService) Get(w http.ResponseWriter, r *http.Request) {
	dashType, err := dashboardType(r)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	dashboard, err := schema.GetDashboard(dashType, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDashboardNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, fmt.Sprintf("error retrieving dashboard: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, DashboardInfo{
		Type:      dashboard.Type,
		Data:      json.RawMessage(dashboard.Data),
		UpdatedBy: dashboard.UpdatedBy,
		UpdatedAt: dashboard.UpdatedAt,
	})
}

type upsertDashboardRequest struct {
	Data json.RawMessage `json:"data"`
}

func (s *DashboardService) Upsert(w http.ResponseWriter, r *http.Request) {
	dashType, err := dashboardType(r)
	if err != nil {
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params upsertDashboardRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if len(params.Data) == 0 {
		utils.WriteError(w, "dashboard data is required", http.StatusBadRequest)
		return
	}

	dashboard := schema.Dashboard{
		Type:      dashType,
		Data:      string(params.Data),
		UpdatedBy: user.Id,
		UpdatedAt: time.Now().UTC(),
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_by", "updated_at"}),
	}).Create(&dashboard)
	if result.Error != nil {
		slog.Error("sql error upserting dashboard", "type", dashType, "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error saving dashboard: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	s.audit.Record(user, audit.ActionDashboardUpdate, nil, audit.TargetDashboard, map[string]interface{}{
		"dashboard_type": dashType,
	})

	utils.WriteSuccess(w)
}
