package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"docuvault/utils"
	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	audit    *audit.Recorder
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/me", s.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.RequireRoles(schema.RoleAdmin))

		r.Get("/users", s.List)
		r.Post("/users/{user_id}/role", s.ChangeRole)
	})

	return r
}

type UserInfo struct {
	Id    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

func convertToUserInfo(user *schema.User) UserInfo {
	return UserInfo{
		Id:    user.Id,
		Name:  user.Username,
		Email: user.Email,
		Role:  user.Role,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type registerResponse struct {
	UserId uuid.UUID `json:"user_id"`
}

func (s *UserService) Register(w http.ResponseWriter, r *http.Request) {
	var params registerRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" || params.Email == "" || params.Password == "" {
		utils.WriteError(w, "name, email, and password are required", http.StatusBadRequest)
		return
	}

	if params.Role == "" {
		params.Role = schema.RoleViewer
	}

	userId, err := s.userAuth.CreateUser(params.Name, params.Email, params.Password, params.Role)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrInvalidRole):
			responseCode = http.StatusBadRequest
		}
		utils.WriteError(w, fmt.Sprintf("error creating user: %v", err), responseCode)
		return
	}

	s.audit.Record(
		schema.User{Id: userId, Username: params.Name, Role: params.Role},
		audit.ActionRegister, &userId, audit.TargetUser, nil,
	)

	utils.WriteJsonResponse(w, registerResponse{UserId: userId})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string   `json:"access_token"`
	User        UserInfo `json:"user"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Email == "" || params.Password == "" {
		utils.WriteError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	login, err := s.userAuth.LoginWithEmail(params.Email, params.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			utils.WriteError(w, auth.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
			return
		}
		utils.WriteError(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	user, err := schema.GetUser(login.UserId, s.db)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("login failed: %v", err), http.StatusInternalServerError)
		return
	}

	s.audit.Record(user, audit.ActionLogin, &user.Id, audit.TargetUser, nil)

	utils.WriteJsonResponse(w, loginResponse{AccessToken: login.AccessToken, User: convertToUserInfo(&user)})
}

func (s *UserService) Me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := convertToUserInfo(&user)
	utils.WriteJsonResponse(w, info)
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Order("created_at asc").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]UserInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, convertToUserInfo(&u))
	}
	utils.WriteJsonResponse(w, infos)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (s *UserService) ChangeRole(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params changeRoleRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if !schema.IsValidRole(params.Role) {
		utils.WriteError(w, fmt.Sprintf("invalid role '%v'", params.Role), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if user.Role == schema.RoleAdmin && params.Role != schema.RoleAdmin {
			var count int64
			result := txn.Model(&schema.User{}).Where("role = ?", schema.RoleAdmin).Count(&count)
			if result.Error != nil {
				slog.Error("sql error counting existing admins", "error", result.Error)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}

			if count < 2 {
				return CodedError(fmt.Errorf("cannot demote admin %v since there would be no admins left", userId), http.StatusUnprocessableEntity)
			}
		}

		user.Role = params.Role

		result := txn.Save(&user)
		if result.Error != nil {
			slog.Error("sql error updating user role", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error changing role: %v", err), GetResponseCode(err))
		return
	}

	actor, err := auth.UserFromContext(r)
	if err == nil {
		s.audit.Record(actor, audit.ActionUpdate, &userId, audit.TargetUser, map[string]interface{}{"role": params.Role})
	}

	utils.WriteSuccess(w)
}
