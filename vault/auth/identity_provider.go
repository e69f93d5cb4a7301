package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"docuvault/vault/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// Returned for both an unknown email and a wrong password so that a
	// failed login does not reveal which of the two checks failed.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	ErrGeneratingJwt        = errors.New("error generating jwt")
	ErrEmailAlreadyInUse    = errors.New("email is already in use")
	ErrUsernameAlreadyInUse = errors.New("username is already in use")
	ErrInvalidRole          = errors.New("invalid role")
)

type LoginResult struct {
	UserId      uuid.UUID
	Role        string
	AccessToken string
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	LoginWithEmail(email, password string) (LoginResult, error)

	CreateUser(username, email, password, role string) (uuid.UUID, error)
}

func addInitialAdminToDb(db *gorm.DB, userId uuid.UUID, username, email string, password []byte) error {
	user := schema.User{
		Id:       userId,
		Username: username,
		Email:    strings.ToLower(email),
		Password: password,
		Role:     schema.RoleAdmin,
	}

	err := db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "id = ? or username = ? or email = ?", userId, username, user.Email)
		if result.Error != nil {
			slog.Error("sql error checking if admin has already been added", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected == 0 {
			result := txn.Create(&user)
			if result.Error != nil {
				slog.Error("sql error creating initial admin user", "error", result.Error)
				return schema.ErrDbAccessFailed
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error adding initial admin to db: %w", err)
	}

	return nil
}

type requestContextKey string

const UserRequestContextKey requestContextKey = "user"
