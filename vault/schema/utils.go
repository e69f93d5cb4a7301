package schema

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDashboardNotFound = errors.New("dashboard not found")
	ErrDbAccessFailed    = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "email = ?", strings.ToLower(email))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user by email", "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetDocument(documentId uuid.UUID, db *gorm.DB, loadPerms, loadAttrs bool) (Document, error) {
	var document Document

	var result *gorm.DB = db
	if loadPerms {
		result = result.Preload("Permissions")
	}
	if loadAttrs {
		result = result.Preload("Attributes")
	}
	result = result.First(&document, "id = ?", documentId)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return document, ErrDocumentNotFound
		}
		slog.Error("sql error in get document", "document_id", documentId, "error", result.Error)
		return document, ErrDbAccessFailed
	}

	return document, nil
}

func GetDashboard(dashboardType string, db *gorm.DB) (Dashboard, error) {
	var dashboard Dashboard

	result := db.First(&dashboard, "type = ?", dashboardType)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return dashboard, ErrDashboardNotFound
		}
		slog.Error("sql error in get dashboard", "type", dashboardType, "error", result.Error)
		return dashboard, ErrDbAccessFailed
	}

	return dashboard, nil
}
