package services

import (
	"log"
	"net/http"
	"os"

	"docuvault/utils"
	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Vault struct {
	user      UserService
	document  DocumentService
	dashboard DashboardService
	audit     AuditService

	db *gorm.DB
}

func NewVault(db *gorm.DB, store storage.Storage, userAuth auth.IdentityProvider, recorder *audit.Recorder) Vault {
	return Vault{
		user: UserService{db: db, userAuth: userAuth, audit: recorder},
		document: DocumentService{
			db:       db,
			storage:  store,
			userAuth: userAuth,
			audit:    recorder,
		},
		dashboard: DashboardService{db: db, userAuth: userAuth, audit: recorder},
		audit:     AuditService{db: db, userAuth: userAuth, recorder: recorder},
		db:        db,
	}
}

func (v *Vault) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))
	r.Use(instrument)

	r.Mount("/auth", v.user.Routes())
	r.Mount("/documents", v.document.Routes())
	r.Mount("/dashboards", v.dashboard.Routes())
	r.Mount("/audit", v.audit.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
