package tests

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/schema"
	"docuvault/vault/services"
	"docuvault/vault/storage"

	"github.com/go-chi/chi/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	vault    services.Vault
	api      chi.Router
	storage  storage.Storage
	recorder *audit.Recorder
	db       *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	return newTestEnv(t, db)
}

// setupConcurrentTestEnv backs the database with a file so that overlapping
// requests on separate pool connections see the same data. Immediate
// transactions plus a busy timeout make concurrent writers wait for each
// other instead of failing with a lock error.
func setupConcurrentTestEnv(t *testing.T) *testEnv {
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000&_txlock=immediate"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	return newTestEnv(t, db)
}

func newTestEnv(t *testing.T, db *gorm.DB) *testEnv {
	err := db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		t.Fatal(err)
	}

	storagePath := filepath.Join(t.TempDir(), "storage")
	err = os.MkdirAll(storagePath, 0777)
	if err != nil {
		t.Fatalf("error creating storage directory: %v", err)
	}

	store := storage.NewSharedDisk(storagePath)

	recorder := audit.NewRecorder(db)
	t.Cleanup(recorder.Close)

	secret := []byte("290zcv02ai249")

	userAuth, err := auth.NewBasicIdentityProvider(
		db,
		auth.NewAccessLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        secret,
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	vault := services.NewVault(db, store, userAuth, recorder)

	return &testEnv{vault: vault, api: vault.Routes(), storage: store, recorder: recorder, db: db}
}

// flushAudit waits for pending fire-and-forget audit writes so tests can
// assert on the persisted trail.
func (t *testEnv) flushAudit() {
	t.recorder.Flush()
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) newUser(username, role string) (client, error) {
	c := t.newClient()
	login, err := c.register(username, username+"@mail.com", username+"_password", role)
	if err != nil {
		return client{}, err
	}

	err = c.login(login)
	if err != nil {
		return client{}, err
	}

	return c, nil
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(loginInfo{Email: adminEmail, Password: adminPassword})
	return c, err
}
