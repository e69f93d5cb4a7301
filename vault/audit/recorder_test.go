package audit

import (
	"testing"
	"time"

	"docuvault/vault/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRecorder(t *testing.T) *Recorder {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.AuditEntry{}))

	recorder := NewRecorder(db)
	t.Cleanup(recorder.Close)
	return recorder
}

func TestRecorderPersistsEntries(t *testing.T) {
	recorder := setupRecorder(t)

	actor := schema.User{Id: uuid.New(), Username: "user1"}
	target := uuid.New()

	recorder.Record(actor, ActionCreate, &target, TargetDocument, map[string]interface{}{"title": "report"})
	time.Sleep(5 * time.Millisecond)
	recorder.Record(actor, ActionDownload, &target, TargetDocument, nil)
	recorder.Flush()

	entries, err := recorder.Query(QueryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, ActionDownload, entries[0].Action)
	assert.Equal(t, ActionCreate, entries[1].Action)

	assert.Equal(t, actor.Id, entries[1].UserId)
	assert.Equal(t, "user1", entries[1].Username)
	assert.Equal(t, &target, entries[1].TargetId)
	assert.Contains(t, entries[1].Details, `"title":"report"`)
}

func TestRecorderQueryFilters(t *testing.T) {
	recorder := setupRecorder(t)

	alice := schema.User{Id: uuid.New(), Username: "alice"}
	bob := schema.User{Id: uuid.New(), Username: "bob"}

	recorder.Record(alice, ActionLogin, nil, TargetUser, nil)
	recorder.Record(alice, ActionCreate, nil, TargetDocument, nil)
	recorder.Record(bob, ActionLogin, nil, TargetUser, nil)
	recorder.Flush()

	logins, err := recorder.Query(QueryFilter{Action: ActionLogin})
	require.NoError(t, err)
	assert.Len(t, logins, 2)

	byUser, err := recorder.Query(QueryFilter{UserId: &alice.Id})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	aliceLogins, err := recorder.Query(QueryFilter{UserId: &alice.Id, Action: ActionLogin})
	require.NoError(t, err)
	assert.Len(t, aliceLogins, 1)

	future := time.Now().UTC().Add(time.Hour)
	none, err := recorder.Query(QueryFilter{Start: &future})
	require.NoError(t, err)
	assert.Empty(t, none)

	past := time.Now().UTC().Add(-time.Hour)
	all, err := recorder.Query(QueryFilter{Start: &past, End: &future})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecorderQueryCap(t *testing.T) {
	recorder := setupRecorder(t)

	actor := schema.User{Id: uuid.New(), Username: "bulk_writer"}
	for i := 0; i < MaxQueryResults+10; i++ {
		recorder.Record(actor, ActionDownload, nil, TargetDocument, nil)
		if i%100 == 0 {
			recorder.Flush()
		}
	}
	recorder.Flush()

	entries, err := recorder.Query(QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, MaxQueryResults)
}

func TestRecorderCloseDrainsBuffer(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&schema.AuditEntry{}))

	recorder := NewRecorder(db)
	actor := schema.User{Id: uuid.New(), Username: "user1"}
	for i := 0; i < 10; i++ {
		recorder.Record(actor, ActionUpdate, nil, TargetDocument, nil)
	}
	recorder.Close()

	var count int64
	require.NoError(t, db.Model(&schema.AuditEntry{}).Count(&count).Error)
	assert.Equal(t, int64(10), count)
}
