package tests

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"docuvault/vault/audit"
	"docuvault/vault/schema"

	"github.com/google/uuid"
)

func TestAuditTrailRecordsActions(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	editor, err := env.newUser("editor1", schema.RoleEditor)
	if err != nil {
		t.Fatal(err)
	}

	doc, err := editor.createDocument(documentUpload{
		fields:      map[string]string{"title": "Report", "type": "report", "category": "finance"},
		fileName:    "report.txt",
		fileContent: []byte("data"),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = editor.downloadDocument(doc.Id)
	if err != nil {
		t.Fatal(err)
	}

	_, err = editor.updateDocument(doc.Id, documentUpload{
		fields: map[string]string{"description": "revised"},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = editor.putDashboard(schema.DashboardProject, `{"banner": "hi"}`)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.deleteDocument(doc.Id)
	if err != nil {
		t.Fatal(err)
	}

	env.flushAudit()

	entries, err := admin.queryAudit("")
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]int{}
	for _, entry := range entries {
		seen[entry.Action]++
	}
	for _, action := range []string{
		audit.ActionRegister, audit.ActionLogin, audit.ActionCreate, audit.ActionDownload,
		audit.ActionUpdate, audit.ActionDashboardUpdate, audit.ActionDelete,
	} {
		if seen[action] == 0 {
			t.Fatalf("expected at least one '%v' entry, got %v", action, seen)
		}
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Fatal("expected entries in newest first order")
		}
	}

	for _, entry := range entries {
		if entry.Username == "" {
			t.Fatalf("expected username on every entry: %+v", entry)
		}
	}
}

func TestAuditQueryIsAdminOnly(t *testing.T) {
	env := setupTestEnv(t)

	editor, err := env.newUser("editor1", schema.RoleEditor)
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := env.newUser("viewer1", schema.RoleViewer)
	if err != nil {
		t.Fatal(err)
	}

	_, err = editor.queryAudit("")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for editor, got %v", err)
	}
	_, err = viewer.queryAudit("")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for viewer, got %v", err)
	}

	c := env.newClient()
	_, err = c.queryAudit("")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized without token, got %v", err)
	}
}

func TestAuditQueryFilters(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}
	editor, err := env.newUser("editor1", schema.RoleEditor)
	if err != nil {
		t.Fatal(err)
	}

	env.flushAudit()

	logins, err := admin.queryAudit("action=" + audit.ActionLogin)
	if err != nil {
		t.Fatal(err)
	}
	if len(logins) != 2 {
		t.Fatalf("expected 2 login entries, got %d", len(logins))
	}
	for _, entry := range logins {
		if entry.Action != audit.ActionLogin {
			t.Fatalf("unexpected action in filtered result: %v", entry.Action)
		}
	}

	byUser, err := admin.queryAudit(fmt.Sprintf("user_id=%v", editor.userId))
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) == 0 {
		t.Fatal("expected entries for the editor")
	}
	for _, entry := range byUser {
		if entry.UserId != editor.userId {
			t.Fatalf("unexpected user in filtered result: %v", entry.UserId)
		}
	}

	future := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	none, err := admin.queryAudit("start=" + future)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no entries after future start, got %d", len(none))
	}

	before, err := admin.queryAudit("end=" + future)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) == 0 {
		t.Fatal("expected entries before future end")
	}

	_, err = admin.queryAudit("start=not-a-timestamp")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request for invalid timestamp, got %v", err)
	}

	_, err = admin.queryAudit("user_id=not-a-uuid")
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request for invalid user id, got %v", err)
	}
}

func TestAuditQueryResultCap(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	actor := schema.User{Id: uuid.New(), Username: "bulk_writer"}
	for i := 0; i < audit.MaxQueryResults+20; i++ {
		env.recorder.Record(actor, audit.ActionDownload, nil, audit.TargetDocument, nil)
		// Keep ahead of the buffer so no entries are dropped.
		if i%100 == 0 {
			env.flushAudit()
		}
	}
	env.flushAudit()

	entries, err := admin.queryAudit("")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != audit.MaxQueryResults {
		t.Fatalf("expected %d entries, got %d", audit.MaxQueryResults, len(entries))
	}
}

func TestAuditTrailIsAppendOnly(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	for _, method := range []string{http.MethodPut, http.MethodPost, http.MethodDelete} {
		res, err := admin.request(method, "/audit/").send()
		if err != nil {
			t.Fatal(err)
		}
		if res.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected method not allowed for %v, got %d", method, res.Code)
		}
	}
}
