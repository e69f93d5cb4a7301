package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"docuvault/vault/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionRegister        = "register"
	ActionLogin           = "login"
	ActionCreate          = "create"
	ActionUpdate          = "update"
	ActionDelete          = "delete"
	ActionDownload        = "download"
	ActionDashboardUpdate = "dashboard_update"
)

const (
	TargetDocument  = "document"
	TargetUser      = "user"
	TargetDashboard = "dashboard"
)

// MaxQueryResults bounds the page size of audit queries.
const MaxQueryResults = 100

type recordOp struct {
	entry *schema.AuditEntry
	flush chan struct{}
}

// Recorder persists audit entries from a single background worker. Record
// never returns an error: audit logging is best effort and must never fail
// the operation it describes, so insert failures are logged and discarded.
type Recorder struct {
	db   *gorm.DB
	ops  chan recordOp
	done chan struct{}
}

func NewRecorder(db *gorm.DB) *Recorder {
	r := &Recorder{
		db:   db,
		ops:  make(chan recordOp, 256),
		done: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	for op := range r.ops {
		if op.entry != nil {
			if err := r.db.Create(op.entry).Error; err != nil {
				slog.Error("audit: failed to persist entry", "action", op.entry.Action, "error", err)
			}
		}
		if op.flush != nil {
			close(op.flush)
		}
	}
	close(r.done)
}

func (r *Recorder) Record(actor schema.User, action string, targetId *uuid.UUID, targetType string, details map[string]interface{}) {
	entry := &schema.AuditEntry{
		Id:         uuid.New(),
		UserId:     actor.Id,
		Username:   actor.Username,
		Action:     action,
		TargetId:   targetId,
		TargetType: targetType,
		CreatedAt:  time.Now().UTC(),
	}

	if len(details) > 0 {
		detailsJson, err := json.Marshal(details)
		if err != nil {
			slog.Error("audit: failed to serialize entry details", "action", action, "error", err)
		} else {
			entry.Details = string(detailsJson)
		}
	}

	select {
	case r.ops <- recordOp{entry: entry}:
	default:
		slog.Warn("audit: buffer full, dropping entry", "action", action, "user_id", actor.Id)
	}
}

// Flush blocks until every entry recorded before the call has been written.
func (r *Recorder) Flush() {
	flushed := make(chan struct{})
	r.ops <- recordOp{flush: flushed}
	<-flushed
}

// Close drains the buffer and stops the worker. Record must not be called
// after Close.
func (r *Recorder) Close() {
	close(r.ops)
	<-r.done
}

type QueryFilter struct {
	UserId *uuid.UUID
	Action string
	Start  *time.Time
	End    *time.Time
}

// Query returns entries matching every supplied filter, newest first,
// capped at MaxQueryResults. No matches is an empty slice, not an error.
func (r *Recorder) Query(filter QueryFilter) ([]schema.AuditEntry, error) {
	query := r.db.Model(&schema.AuditEntry{})

	if filter.UserId != nil {
		query = query.Where("user_id = ?", *filter.UserId)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Start != nil {
		query = query.Where("created_at >= ?", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("created_at <= ?", *filter.End)
	}

	entries := make([]schema.AuditEntry, 0)
	result := query.Order("created_at desc").Limit(MaxQueryResults).Find(&entries)
	if result.Error != nil {
		slog.Error("sql error querying audit entries", "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	return entries, nil
}
