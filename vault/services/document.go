package services

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docuvault/utils"
	"docuvault/vault/audit"
	"docuvault/vault/auth"
	"docuvault/vault/schema"
	"docuvault/vault/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listPageSize bounds document listings; the original design left listing
// unbounded, this applies the same cap as audit queries.
const listPageSize = 100

type DocumentService struct {
	db       *gorm.DB
	storage  storage.Storage
	userAuth auth.IdentityProvider
	audit    *audit.Recorder
}

func (s *DocumentService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(checkSufficientStorage(s.storage)).Post("/", s.Create)
		r.Get("/", s.List)

		r.Group(func(r chi.Router) {
			r.Use(auth.DocumentAccessOnly(s.db))

			r.Get("/{document_id}", s.Get)
			r.Get("/{document_id}/download", s.Download)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRoles(schema.RoleAdmin, schema.RoleEditor))
			r.Use(auth.DocumentAccessOnly(s.db))

			r.With(checkSufficientStorage(s.storage)).Put("/{document_id}", s.Update)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRoles(schema.RoleAdmin))
			r.Use(auth.DocumentAccessOnly(s.db))

			r.Delete("/{document_id}", s.Delete)
		})
	})

	return r
}

type DocumentInfo struct {
	Id          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Type        string            `json:"type"`
	Category    string            `json:"category"`
	FileName    string            `json:"file_name"`
	Version     int               `json:"version"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   uuid.UUID         `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func convertToDocumentInfo(document *schema.Document) DocumentInfo {
	return DocumentInfo{
		Id:          document.Id,
		Title:       document.Title,
		Description: document.Description,
		Type:        document.Type,
		Category:    document.Category,
		FileName:    document.FileName,
		Version:     document.Version,
		Permissions: document.PermittedRoles(),
		Metadata:    document.GetAttributes(),
		CreatedBy:   document.CreatedBy,
		CreatedAt:   document.CreatedAt,
		UpdatedAt:   document.UpdatedAt,
	}
}

// maxFieldSize bounds non-file multipart fields, the file part itself is
// streamed to storage without buffering.
const maxFieldSize = 1 << 20

type documentForm struct {
	fields   map[string]string
	filePath string
	fileName string
}

func (f *documentForm) has(field string) bool {
	_, ok := f.fields[field]
	return ok
}

// parseDocumentForm streams a multipart request, collecting regular fields
// and writing the file part (if any) directly into storage. On error the
// caller owns cleanup of any file already written (cleanupFile).
func (s *DocumentService) parseDocumentForm(r *http.Request) (*documentForm, error) {
	boundary, err := getMultipartBoundary(r)
	if err != nil {
		return nil, err
	}

	form := &documentForm{fields: make(map[string]string)}
	reader := multipart.NewReader(r.Body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return form, CodedError(fmt.Errorf("error parsing multipart request: %w", err), http.StatusBadRequest)
		}
		defer part.Close()

		if part.FormName() == "file" {
			if part.FileName() == "" {
				return form, CodedError(errors.New("invalid file in upload: filename cannot be empty"), http.StatusUnprocessableEntity)
			}
			if form.filePath != "" {
				return form, CodedError(errors.New("only one file may be attached per document"), http.StatusUnprocessableEntity)
			}

			form.fileName = sanitizeFilename(part.FileName())
			form.filePath = storage.DocumentPath(storedFileName(part.FileName()))

			if err := s.storage.Write(form.filePath, part); err != nil {
				slog.Error("error saving uploaded file", "error", err)
				return form, CodedError(errors.New("error saving uploaded file"), http.StatusInternalServerError)
			}
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
		if err != nil {
			return form, CodedError(fmt.Errorf("error reading field '%v': %w", part.FormName(), err), http.StatusBadRequest)
		}
		form.fields[part.FormName()] = string(value)
	}

	return form, nil
}

func (s *DocumentService) cleanupFile(form *documentForm) {
	if form == nil || form.filePath == "" {
		return
	}
	if err := s.storage.Delete(form.filePath); err != nil {
		slog.Error("error removing stored file after failed request", "path", form.filePath, "error", err)
	}
}

func (s *DocumentService) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	form, err := s.parseDocumentForm(r)
	if err != nil {
		s.cleanupFile(form)
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	title := strings.TrimSpace(form.fields["title"])
	docType := strings.TrimSpace(form.fields["type"])
	category := strings.TrimSpace(form.fields["category"])

	if title == "" || docType == "" || category == "" || form.filePath == "" {
		s.cleanupFile(form)
		utils.WriteError(w, "title, type, category, and a file attachment are required", http.StatusBadRequest)
		return
	}

	permissions, err := parsePermissions(form.fields["permissions"])
	if err != nil {
		s.cleanupFile(form)
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	metadata, err := parseMetadata(form.fields["metadata"])
	if err != nil {
		s.cleanupFile(form)
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	now := time.Now().UTC()
	document := schema.Document{
		Id:          uuid.New(),
		Title:       title,
		Description: form.fields["description"],
		Type:        docType,
		Category:    category,
		FilePath:    form.filePath,
		FileName:    form.fileName,
		Version:     1,
		CreatedBy:   user.Id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, role := range permissions {
		document.Permissions = append(document.Permissions, schema.DocumentPermission{DocumentId: document.Id, Role: role})
	}
	for key, value := range metadata {
		document.Attributes = append(document.Attributes, schema.DocumentAttribute{DocumentId: document.Id, Key: key, Value: value})
	}

	result := s.db.Create(&document)
	if result.Error != nil {
		slog.Error("sql error creating document", "error", result.Error)
		s.cleanupFile(form)
		utils.WriteError(w, fmt.Sprintf("error creating document: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	s.audit.Record(user, audit.ActionCreate, &document.Id, audit.TargetDocument, map[string]interface{}{
		"title": document.Title, "file_name": document.FileName,
	})

	utils.WriteJsonResponse(w, convertToDocumentInfo(&document))
}

func (s *DocumentService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var documents []schema.Document
	result := s.db.
		Preload("Permissions").Preload("Attributes").
		Joins("JOIN document_permissions ON document_permissions.document_id = documents.id").
		Where("document_permissions.role = ?", user.Role).
		Order("documents.created_at desc").
		Limit(listPageSize).
		Find(&documents)
	if result.Error != nil {
		slog.Error("sql error listing documents", "error", result.Error)
		utils.WriteError(w, fmt.Sprintf("error listing documents: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]DocumentInfo, 0, len(documents))
	for _, document := range documents {
		infos = append(infos, convertToDocumentInfo(&document))
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *DocumentService) Get(w http.ResponseWriter, r *http.Request) {
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	document, err := schema.GetDocument(documentId, s.db, true, true)
	if err != nil {
		if errors.Is(err, schema.ErrDocumentNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, fmt.Sprintf("error retrieving document: %v", err), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, convertToDocumentInfo(&document))
}

func (s *DocumentService) Update(w http.ResponseWriter, r *http.Request) {
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	form, err := s.parseDocumentForm(r)
	if err != nil {
		s.cleanupFile(form)
		utils.WriteError(w, err.Error(), GetResponseCode(err))
		return
	}

	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	patch := map[string]interface{}{}

	for _, field := range []string{"title", "description", "type", "category"} {
		if !form.has(field) {
			continue
		}
		value := form.fields[field]
		// Description may be cleared, the fields required at create time
		// must stay non-blank.
		if field != "description" {
			value = strings.TrimSpace(value)
			if value == "" {
				s.cleanupFile(form)
				utils.WriteError(w, fmt.Sprintf("%v cannot be blank", field), http.StatusBadRequest)
				return
			}
		}
		updates[field] = value
		patch[field] = value
	}

	var permissions []string
	if form.has("permissions") {
		permissions, err = parsePermissions(form.fields["permissions"])
		if err != nil {
			s.cleanupFile(form)
			utils.WriteError(w, err.Error(), GetResponseCode(err))
			return
		}
		patch["permissions"] = permissions
	}

	var metadata map[string]string
	if form.has("metadata") {
		metadata, err = parseMetadata(form.fields["metadata"])
		if err != nil {
			s.cleanupFile(form)
			utils.WriteError(w, err.Error(), GetResponseCode(err))
			return
		}
		patch["metadata"] = metadata
	}

	if form.filePath != "" {
		updates["file_path"] = form.filePath
		updates["file_name"] = form.fileName
		// Single atomic increment so concurrent updates cannot lose a
		// version bump through a read-modify-write race.
		updates["version"] = gorm.Expr("version + 1")
		patch["file_name"] = form.fileName
	}

	var previousFilePath string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		document, err := schema.GetDocument(documentId, txn, false, false)
		if err != nil {
			if errors.Is(err, schema.ErrDocumentNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		previousFilePath = document.FilePath

		result := txn.Model(&schema.Document{}).Where("id = ?", documentId).Updates(updates)
		if result.Error != nil {
			slog.Error("sql error updating document", "document_id", documentId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if permissions != nil {
			if err := txn.Delete(&schema.DocumentPermission{}, "document_id = ?", documentId).Error; err != nil {
				slog.Error("sql error clearing document permissions", "document_id", documentId, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
			for _, role := range permissions {
				perm := schema.DocumentPermission{DocumentId: documentId, Role: role}
				if err := txn.Create(&perm).Error; err != nil {
					slog.Error("sql error adding document permission", "document_id", documentId, "error", err)
					return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
				}
			}
		}

		for key, value := range metadata {
			attr := schema.DocumentAttribute{DocumentId: documentId, Key: key, Value: value}
			err := txn.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "document_id"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).Create(&attr).Error
			if err != nil {
				slog.Error("sql error saving document attribute", "document_id", documentId, "error", err)
				return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
			}
		}

		return nil
	})

	if err != nil {
		s.cleanupFile(form)
		utils.WriteError(w, fmt.Sprintf("error updating document: %v", err), GetResponseCode(err))
		return
	}

	if form.filePath != "" && previousFilePath != "" && previousFilePath != form.filePath {
		if err := s.storage.Delete(previousFilePath); err != nil {
			slog.Error("error removing replaced document file", "path", previousFilePath, "error", err)
		}
	}

	s.audit.Record(user, audit.ActionUpdate, &documentId, audit.TargetDocument, patch)

	document, err := schema.GetDocument(documentId, s.db, true, true)
	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error retrieving updated document: %v", err), http.StatusInternalServerError)
		return
	}
	utils.WriteJsonResponse(w, convertToDocumentInfo(&document))
}

func (s *DocumentService) Delete(w http.ResponseWriter, r *http.Request) {
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var filePath string

	err = s.db.Transaction(func(txn *gorm.DB) error {
		document, err := schema.GetDocument(documentId, txn, false, false)
		if err != nil {
			if errors.Is(err, schema.ErrDocumentNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}
		filePath = document.FilePath

		if err := txn.Delete(&schema.DocumentPermission{}, "document_id = ?", documentId).Error; err != nil {
			slog.Error("sql error deleting document permissions", "document_id", documentId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if err := txn.Delete(&schema.DocumentAttribute{}, "document_id = ?", documentId).Error; err != nil {
			slog.Error("sql error deleting document attributes", "document_id", documentId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if err := txn.Delete(&schema.Document{Id: documentId}).Error; err != nil {
			slog.Error("sql error deleting document", "document_id", documentId, "error", err)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		utils.WriteError(w, fmt.Sprintf("error deleting document: %v", err), GetResponseCode(err))
		return
	}

	// File removal is best effort, the metadata delete already succeeded.
	if filePath != "" {
		if err := s.storage.Delete(filePath); err != nil {
			slog.Error("error removing file for deleted document", "document_id", documentId, "path", filePath, "error", err)
		}
	}

	s.audit.Record(user, audit.ActionDelete, &documentId, audit.TargetDocument, nil)

	utils.WriteSuccess(w)
}

func (s *DocumentService) Download(w http.ResponseWriter, r *http.Request) {
	documentId, err := utils.URLParamUUID(r, "document_id")
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	document, err := schema.GetDocument(documentId, s.db, false, false)
	if err != nil {
		if errors.Is(err, schema.ErrDocumentNotFound) {
			utils.WriteError(w, err.Error(), http.StatusNotFound)
			return
		}
		utils.WriteError(w, fmt.Sprintf("error retrieving document: %v", err), http.StatusInternalServerError)
		return
	}

	exists, err := s.storage.Exists(document.FilePath)
	if err != nil {
		utils.WriteError(w, "error locating document file", http.StatusInternalServerError)
		return
	}
	if !exists {
		slog.Error("document file missing from storage", "document_id", documentId, "path", document.FilePath)
		utils.WriteError(w, schema.ErrDocumentNotFound.Error(), http.StatusNotFound)
		return
	}

	size, err := s.storage.Size(document.FilePath)
	if err != nil {
		utils.WriteError(w, "error reading document file", http.StatusInternalServerError)
		return
	}

	file, err := s.storage.Read(document.FilePath)
	if err != nil {
		slog.Error("error opening document file for download", "document_id", documentId, "error", err)
		utils.WriteError(w, "error reading document file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	s.audit.Record(user, audit.ActionDownload, &documentId, audit.TargetDocument, map[string]interface{}{
		"file_name": document.FileName,
	})

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", document.FileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))

	flusher, _ := w.(http.Flusher)

	buffer := bufio.NewReader(file)
	chunk := make([]byte, 1024*1024)

	for {
		readN, err := buffer.Read(chunk)
		isEof := err == io.EOF
		if err != nil && !isEof {
			slog.Error("error reading chunk of document file", "document_id", documentId, "error", err)
			return
		}

		if readN > 0 {
			if _, err := w.Write(chunk[:readN]); err != nil {
				slog.Error("error writing chunk of document file", "document_id", documentId, "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if isEof {
			return
		}
	}
}
