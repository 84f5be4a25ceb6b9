package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"filedrop/internal/core"
)

// uploadResult reports the outcome for one file in a batch upload.
type uploadResult struct {
	OriginalName string `json:"original_name"`
	Filename     string `json:"filename,omitempty"`
	Guid         string `json:"guid,omitempty"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
}

// uploadDetails is the metadata view of an upload. The password hash never
// leaves the server; only its presence does.
type uploadDetails struct {
	Guid        string    `json:"guid"`
	Filename    string    `json:"filename"`
	Owner       string    `json:"owner"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Protected   bool      `json:"protected"`
	CreatedAt   time.Time `json:"created_at"`
}

func detailsOf(up *core.Upload) uploadDetails {
	return uploadDetails{
		Guid:        up.Guid.String(),
		Filename:    up.Filename,
		Owner:       up.OwnerClaim,
		ContentType: up.ContentType,
		SizeBytes:   up.SizeBytes,
		Protected:   up.PasswordHash != "",
		CreatedAt:   up.CreatedAt,
	}
}

// uploadHandler handles POST /api/upload: multipart form with one or more
// "files" parts and an optional "password" field applied to every file in
// the batch. Tier: User. Returns a per-file result list; one bad file does
// not fail the batch.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	identity, ok := s.identityFor(w, r, core.TierUser)
	if !ok {
		return
	}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad multipart", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		http.Error(w, "missing files", http.StatusBadRequest)
		return
	}

	// One password covers the whole batch; empty means public.
	var passwordHash string
	if password := r.FormValue("password"); password != "" {
		hash, err := core.HashUploadPassword(password)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		passwordHash = hash
	}

	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		results = append(results, s.storeOneUpload(r.Context(), identity, fh, passwordHash))
	}

	writeJSON(w, http.StatusOK, results)
}

// storeOneUpload persists one file: metadata row first, then the blob. A
// failed blob write deletes the row again so no half-created upload
// survives.
func (s *Server) storeOneUpload(ctx context.Context, identity *core.Identity, fh *multipart.FileHeader, passwordHash string) uploadResult {
	fail := func(reason string) uploadResult {
		return uploadResult{OriginalName: fh.Filename, Status: "failed", Reason: reason}
	}

	src, err := fh.Open()
	if err != nil {
		return fail("could not open file")
	}
	defer func() { _ = src.Close() }()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	upload := core.Upload{
		Guid:         uuid.New(),
		Filename:     generatedFilename(fh.Filename),
		OwnerClaim:   identity.Claim(),
		PasswordHash: passwordHash,
		ContentType:  contentType,
		SizeBytes:    fh.Size,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.InsertUpload(ctx, &upload); err != nil {
		if errors.Is(err, core.ErrConflict) {
			return fail("filename collision")
		}
		return fail("storage error")
	}

	putCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := s.blob.Put(putCtx, upload.ObjectKey(), src, fh.Size, contentType); err != nil {
		// Roll the metadata row back; a record without bytes is worse
		// than a failed upload.
		if derr := s.store.DeleteUpload(ctx, upload.Guid); derr != nil {
			log.Printf("rid=%s msg=orphan_cleanup_failed guid=%s err=%v",
				RequestIDFromContext(ctx), upload.Guid, derr)
		}
		log.Printf("rid=%s msg=putobject err=%v", RequestIDFromContext(ctx), err)
		return fail("storage error")
	}

	return uploadResult{
		OriginalName: fh.Filename,
		Filename:     upload.Filename,
		Guid:         upload.Guid.String(),
		Status:       "succeeded",
	}
}

// generatedFilename builds the short shareable name: random hex plus the
// original extension. The guid remains the stable fallback identifier.
func generatedFilename(original string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	return hex.EncodeToString(b) + ext
}

// uploadSubHandler routes /api/upload/{...}:
//
//	GET    /api/upload/uploads             caller's own uploads (User)
//	GET    /api/upload/{userGuid}/uploads  any user's uploads (Admin)
//	GET    /api/upload/{filename}/details  metadata (User)
//	GET    /api/upload/{filename}?password=  raw content (Unverified)
//	DELETE /api/upload/{filename}          delete own upload (User)
func (s *Server) uploadSubHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/upload/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		switch r.Method {
		case http.MethodGet:
			if parts[0] == "uploads" {
				s.listOwnUploads(w, r)
				return
			}
			s.getUploadContent(w, r, parts[0])
		case http.MethodDelete:
			s.deleteUpload(w, r, parts[0])
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "details":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getUploadDetails(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "uploads":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.listUserUploads(w, r, parts[0])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// getUploadContent serves the raw bytes. Tier: Unverified with an optional
// password query parameter. A missing upload is 404; a protected upload
// behind a missing or wrong password is 401.
func (s *Server) getUploadContent(w http.ResponseWriter, r *http.Request, identifier string) {
	if _, ok := s.identityFor(w, r, core.TierUnverified); !ok {
		return
	}

	upload, err := s.gate.CheckContent(r.Context(), identifier, r.URL.Query().Get("password"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	obj, err := s.blob.Get(ctx, upload.ObjectKey())
	if err != nil {
		log.Printf("rid=%s msg=getobject err=%v", RequestIDFromContext(r.Context()), err)
		http.Error(w, "storage error", http.StatusBadGateway)
		return
	}
	defer func() { _ = obj.Close() }()

	w.Header().Set("Content-Type", upload.ContentType)
	if upload.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(upload.SizeBytes, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, upload.Filename))
	w.WriteHeader(http.StatusOK)

	_, _ = io.Copy(w, obj)
}

// getUploadDetails returns metadata for any authenticated user; only the
// content itself sits behind the password gate.
func (s *Server) getUploadDetails(w http.ResponseWriter, r *http.Request, identifier string) {
	if _, ok := s.identityFor(w, r, core.TierUser); !ok {
		return
	}

	upload, err := s.gate.ResolveUpload(r.Context(), identifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detailsOf(upload))
}

// listOwnUploads returns the caller's uploads.
func (s *Server) listOwnUploads(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.identityFor(w, r, core.TierUser)
	if !ok {
		return
	}

	uploads, err := s.store.ListUploadsByOwner(r.Context(), identity.Claim())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]uploadDetails, 0, len(uploads))
	for i := range uploads {
		out = append(out, detailsOf(&uploads[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// listUserUploads lets an administrator inspect any user's uploads. This
// is the one place admins bypass the ownership check; delete never does.
func (s *Server) listUserUploads(w http.ResponseWriter, r *http.Request, rawGuid string) {
	if _, ok := s.identityFor(w, r, core.TierAdmin); !ok {
		return
	}

	target, err := uuid.Parse(rawGuid)
	if err != nil {
		http.Error(w, "invalid guid supplied", http.StatusBadRequest)
		return
	}

	uploads, err := s.store.ListUploadsByOwner(r.Context(), target.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]uploadDetails, 0, len(uploads))
	for i := range uploads {
		out = append(out, detailsOf(&uploads[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// deleteUpload removes the record and releases the blob. Owner only: a
// non-owner, admin or not, gets 401; an unknown identifier gets 400.
func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request, identifier string) {
	identity, ok := s.identityFor(w, r, core.TierUser)
	if !ok {
		return
	}

	upload, err := s.gate.ResolveUpload(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "not found", http.StatusBadRequest)
			return
		}
		s.writeError(w, r, err)
		return
	}

	if err := s.gate.CheckOwnership(upload, identity); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.DeleteUpload(r.Context(), upload.Guid); err != nil {
		s.writeError(w, r, err)
		return
	}

	// Release the bytes. The record is already gone; an S3-side failure is
	// logged and swept up out of band rather than resurrecting the row.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.blob.Remove(ctx, upload.ObjectKey()); err != nil {
		log.Printf("rid=%s msg=removeobject guid=%s err=%v",
			RequestIDFromContext(r.Context()), upload.Guid, err)
	}

	log.Printf("rid=%s msg=upload_deleted guid=%s owner=%s",
		RequestIDFromContext(r.Context()), upload.Guid, upload.OwnerClaim)
	writeText(w, http.StatusOK, "upload deleted")
}
