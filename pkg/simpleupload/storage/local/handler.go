package local

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// Mount registers the upload and file-serving routes on r
func (b *Backend) Mount(r chi.Router) {
	r.Post(b.config.UploadPath, b.HandleUpload)
	r.Get(b.config.FilesPath+"/*", b.HandleFile)
}

// HandleUpload accepts a multipart POST in the same layout a browser sends
// to an S3 POST endpoint: policy fields first, then the "file" part.
func (b *Backend) HandleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		slog.Warn("Local upload is not multipart", "error", err)
		http.Error(w, "expected multipart/form-data", http.StatusBadRequest)
		return
	}

	fields := make(map[string]string)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			slog.Warn("Local upload has no file part")
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.Error("Failed to read multipart body", "error", err)
			http.Error(w, "malformed multipart body", http.StatusBadRequest)
			return
		}

		if part.FormName() != FieldFile {
			value, err := readField(part)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			fields[part.FormName()] = value
			continue
		}

		b.storePart(w, part, fields)
		return
	}
}

func (b *Backend) storePart(w http.ResponseWriter, part *multipart.Part, fields map[string]string) {
	defer part.Close()

	policy, err := b.signer.verify(fields, b.now())
	if err != nil {
		slog.Warn("Local upload policy rejected", "key", fields[FieldKey], "error", err)
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	n, err := b.store(policy.Key, part, policy.MinSize, policy.MaxSize)
	if err != nil {
		if IsPolicyError(err) {
			slog.Warn("Local upload rejected", "key", policy.Key, "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Local upload failed", "key", policy.Key, "error", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	_, fileName, _ := simpleupload.SplitObjectKey(policy.Key)
	slog.Info("Local upload stored", "key", policy.Key, "file_name", fileName, "bytes", n)
	w.WriteHeader(http.StatusNoContent)
}

// readField reads a small non-file form value
func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	value, err := io.ReadAll(io.LimitReader(part, 64<<10))
	if err != nil {
		return "", fmt.Errorf("failed to read field %s: %w", part.FormName(), err)
	}
	return string(value), nil
}

// HandleFile serves a previously uploaded object
func (b *Backend) HandleFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	f, err := b.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrInvalidKey) {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to open local object", "key", key, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "object not found", http.StatusNotFound)
		return
	}
	// Keys are "<millis>-<fileName>"; hand the original name back to browsers
	if _, fileName, ok := simpleupload.SplitObjectKey(path.Base(key)); ok && fileName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": fileName}))
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
