package local

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{
		BaseDir:   t.TempDir(),
		BaseURL:   "http://localhost:8080/",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)
	return b
}

func sign(t *testing.T, b *Backend, key string, maxSize int64) *simpleupload.SignedPolicy {
	t.Helper()
	signed, err := b.SignPolicy(context.Background(), simpleupload.PolicyRequest{
		Key:         key,
		ContentType: "text/plain",
		MaxSize:     maxSize,
		Expires:     simpleupload.PolicyTTL,
	})
	require.NoError(t, err)
	return signed
}

func multipartBody(t *testing.T, fields map[string]string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		require.NoError(t, mw.WriteField(k, fields[k]))
	}
	fw, err := mw.CreateFormFile(FieldFile, "upload.txt")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, b *Backend, fields map[string]string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	b.Mount(router)

	body, contentType := multipartBody(t, fields, content)
	req := httptest.NewRequest(http.MethodPost, "/local-upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSignPolicy(t *testing.T) {
	b := newTestBackend(t)
	signed := sign(t, b, "1-a.txt", 100)

	assert.Equal(t, "http://localhost:8080/local-upload", signed.URL)
	assert.Equal(t, "1-a.txt", signed.Fields[FieldKey])
	assert.Equal(t, "text/plain", signed.Fields[FieldContentType])
	assert.NotEmpty(t, signed.Fields[FieldPolicy])
	assert.NotEmpty(t, signed.Fields[FieldSignature])
	assert.Equal(t, "http://localhost:8080/local-files/1-a.txt", b.ObjectURL("1-a.txt"))
	assert.Equal(t, "local", b.Bucket())

	p, err := decodePolicy(signed.Fields[FieldPolicy])
	require.NoError(t, err)
	assert.Equal(t, "local", p.Bucket)
	assert.Equal(t, "1-a.txt", p.Key)
	assert.Equal(t, int64(100), p.MaxSize)
	assert.Equal(t, "", p.ContentTypePrefix)
}

func TestSignPolicy_NoSecret(t *testing.T) {
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = b.SignPolicy(context.Background(), simpleupload.PolicyRequest{Key: "k"})
	assert.ErrorIs(t, err, ErrNoSecretKey)
}

func TestSignPolicy_TraversalKey(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.SignPolicy(context.Background(), simpleupload.PolicyRequest{Key: "1-../../etc/passwd"})
	assert.NoError(t, err, "key stays under base dir after cleaning")

	_, err = b.SignPolicy(context.Background(), simpleupload.PolicyRequest{Key: "../escape"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestHandleUpload_Success(t *testing.T) {
	b := newTestBackend(t)
	signed := sign(t, b, "1-hello.txt", simpleupload.MaxUploadSize)

	rr := post(t, b, signed.Fields, []byte("hello world"))
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	data, err := os.ReadFile(filepath.Join(b.config.BaseDir, "1-hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestHandleUpload_SizeBoundary(t *testing.T) {
	b := newTestBackend(t)

	atLimit := sign(t, b, "1-exact.bin", 16)
	rr := post(t, b, atLimit.Fields, bytes.Repeat([]byte("x"), 16))
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	overLimit := sign(t, b, "1-over.bin", 16)
	rr = post(t, b, overLimit.Fields, bytes.Repeat([]byte("x"), 17))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	_, err := os.Stat(filepath.Join(b.config.BaseDir, "1-over.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestHandleUpload_Rejections(t *testing.T) {
	b := newTestBackend(t)

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"bad signature", func(f map[string]string) { f[FieldSignature] = strings.Repeat("0", 64) }, "invalid policy signature"},
		{"missing policy", func(f map[string]string) { delete(f, FieldPolicy) }, "missing policy"},
		{"key mismatch", func(f map[string]string) { f[FieldKey] = "2-other.txt" }, "condition not met"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed := sign(t, b, "1-a.txt", 100)
			fields := make(map[string]string)
			for k, v := range signed.Fields {
				fields[k] = v
			}
			tt.mutate(fields)

			rr := post(t, b, fields, []byte("data"))
			assert.Equal(t, http.StatusForbidden, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestHandleUpload_Expired(t *testing.T) {
	b := newTestBackend(t)
	signed := sign(t, b, "1-late.txt", 100)

	b.now = func() time.Time { return time.Now().Add(simpleupload.PolicyTTL + time.Second) }
	rr := post(t, b, signed.Fields, []byte("data"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "expired")
}

func TestHandleUpload_NotMultipart(t *testing.T) {
	b := newTestBackend(t)
	req := httptest.NewRequest(http.MethodPost, "/local-upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	b.HandleUpload(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleFile(t *testing.T) {
	b := newTestBackend(t)
	signed := sign(t, b, "1-served.txt", 100)
	rr := post(t, b, signed.Fields, []byte("served body"))
	require.Equal(t, http.StatusNoContent, rr.Code)

	router := chi.NewRouter()
	b.Mount(router)

	req := httptest.NewRequest(http.MethodGet, "/local-files/1-served.txt", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "served body", rr.Body.String())
	assert.Equal(t, `inline; filename=served.txt`, rr.Header().Get("Content-Disposition"))

	req = httptest.NewRequest(http.MethodGet, "/local-files/missing.txt", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleFile_ContentDisposition(t *testing.T) {
	b := newTestBackend(t)
	router := chi.NewRouter()
	b.Mount(router)

	tests := []struct {
		key  string
		want string
	}{
		{"1700000000000-holiday photo.png", `inline; filename="holiday photo.png"`},
		{"nested/1700000000000-a.txt", `inline; filename=a.txt`},
		{"no-timestamp.txt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			signed := sign(t, b, tt.key, 100)
			rr := post(t, b, signed.Fields, []byte("x"))
			require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

			rr = httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/local-files/"+strings.ReplaceAll(tt.key, " ", "%20"), nil))
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Content-Disposition"))
		})
	}
}
