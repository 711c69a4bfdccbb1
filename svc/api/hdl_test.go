package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinderbin/cfg"
	"cinderbin/svc/auth"
	"cinderbin/svc/blob"
	"cinderbin/svc/cache"
	"cinderbin/svc/db"
	"cinderbin/svc/svc"
	"cinderbin/svc/util"
)

func TestMain(m *testing.M) {
	util.InitLog("error", false)
	os.Exit(m.Run())
}

func testCfg(t *testing.T) *cfg.Cfg {
	t.Helper()
	return &cfg.Cfg{
		Port:                "0",
		Environment:         "test",
		LogLevel:            "error",
		ScryptN:             1 << 10,
		ScryptR:             8,
		ScryptP:             1,
		ScryptKeyLen:        32,
		MinPasswordLen:      4,
		MaxPasteSize:        256 * 1024,
		DefaultPasteExpiry:  7 * 24 * time.Hour,
		UploadTTL:           24 * time.Hour,
		UploadMaxFiles:      10,
		UploadMaxTotalBytes: 10 * 1024 * 1024,
		UploadAllowedTypes:  "text",
		LRUCacheSize:        100,
		ContextTimeout:      5 * time.Second,
		CleanupToken:        cfg.NewSecret("sweep-me"),
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	c := testCfg(t)
	store, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	blobs, err := blob.NewLocalStore(t.TempDir(), "/blobs")
	require.NoError(t, err)
	lru, err := cache.NewLRU(c.LRUCacheSize)
	require.NoError(t, err)
	hasher, err := auth.NewHasher(c.ScryptN, c.ScryptR, c.ScryptP, c.ScryptKeyLen)
	require.NoError(t, err)
	pasteSvc := svc.NewPaste(store, blobs, lru, nil, hasher, c)
	reaper := svc.NewReaper(store, blobs, lru, nil, c.ReapBlobDeletesPerSec)
	return NewServer(c, pasteSvc, reaper, store, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func createPaste(t *testing.T, s *Server, body map[string]interface{}) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/pastes", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp CreateResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestCreatePasteEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/pastes", map[string]interface{}{"content": "hello"})
	assert.Equal(t, http.StatusCreated, w.Code)
	var resp CreateResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.ID, 12)
	assert.False(t, resp.ExpiresAt.IsZero())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreatePasteRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/pastes", map[string]interface{}{"content": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/pastes", map[string]interface{}{"content": "x", "bogus_field": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader("content=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetaEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := createPaste(t, s, map[string]interface{}{"content": "hello", "enable_password": true, "password": "abcd"})

	req := httptest.NewRequest(http.MethodGet, "/pastes/"+id, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var meta svc.Meta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.True(t, meta.RequiresPassword)
	assert.False(t, meta.Expired)

	req = httptest.NewRequest(http.MethodGet, "/pastes/missing12345", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBurnOnceFlow(t *testing.T) {
	s := newTestServer(t)
	id := createPaste(t, s, map[string]interface{}{"content": "once", "burn_once": true})

	w := doJSON(t, s, http.MethodPost, "/pastes/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reveal svc.Reveal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reveal))
	assert.Equal(t, "once", reveal.Content)

	w = doJSON(t, s, http.MethodPost, "/pastes/"+id, nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestPasswordEndpoints(t *testing.T) {
	s := newTestServer(t)
	id := createPaste(t, s, map[string]interface{}{"content": "locked", "enable_password": true, "password": "abcd"})

	w := doJSON(t, s, http.MethodPost, "/pastes/"+id, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, s, http.MethodPost, "/pastes/"+id+"/unlock", map[string]interface{}{"password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodPost, "/pastes/"+id+"/unlock", map[string]interface{}{"password": "abcd"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reveal svc.Reveal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reveal))
	assert.Equal(t, "locked", reveal.Content)
}

func TestUnlockWithoutPasswordSet(t *testing.T) {
	s := newTestServer(t)
	id := createPaste(t, s, map[string]interface{}{"content": "open"})
	w := doJSON(t, s, http.MethodPost, "/pastes/"+id+"/unlock", map[string]interface{}{"password": "abcd"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func uploadFiles(t *testing.T, s *Server, names map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range names {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestUploadAndDownload(t *testing.T) {
	s := newTestServer(t)
	w := uploadFiles(t, s, map[string]string{"notes.txt": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Uploads []struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			URL      string `json:"url"`
		} `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Uploads, 1)
	assert.Equal(t, "notes.txt", resp.Uploads[0].Filename)

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+resp.Uploads[0].ID+"/download", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "download=1")
	assert.Contains(t, loc, "filename=notes.txt")
}

func TestUploadRejectsNonText(t *testing.T) {
	s := newTestServer(t)
	w := uploadFiles(t, s, map[string]string{"image.png": "\x89PNG"})
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestDownloadMissing(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/uploads/nope/download", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAttachUploadsToPaste(t *testing.T) {
	s := newTestServer(t)
	w := uploadFiles(t, s, map[string]string{"a.txt": "aaa", "b.txt": "bbb"})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Uploads []struct {
			ID string `json:"id"`
		} `json:"uploads"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Uploads, 2)

	id := createPaste(t, s, map[string]interface{}{
		"content":  "with files",
		"file_ids": []string{resp.Uploads[0].ID, resp.Uploads[1].ID},
	})

	rw := doJSON(t, s, http.MethodPost, "/pastes/"+id, nil)
	require.Equal(t, http.StatusOK, rw.Code)
	var reveal svc.Reveal
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &reveal))
	assert.Len(t, reveal.Files, 2)
}

func TestCleanupEndpointAuth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cleanup", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/cleanup", nil)
	req.Header.Set("Authorization", "Bearer sweep-me")
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report svc.SweepReport
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorShape(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/pastes/missing12345", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
			Msg  string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}
