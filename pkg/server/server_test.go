package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWebHandler(t *testing.T) {
	dir := fstest.MapFS{
		"index.html":    {Data: []byte("<html>fluxboard</html>")},
		"assets/app.js": {Data: []byte("console.log('app')")},
	}
	srv := &Server{}
	handler := srv.webHandler(dir, http.FileServer(http.FS(dir)))

	t.Run("Serves Existing File", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/assets/app.js", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "console.log('app')", w.Body.String())
	})

	t.Run("Serves Index On Root", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "fluxboard")
	})

	t.Run("Falls Back To Index For Unknown Paths", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/days/2025-06-15", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "fluxboard")
	})

	t.Run("Well-Known Is Not Part Of The SPA", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/.well-known/acme-challenge/token", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("No Cache Header By Default", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/assets/app.js", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Empty(t, w.Header().Get("Cache-Control"))
	})

	t.Run("Cache Header When Configured", func(t *testing.T) {
		srv.webCacheDuration = time.Hour
		defer func() { srv.webCacheDuration = 0 }()

		req := httptest.NewRequest("GET", "/assets/app.js", nil)
		w := httptest.NewRecorder()

		handler(w, req)

		assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
	})
}

func TestSetupHandler(t *testing.T) {
	srv := &Server{serverName: "fluxboard"}
	handler := srv.setupHandler()

	t.Run("Healthz", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("Server And Security Headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "fluxboard", w.Header().Get("Server"))
		assert.Equal(t, "max-age=63072000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	})

	t.Run("API Requires Auth", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/day?siteID=site1", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "missing auth cookie")
	})

	t.Run("Metrics Outside Auth", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("No Frontend Mounted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDevProxy(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("vite dev server"))
	}))
	defer backend.Close()

	srv := &Server{devProxy: backend.URL, serverName: "fluxboard"}
	handler := srv.setupHandler()

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vite dev server", w.Body.String())
}
