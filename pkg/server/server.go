package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxboard/fluxboard/pkg/engine"
	"github.com/fluxboard/fluxboard/pkg/log"
	"github.com/fluxboard/fluxboard/pkg/storage"
	"github.com/fluxboard/fluxboard/pkg/types"
)

const authTokenCookie = "auth_token"

type contextKey string

const (
	siteIDContextKey         contextKey = "siteID"
	allUserSitesContextKey   contextKey = "allUserSites"
	userContextKey           contextKey = "user"
	userToRegisterContextKey contextKey = "userToRegister"
)

// tokenVerifier validates a Google or Apple ID Token and returns the email
// claim, subject, and expiry.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, string, time.Time, error)

// oidcTokenVerifier adapts an oidc verifier into a tokenVerifier by pulling
// out the claims we care about.
func oidcTokenVerifier(verify func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)) tokenVerifier {
	return func(ctx context.Context, rawIDToken string) (string, string, time.Time, error) {
		idToken, err := verify(ctx, rawIDToken)
		if err != nil {
			return "", "", time.Time{}, err
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return "", "", time.Time{}, err
		}
		return claims.Email, idToken.Subject, idToken.Expiry, nil
	}
}

// Server handles the HTTP API for the FluxBoard dashboard. It serves the
// computed daily views, accepts telemetry ingests, and manages per-site
// settings.
type Server struct {
	storage storage.Database
	engine  *engine.Engine

	listenAddr string
	devProxy   string
	staticDir  string
	httpServer *http.Server

	ingestSpecificEmail string
	adminEmails         []string
	oidcAudiences       map[string]string
	oidcVerifiers       map[string]tokenVerifier
	bypassAuth          bool
	singleSite          bool
	serverName          string
	webCacheDuration    time.Duration
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(db storage.Database, eng *engine.Engine) *Server {
	srv := &Server{
		storage:    db,
		engine:     eng,
		serverName: "fluxboard",
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	staticDir := lflag.String("static-dir", "", "Directory with the built web frontend. Empty disables static serving.")
	ingestSpecificEmail := lflag.String("ingest-specific-email", "", "email to validate for PUT /api/day")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to update settings")
	oidcAudience := lflag.String("oidc-audience", "", "token to use for id tokens audience to validate")
	oidcAudiences := map[string]string{}
	lflag.JSON(&oidcAudiences, "oidc-audiences", oidcAudiences, "JSON map of provider (google/apple) to audience/client ID")
	ingestSpecificAudience := lflag.String("ingest-specific-audience", "", "Google-specific audience to validate for PUT /api/day")
	singleSite := lflag.Bool("single-site", false, "Enable single-site mode (disables siteID requirement)")
	bypassAuth := lflag.Bool("bypass-auth", false, "Skip authentication entirely (development only)")
	webCacheDuration := lflag.Duration("web-cache-duration", 0, "Duration to cache web files (e.g. 1h, 5m). 0 means no cache.")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		srv.staticDir = *staticDir
		srv.ingestSpecificEmail = *ingestSpecificEmail
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		var googleProvider *oidc.Provider
		if len(oidcAudiences) > 0 {
			srv.oidcAudiences = make(map[string]string, len(oidcAudiences))
			srv.oidcVerifiers = make(map[string]tokenVerifier, len(oidcAudiences))
			for n, a := range oidcAudiences {
				switch n {
				case "google":
					provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
					if err != nil {
						log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
						os.Exit(1)
					}
					googleProvider = provider
					srv.oidcVerifiers[n] = oidcTokenVerifier(provider.Verifier(&oidc.Config{ClientID: a}).Verify)
					srv.oidcAudiences[n] = a
				case "apple":
					provider, err := oidc.NewProvider(context.Background(), "https://appleid.apple.com")
					if err != nil {
						log.Ctx(context.Background()).Error("failed to initialize Apple OIDC provider", slog.Any("error", err))
						os.Exit(1)
					}
					srv.oidcVerifiers[n] = oidcTokenVerifier(provider.Verifier(&oidc.Config{ClientID: a}).Verify)
					srv.oidcAudiences[n] = a
				default:
					log.Ctx(context.Background()).Error("unsupported oidc audience client", slog.String("client", n))
					os.Exit(1)
				}
			}
		} else if *oidcAudience != "" {
			var err error
			googleProvider, err = oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifiers = map[string]tokenVerifier{
				"google": oidcTokenVerifier(googleProvider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify),
			}
			srv.oidcAudiences = map[string]string{
				"google": *oidcAudience,
			}
		}
		if *ingestSpecificAudience != "" {
			if srv.oidcVerifiers == nil {
				srv.oidcVerifiers = map[string]tokenVerifier{}
			}
			if googleProvider == nil {
				var err error
				googleProvider, err = oidc.NewProvider(context.Background(), "https://accounts.google.com")
				if err != nil {
					log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
					os.Exit(1)
				}
			}
			srv.oidcVerifiers["google_ingest_specific"] = oidcTokenVerifier(googleProvider.Verifier(&oidc.Config{ClientID: *ingestSpecificAudience}).Verify)
		}
		srv.singleSite = *singleSite
		srv.webCacheDuration = *webCacheDuration

		srv.bypassAuth = *bypassAuth
		if srv.devProxy != "" && len(srv.oidcAudiences) == 0 && len(srv.adminEmails) == 0 {
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/day", s.handleGetDay)
	apiMux.HandleFunc("PUT /api/day", s.handleIngestDay)
	apiMux.HandleFunc("GET /api/days", s.handleListDays)
	apiMux.HandleFunc("GET /api/day/report", s.handleDayReport)
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	apiMux.HandleFunc("GET /api/auth/status", s.handleAuthStatus)
	apiMux.HandleFunc("POST /api/auth/login", s.handleLogin)
	apiMux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	// serve the web frontend, either from the static dir or from the dev server
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	} else if s.staticDir != "" {
		dir := os.DirFS(s.staticDir)
		fileServer := http.FileServer(http.FS(dir))
		mux.Handle("/", s.webHandler(dir, fileServer))
	}
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

func (s *Server) getSiteID(r *http.Request) string {
	if siteID, ok := r.Context().Value(siteIDContextKey).(string); ok {
		return siteID
	}
	// we want to have a stack trace when this happens
	panic("no siteID in context")
}

func (s *Server) getAllUserSites(r *http.Request) []string {
	if sites, ok := r.Context().Value(allUserSitesContextKey).([]string); ok {
		return sites
	}
	return nil
}

func (s *Server) getUser(r *http.Request) types.User {
	if user, ok := r.Context().Value(userContextKey).(types.User); ok {
		return user
	}
	return types.User{}
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) webHandler(dir fs.FS, h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Default to serving index.html for unknown paths (SPA)
		if r.URL.Path != "/" {
			// Check if the file exists in the filesystem
			f, err := dir.Open(strings.TrimPrefix(r.URL.Path, "/"))
			if err == nil {
				f.Close()
			} else if errors.Is(err, fs.ErrNotExist) {
				// Don't fallback to index.html for .well-known
				if strings.HasPrefix(r.URL.Path, "/.well-known/") {
					// we don't write JSON here because we don't know what file type is expected
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				// If file doesn't exist, serve index.html
				r.URL.Path = "/"
			} else {
				log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to open file", "error", err)
				// we don't write JSON here because we don't know what file type is expected
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		// cache SPA files if duration is set
		if s.webCacheDuration > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.webCacheDuration.Seconds())))
		}

		h.ServeHTTP(w, r)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
