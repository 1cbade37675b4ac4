package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/community-events/internal/metrics"
)

type RouterConfig struct {
	Events     *EventHandler
	Users      *UserHandler
	Sync       *SyncHandler
	External   *ExternalHandler
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, route string, fn http.HandlerFunc) {
		mux.Handle(pattern, cfg.Metrics.WrapHandler(route, fn))
	}

	if cfg.Events != nil {
		handle("/api/events", "events", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Events.List(w, r)
			case http.MethodPost:
				cfg.Events.Create(w, r)
			case http.MethodPut:
				cfg.Events.Replace(w, r)
			case http.MethodDelete:
				cfg.Events.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
			}
		})
		handle("/api/events/", "event", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/events/"), "/")
			id, sub, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			ctx := ContextWithEventID(r.Context(), id)
			r = r.WithContext(ctx)
			switch sub {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Events.Get(w, r)
				case http.MethodDelete:
					cfg.Events.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodDelete)
				}
			case "votes":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Events.Vote(w, r)
			default:
				http.NotFound(w, r)
			}
		})
		handle("/api/users/", "user_stats", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
			name, sub, _ := strings.Cut(rest, "/")
			if name == "" || sub != "stats" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Events.Stats(w, r, name)
		})
	}

	if cfg.Users != nil {
		handle("/api/users", "users", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Users.List(w, r)
			case http.MethodPost:
				cfg.Users.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
	}

	if cfg.Sync != nil {
		run := RequireSecret(cfg.Sync.service, cfg.Logger)(http.HandlerFunc(cfg.Sync.Run))
		handle("/api/sync", "sync", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Sync.Status(w, r)
			case http.MethodPost:
				run.ServeHTTP(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
	}

	if cfg.External != nil {
		handle("/api/external-events", "external_events", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.External.List(w, r)
		})
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
