package httpapi

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mrussa/meeshosync/internal/accountsync"
	"github.com/mrussa/meeshosync/internal/db"
	"github.com/mrussa/meeshosync/internal/respond"
)

type StatusSource interface {
	Get(userID int64) (accountsync.Report, bool)
	List() []accountsync.Report
	Len() int
}

type RunningSource interface {
	Running() []int64
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncAPI is the operator surface: health, last run per account and metrics.
type SyncAPI struct {
	status  StatusSource
	running RunningSource
	db      Pinger
	metrics http.Handler
	log     *zap.Logger
	version string
}

func New(status StatusSource, running RunningSource, pg Pinger, metrics http.Handler, log *zap.Logger, version string) *SyncAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncAPI{
		status:  status,
		running: running,
		db:      pg,
		metrics: metrics,
		log:     log,
		version: version,
	}
}

type statusList struct {
	Accounts []accountsync.Report `json:"accounts"`
	Running  []int64              `json:"running"`
	Count    int                  `json:"count"`
}

func (a *SyncAPI) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respond.NotFound(w, RequestID(r), "not found")
	})

	if a.metrics != nil {
		mux.Handle("/metrics", a.metrics)
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestID(r)
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			respond.MethodNotAllowed(w, reqID, http.MethodGet, http.MethodHead)
			return
		}

		var dbErr error
		if a.db != nil {
			dbErr = db.Ping(r.Context(), a.db)
		}
		if r.Method == http.MethodHead {
			if dbErr != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		if dbErr != nil {
			a.log.Warn("healthz: database unreachable", zap.String("request_id", reqID), zap.Error(dbErr))
			respond.Unavailable(w, reqID, "database unreachable")
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"accounts":   a.status.Len(),
			"version":    a.version,
			"request_id": reqID,
		})
	})

	mux.HandleFunc("/sync/status", func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestID(r)
		if r.Method != http.MethodGet {
			respond.MethodNotAllowed(w, reqID, http.MethodGet)
			return
		}
		out := statusList{Accounts: a.status.List(), Running: []int64{}}
		if a.running != nil {
			out.Running = append(out.Running, a.running.Running()...)
			slices.Sort(out.Running)
		}
		out.Count = len(out.Accounts)
		respond.JSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("/sync/status/", func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestID(r)
		if r.Method != http.MethodGet {
			respond.MethodNotAllowed(w, reqID, http.MethodGet)
			return
		}

		raw := strings.TrimPrefix(r.URL.Path, "/sync/status/")
		if i := strings.IndexByte(raw, '/'); i >= 0 {
			raw = raw[:i]
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respond.BadRequest(w, reqID, "bad user_id")
			return
		}

		rep, ok := a.status.Get(id)
		if !ok {
			respond.NotFound(w, reqID, "no sync recorded for account")
			return
		}
		respond.JSON(w, http.StatusOK, rep)
	})

	return WithRequestID(WithAccessLog(a.log, mux))
}
