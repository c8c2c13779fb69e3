package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

type pingRepo struct {
	store.Repository
	err error
}

func (p pingRepo) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
		wantDB   string
	}{
		{"healthy", nil, http.StatusOK, "ok"},
		{"database down", errors.New("disk gone"), http.StatusServiceUnavailable, "unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := engagement.NewManager(engagement.MonitorConfig{}, nil)
			sessions.Create("obs")
			h := NewHealthHandler(pingRepo{err: tt.pingErr}, sessions)
			r := chi.NewRouter()
			h.RegisterHealth(r)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var got struct {
				Checks       map[string]string `json:"checks"`
				LiveSessions int               `json:"live_sessions"`
			}
			decode(t, w, &got)
			if got.Checks["database"] != tt.wantDB || got.LiveSessions != 1 {
				t.Fatalf("body = %+v", got)
			}
		})
	}
}
