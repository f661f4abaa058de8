package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func pass(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return nil }}
}

func failing(name, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return errors.New(msg) }}
}

func serve(t *testing.T, h *Handler, path string) (int, Report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(failing("transcript", "no transcript loaded"))
	h.Version = "v1.2.0"

	code, rep := serve(t, h, "/healthz")
	if code != http.StatusOK || rep.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok even with failing checks", code, rep.Status)
	}
	if rep.Version != "v1.2.0" {
		t.Errorf("version = %q", rep.Version)
	}
	if rep.Uptime == "" {
		t.Error("uptime missing")
	}
	if len(rep.Checks) != 0 {
		t.Errorf("healthz ran checks: %v", rep.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks []CheckResult
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{pass("transcript"), pass("llm")},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: []CheckResult{{Name: "transcript", OK: true}, {Name: "llm", OK: true}},
		},
		{
			name:       "llm missing",
			checkers:   []Checker{pass("transcript"), failing("llm", "no llm provider configured")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: []CheckResult{
				{Name: "transcript", OK: true},
				{Name: "llm", Detail: "no llm provider configured"},
			},
		},
		{
			name:       "everything down",
			checkers:   []Checker{failing("transcript", "no transcript loaded"), failing("breaker:llm", "open")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: []CheckResult{
				{Name: "transcript", Detail: "no transcript loaded"},
				{Name: "breaker:llm", Detail: "open"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, rep := serve(t, New(tc.checkers...), "/readyz")
			if code != tc.wantCode || rep.Status != tc.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, rep.Status, tc.wantCode, tc.wantStatus)
			}
			if len(rep.Checks) != len(tc.wantChecks) {
				t.Fatalf("checks = %+v, want %+v", rep.Checks, tc.wantChecks)
			}
			for i := range tc.wantChecks {
				if rep.Checks[i] != tc.wantChecks[i] {
					t.Errorf("checks[%d] = %+v, want %+v", i, rep.Checks[i], tc.wantChecks[i])
				}
			}
		})
	}
}

func TestCheck_RunsConcurrently(t *testing.T) {
	t.Parallel()

	// Each checker waits for the other, so a sequential run would time out.
	a, b := make(chan struct{}), make(chan struct{})
	meet := func(mine, theirs chan struct{}) func(context.Context) error {
		return func(ctx context.Context) error {
			close(mine)
			select {
			case <-theirs:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	h := New(Checker{Name: "a", Check: meet(a, b)}, Checker{Name: "b", Check: meet(b, a)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if rep := h.Check(ctx); rep.Status != "ok" {
		t.Errorf("Check = %+v, want ok", rep)
	}
}

func TestCheck_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := h.Check(ctx)
	if rep.Status != "fail" || rep.Checks[0].Detail != context.Canceled.Error() {
		t.Errorf("Check = %+v, want slow failed with %v", rep, context.Canceled)
	}
}
