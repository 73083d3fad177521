package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/OnboardOps/internal/auth"
	"github.com/dharsanguruparan/OnboardOps/internal/config"
)

// fakeAPI mimics the onboarding REST API under /api.
func fakeAPI(t *testing.T, pdf bool) *httptest.Server {
	t.Helper()
	issuer := auth.NewIssuer([]byte("app-secret"), time.Hour)
	users := map[string]string{"manager@demo.com": "manager", "hr@demo.com": "hr"}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		role, ok := users[body["email"]]
		if !ok || body["password"] != "password123" {
			http.Error(w, `{"detail":"Invalid credentials"}`, http.StatusUnauthorized)
			return
		}
		token, _, err := issuer.Mint("u-"+role, body["email"], role)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": token}})
	})
	mux.HandleFunc("/api/applications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"app-1"}`))
	})
	requireRole := func(role string, next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := issuer.Parse(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if err != nil || claims.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/api/manager/applications", requireRole("manager", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	mux.HandleFunc("/api/hr/dashboard-stats", requireRole("hr", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pending":3}`))
	}))
	mux.HandleFunc("/api/onboarding/forms/direct-deposit/generate-pdf", requireRole("hr", func(w http.ResponseWriter, r *http.Request) {
		if pdf {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4\n%stub\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>error page</html>"))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newState(srv *httptest.Server, opts Options) *State {
	cfg := &config.Config{APIBaseURL: srv.URL, APIPrefix: "/api"}
	return &State{Client: NewClient(cfg.Endpoint, srv.Client()), Options: opts}
}

func TestRunAllPass(t *testing.T) {
	srv := fakeAPI(t, true)
	st := newState(srv, Options{
		Manager: Credentials{Email: "manager@demo.com", Password: "password123"},
		HR:      Credentials{Email: "hr@demo.com", Password: "password123"},
	})
	report := Run(context.Background(), st, DefaultSteps())
	for _, res := range report.Results {
		assert.True(t, res.Passed, "%s: %v", res.Name, res.Err)
	}
	assert.True(t, report.OK())
	assert.Len(t, report.Results, len(StepNames()))
	assert.Equal(t, "hr", st.Tokens["hr"].Claims.Role)

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "PASS: 7 passed, 0 failed, 7 total")
	assert.Contains(t, out.String(), "role=manager")
}

func TestRunContinuesPastFailures(t *testing.T) {
	srv := fakeAPI(t, false)
	st := newState(srv, Options{
		Manager: Credentials{Email: "manager@demo.com", Password: "password123"},
		HR:      Credentials{Email: "hr@demo.com", Password: "wrong"},
	})
	report := Run(context.Background(), st, DefaultSteps())

	byName := map[string]Result{}
	for _, res := range report.Results {
		byName[res.Name] = res
	}
	assert.True(t, byName["health"].Passed)
	assert.True(t, byName["manager-dashboard"].Passed)

	var statusErr *StatusError
	require.True(t, errors.As(byName["login-hr"].Err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
	assert.Contains(t, byName["hr-dashboard"].Err.Error(), "no hr session")
	assert.False(t, byName["generate-pdf"].Passed)

	assert.Equal(t, 3, report.Failed())
	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "FAIL: 4 passed, 3 failed, 7 total")
}

func TestRunDetectsNonPDF(t *testing.T) {
	srv := fakeAPI(t, false)
	st := newState(srv, Options{HR: Credentials{Email: "hr@demo.com", Password: "password123"}})
	steps := DefaultSteps()
	report := Run(context.Background(), st, []Step{steps[2], steps[6]})
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Passed)
	assert.ErrorIs(t, report.Results[1].Err, errNotPDF)
}

func TestRunSkipsAndCancellation(t *testing.T) {
	srv := fakeAPI(t, true)
	st := newState(srv, Options{Skip: []string{"submit-application", "generate-pdf"}})
	report := Run(context.Background(), st, DefaultSteps())
	skipped := 0
	for _, res := range report.Results {
		if res.Skipped {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 4, report.Failed(), "both logins lack credentials and both dashboards need them")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report = Run(ctx, newState(srv, Options{}), DefaultSteps())
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestLoginTokenShapes(t *testing.T) {
	for _, shape := range []string{`{"token":"%s"}`, `{"access_token":"%s"}`} {
		shape := shape
		mux := http.NewServeMux()
		mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Replace(shape, "%s", "opaque-token", 1)))
		})
		srv := httptest.NewServer(mux)
		cfg := &config.Config{APIBaseURL: srv.URL}
		sess, err := NewClient(cfg.Endpoint, srv.Client()).Login(context.Background(), "a@demo.com", "pw")
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, "opaque-token", sess.Token)
		assert.Nil(t, sess.Claims)
	}
}
