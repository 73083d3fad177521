package smoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Credentials is one login.
type Credentials struct {
	Email    string
	Password string
}

// Options configures a smoke run.
type Options struct {
	Manager Credentials
	HR      Credentials
	// PDFForm is the onboarding form rendered by the PDF generation step.
	PDFForm string
	Skip    []string
}

// State is shared between the steps of one run.
type State struct {
	Client  *Client
	Options Options
	Tokens  map[string]*Session
	Logger  *zap.Logger
}

func (s *State) token(role string) (string, error) {
	sess, ok := s.Tokens[role]
	if !ok {
		return "", fmt.Errorf("no %s session (login step failed or was skipped)", role)
	}
	return sess.Token, nil
}

// Step is one named check.
type Step struct {
	Name string
	Run  func(ctx context.Context, st *State) (string, error)
}

// Result is the outcome of one step.
type Result struct {
	Name    string
	Passed  bool
	Skipped bool
	Detail  string
	Err     error
	Elapsed time.Duration
}

// Report summarizes a run.
type Report struct {
	Results []Result
	Elapsed time.Duration
}

// Failed counts failing steps.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed && !res.Skipped {
			n++
		}
	}
	return n
}

// OK reports whether every step that ran passed.
func (r *Report) OK() bool { return r.Failed() == 0 }

// Print writes one line per step and a summary.
func (r *Report) Print(w io.Writer) {
	passed := 0
	for _, res := range r.Results {
		switch {
		case res.Skipped:
			fmt.Fprintf(w, "- %-20s skipped\n", res.Name)
		case res.Passed:
			passed++
			fmt.Fprintf(w, "✓ %-20s %8s  %s\n", res.Name, res.Elapsed.Round(time.Millisecond), res.Detail)
		default:
			fmt.Fprintf(w, "✗ %-20s %8s  %v\n", res.Name, res.Elapsed.Round(time.Millisecond), res.Err)
		}
	}
	status := "PASS"
	if !r.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s: %d passed, %d failed, %d total (%s)\n", status, passed, r.Failed(), len(r.Results), r.Elapsed.Round(time.Millisecond))
}

// Run executes steps in order. A failing step never stops the run; only a
// cancelled context does, and the remaining steps are then reported as
// failed with the context error.
func Run(ctx context.Context, st *State, steps []Step) *Report {
	if st.Tokens == nil {
		st.Tokens = map[string]*Session{}
	}
	if st.Logger == nil {
		st.Logger = zap.NewNop()
	}
	skip := map[string]bool{}
	for _, name := range st.Options.Skip {
		skip[strings.TrimSpace(name)] = true
	}
	report := &Report{}
	start := time.Now()
	for _, step := range steps {
		if skip[step.Name] {
			report.Results = append(report.Results, Result{Name: step.Name, Skipped: true})
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{Name: step.Name, Err: err})
			continue
		}
		stepStart := time.Now()
		detail, err := step.Run(ctx, st)
		res := Result{Name: step.Name, Passed: err == nil, Detail: detail, Err: err, Elapsed: time.Since(stepStart)}
		if err != nil {
			st.Logger.Debug("smoke step failed", zap.String("step", step.Name), zap.Error(err))
		}
		report.Results = append(report.Results, res)
	}
	report.Elapsed = time.Since(start)
	return report
}

// DefaultSteps returns the standard onboarding smoke sequence.
func DefaultSteps() []Step {
	return []Step{
		{Name: "health", Run: checkHealth},
		{Name: "login-manager", Run: login("manager", func(o Options) Credentials { return o.Manager })},
		{Name: "login-hr", Run: login("hr", func(o Options) Credentials { return o.HR })},
		{Name: "submit-application", Run: submitApplication},
		{Name: "manager-dashboard", Run: dashboard("manager", "manager/applications")},
		{Name: "hr-dashboard", Run: dashboard("hr", "hr/dashboard-stats")},
		{Name: "generate-pdf", Run: generatePDF},
	}
}

// StepNames lists the names of DefaultSteps.
func StepNames() []string {
	var names []string
	for _, s := range DefaultSteps() {
		names = append(names, s.Name)
	}
	return names
}

func checkHealth(ctx context.Context, st *State) (string, error) {
	data, _, err := st.Client.Do(ctx, http.MethodGet, "healthz", "", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func login(role string, creds func(Options) Credentials) func(context.Context, *State) (string, error) {
	return func(ctx context.Context, st *State) (string, error) {
		c := creds(st.Options)
		if c.Email == "" || c.Password == "" {
			return "", fmt.Errorf("no %s credentials configured", role)
		}
		sess, err := st.Client.Login(ctx, c.Email, c.Password)
		if err != nil {
			return "", err
		}
		st.Tokens[role] = sess
		if sess.Claims == nil {
			return "token received", nil
		}
		detail := fmt.Sprintf("role=%s", sess.Claims.Role)
		if sess.Claims.ExpiresAt != nil {
			detail += fmt.Sprintf(" expires=%s", sess.Claims.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return detail, nil
	}
}

func submitApplication(ctx context.Context, st *State) (string, error) {
	stamp := time.Now().UTC().Format("20060102150405")
	body := map[string]any{
		"first_name":           "Smoke",
		"last_name":            "Test " + stamp,
		"email":                fmt.Sprintf("smoke+%s@example.com", stamp),
		"phone":                "555-0100",
		"position":             "Front Desk Agent",
		"department":           "Front Office",
		"employment_type":      "full_time",
		"desired_start_date":   time.Now().AddDate(0, 0, 14).Format("2006-01-02"),
		"work_authorized":      true,
		"sponsorship_required": false,
	}
	data, _, err := st.Client.Do(ctx, http.MethodPost, "applications", "", body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d byte response", len(data)), nil
}

func dashboard(role, path string) func(context.Context, *State) (string, error) {
	return func(ctx context.Context, st *State) (string, error) {
		token, err := st.token(role)
		if err != nil {
			return "", err
		}
		data, _, err := st.Client.Do(ctx, http.MethodGet, path, token, nil)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d byte response", len(data)), nil
	}
}

var errNotPDF = errors.New("response is not a PDF")

func generatePDF(ctx context.Context, st *State) (string, error) {
	token, err := st.token("hr")
	if err != nil {
		return "", err
	}
	form := st.Options.PDFForm
	if form == "" {
		form = "direct-deposit"
	}
	body := map[string]any{
		"employee_name":        "Smoke Test",
		"bank1_name":           "Example Bank",
		"bank1_routing_number": "021000021",
		"bank1_checking":       true,
	}
	data, header, err := st.Client.Do(ctx, http.MethodPost, "onboarding/forms/"+form+"/generate-pdf", token, body)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return "", fmt.Errorf("%w (content-type %q)", errNotPDF, header.Get("Content-Type"))
	}
	return fmt.Sprintf("%d byte PDF", len(data)), nil
}
