package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/OnboardOps/internal/auth"
	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	"github.com/dharsanguruparan/OnboardOps/internal/queue"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
	"github.com/dharsanguruparan/OnboardOps/internal/signing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memDocs struct {
	mu   sync.Mutex
	docs map[string]*repository.Document
}

func (m *memDocs) Create(_ context.Context, doc *repository.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.Status = repository.StatusQueued
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memDocs) Get(_ context.Context, id string) (*repository.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, repository.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

type memObjects map[string][]byte

func (m memObjects) GetDocument(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("get document: no such key %s", key)
	}
	return data, nil
}

type recordingQueue struct {
	tasks []*asynq.Task
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type testEnv struct {
	server  *Server
	handler http.Handler
	docs    *memDocs
	objects memObjects
	queue   *recordingQueue
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSchemas(t, forms.DefaultSchemas())
}

func newTestEnvWithSchemas(t *testing.T, schemas []forms.Schema) *testEnv {
	t.Helper()
	reg, err := forms.LoadRegistry(forms.EmbeddedTemplates(), schemas)
	require.NoError(t, err)

	issuer := auth.NewIssuer([]byte("jwt-secret"), time.Hour)
	token, _, err := issuer.Mint("u-1", "hr@demo.com", "hr")
	require.NoError(t, err)

	env := &testEnv{
		docs:    &memDocs{docs: map[string]*repository.Document{}},
		objects: memObjects{},
		queue:   &recordingQueue{},
		token:   token,
	}
	env.server = New(&config.Config{MaxBodyBytes: 1 << 20}, Deps{
		Filler: forms.NewFiller(reg, nil),
		Docs:   env.docs,
		Store:  env.objects,
		Queue:  env.queue,
		Signer: signing.NewSigner([]byte("link-secret"), 5*time.Minute),
		Tokens: issuer,
	})
	env.handler = env.server.Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndForms(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/forms", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Forms []formSummary `json:"forms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Forms, 5)
	assert.Equal(t, forms.FormDirectDeposit, body.Forms[0].Form)
	assert.Contains(t, body.Forms[0].Keys, "bank1_routing_number")
}

func TestFillEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/forms/direct_deposit/fill", map[string]any{
		"values": map[string]any{
			"employee_name":        "John Smith",
			"bank1_checking":       true,
			"bank1_routing_number": "021000021",
		},
		"signed_at": "2024-03-05T10:00:00Z",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "direct_deposit-")

	values, err := forms.ReadValues(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "John Smith", values["employee_name"])
	assert.Equal(t, "Yes", values["bank1_checking"])
	assert.Equal(t, "021000021", values["bank1_routing_number"])
	assert.Equal(t, "03/05/2024", values["signature_date"])
}

func TestFillEndpointErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/forms/direct_deposit/fill", map[string]any{"values": map[string]any{}}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/forms/w2/fill", map[string]any{"values": map[string]any{}}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/forms/i9/fill", map[string]any{"signature": "bm90IGFuIGltYWdl"}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/forms/i9/fill", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+env.token)
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestCreateDocumentEnqueuesFill(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/documents", map[string]any{
		"employee_id": "emp-9",
		"form":        "w4",
		"values":      map[string]any{"first_name": "John"},
	}, true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	require.Contains(t, env.docs.docs, body["id"])

	require.Len(t, env.queue.tasks, 1)
	assert.Equal(t, queue.FillDocumentTask, env.queue.tasks[0].Type())
	var payload queue.FillPayload
	require.NoError(t, json.Unmarshal(env.queue.tasks[0].Payload(), &payload))
	assert.Equal(t, body["id"], payload.DocumentID)
	assert.Equal(t, "emp-9", payload.EmployeeID)
	assert.Equal(t, "John", payload.Values["first_name"])
	assert.False(t, payload.SignedAt.IsZero())

	rec = env.do(t, http.MethodPost, "/documents", map[string]any{"employee_id": "emp-9", "form": "w2"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPost, "/documents", map[string]any{"form": "w4"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPost, "/documents", map[string]any{"employee_id": "emp-9", "form": "w4", "signature": "%%%"}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, env.queue.tasks, 1)
}

func TestDocumentLinkAndDownload(t *testing.T) {
	env := newTestEnv(t)
	key := "documents/emp-9/doc-1-w4.pdf"
	env.docs.docs["doc-1"] = &repository.Document{ID: "doc-1", EmployeeID: "emp-9", FormType: "w4", Status: repository.StatusCompleted, ObjectKey: &key}
	env.docs.docs["doc-2"] = &repository.Document{ID: "doc-2", EmployeeID: "emp-9", FormType: "i9", Status: repository.StatusProcessing}
	env.objects[key] = []byte("%PDF-1.7 stub")

	rec := env.do(t, http.MethodGet, "/documents/doc-1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"formType":"w4"`)

	rec = env.do(t, http.MethodGet, "/documents/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/documents/doc-2/link", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/documents/doc-1/link", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var link map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))

	rec = env.do(t, http.MethodGet, link["url"], nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7 stub", rec.Body.String())

	u, err := url.Parse(link["url"])
	require.NoError(t, err)
	q := u.Query()
	q.Set("document", "doc-2")
	rec = env.do(t, http.MethodGet, "/download?"+q.Encode(), nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/download", nil, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.server.now = func() time.Time { return time.Now().Add(time.Hour) }
	rec = env.do(t, http.MethodGet, link["url"], nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFillEndpointAcceptsSignature(t *testing.T) {
	env := newTestEnv(t)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 80, 20))))

	rec := env.do(t, http.MethodPost, "/forms/weapons_policy/fill", map[string]any{
		"values":    map[string]any{"employee_name": "John Smith", "employee_id": 1042},
		"signature": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestSignatureCheckedWithoutSignatureBox(t *testing.T) {
	schemas := forms.DefaultSchemas()
	for i := range schemas {
		schemas[i].Sign = nil
	}
	env := newTestEnvWithSchemas(t, schemas)

	rec := env.do(t, http.MethodPost, "/forms/direct_deposit/fill", map[string]any{
		"values":    map[string]any{"employee_name": "John Smith"},
		"signature": "bm90IGFuIGltYWdl",
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/documents", map[string]any{
		"employee_id": "emp-9",
		"form":        "w4",
		"signature":   "bm90IGFuIGltYWdl",
	}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Empty(t, env.queue.tasks)
	assert.Empty(t, env.docs.docs)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 80, 20))))
	rec = env.do(t, http.MethodPost, "/forms/direct_deposit/fill", map[string]any{
		"values":    map[string]any{"employee_name": "John Smith"},
		"signature": base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
