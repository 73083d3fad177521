// Package api is the onboarding fill service: synchronous fills, queued
// fills backed by the worker, and signed downloads of the results.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/OnboardOps/internal/auth"
	"github.com/dharsanguruparan/OnboardOps/internal/config"
	"github.com/dharsanguruparan/OnboardOps/internal/forms"
	"github.com/dharsanguruparan/OnboardOps/internal/queue"
	"github.com/dharsanguruparan/OnboardOps/internal/repository"
	"github.com/dharsanguruparan/OnboardOps/internal/signing"
)

// DocumentStore is the part of repository.DocumentRepository the API uses.
type DocumentStore interface {
	Create(ctx context.Context, doc *repository.Document) error
	Get(ctx context.Context, id string) (*repository.Document, error)
}

// ObjectStore reads rendered PDFs back for download.
type ObjectStore interface {
	GetDocument(ctx context.Context, objectKey string) ([]byte, error)
}

// Deps bundles the collaborators of Server.
type Deps struct {
	Filler *forms.Filler
	Docs   DocumentStore
	Store  ObjectStore
	Queue  queue.Enqueuer
	Signer *signing.Signer
	Tokens *auth.Issuer
	Logger *zap.Logger
}

// Server exposes HTTP endpoints for filling forms and fetching documents.
type Server struct {
	cfg    *config.Config
	deps   Deps
	log    *zap.Logger
	now    func() time.Time
	server *http.Server
	router *gin.Engine
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, deps: deps, log: logger, now: time.Now}
}

// Router builds the gin engine once.
func (s *Server) Router() http.Handler {
	s.once.Do(func() {
		r := gin.New()
		r.Use(gin.Recovery(), s.requestLogger(), s.limitBody())

		r.GET("/healthz", s.handleHealth)
		r.GET("/forms", s.handleForms)
		r.GET("/download", s.handleDownload)

		authed := r.Group("/", s.requireAuth())
		authed.POST("/forms/:form/fill", s.handleFill)
		authed.POST("/documents", s.handleCreateDocument)
		authed.GET("/documents/:id", s.handleDocument)
		authed.GET("/documents/:id/link", s.handleDocumentLink)
		s.router = r
	})
	return s.router
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("fill service listening", zap.String("addr", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type formSummary struct {
	Form      forms.FormType `json:"form"`
	Title     string         `json:"title"`
	Keys      []string       `json:"keys"`
	Signature bool           `json:"signature"`
}

func (s *Server) handleForms(c *gin.Context) {
	reg := s.deps.Filler.Registry()
	out := make([]formSummary, 0, len(reg.Forms()))
	for _, f := range reg.Forms() {
		schema, err := reg.Schema(f)
		if err != nil {
			continue
		}
		out = append(out, formSummary{Form: f, Title: schema.Title, Keys: schema.Keys(), Signature: schema.Sign != nil})
	}
	c.JSON(http.StatusOK, gin.H{"forms": out})
}

type fillBody struct {
	Values    map[string]any `json:"values"`
	Signature string         `json:"signature"`
	SignedAt  *time.Time     `json:"signed_at"`
}

func (b fillBody) request(now time.Time) forms.FillRequest {
	req := forms.FillRequest{Values: b.Values, Signature: b.Signature, SignedAt: now}
	if b.SignedAt != nil {
		req.SignedAt = *b.SignedAt
	}
	return req
}

func (s *Server) handleFill(c *gin.Context) {
	var body fillBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}
	form := forms.FormType(c.Param("form"))
	doc, err := s.deps.Filler.Fill(c.Request.Context(), form, body.request(s.now()))
	if err != nil {
		s.fillError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.Filename()))
	c.Data(http.StatusOK, "application/pdf", doc.Data)
}

func (s *Server) fillError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, forms.ErrUnknownForm):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, forms.ErrInvalidSignature):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.Error("fill failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fill form"})
	}
}

type createDocumentBody struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Form       string `json:"form" binding:"required"`
	fillBody
}

func (s *Server) handleCreateDocument(c *gin.Context) {
	var body createDocumentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
		return
	}
	if _, err := s.deps.Filler.Registry().Schema(forms.FormType(body.Form)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	// Reject a bad signature now rather than in the worker.
	if body.Signature != "" {
		if _, err := forms.DecodeSignature(body.Signature); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	doc := &repository.Document{ID: uuid.NewString(), EmployeeID: body.EmployeeID, FormType: body.Form}
	if err := s.deps.Docs.Create(ctx, doc); err != nil {
		s.log.Error("create document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store metadata"})
		return
	}
	req := body.request(s.now())
	payload := queue.FillPayload{
		DocumentID: doc.ID,
		EmployeeID: doc.EmployeeID,
		Form:       body.Form,
		Values:     req.Values,
		Signature:  req.Signature,
		SignedAt:   req.SignedAt,
	}
	if err := queue.EnqueueFill(ctx, s.deps.Queue, payload); err != nil {
		s.log.Error("enqueue fill", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue job"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": doc.ID, "status": doc.Status})
}

func (s *Server) lookup(c *gin.Context, id string) (*repository.Document, bool) {
	doc, err := s.deps.Docs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		} else {
			s.log.Error("get document", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load document"})
		}
		return nil, false
	}
	return doc, true
}

func (s *Server) handleDocument(c *gin.Context) {
	doc, ok := s.lookup(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDocumentLink(c *gin.Context) {
	doc, ok := s.lookup(c, c.Param("id"))
	if !ok {
		return
	}
	if doc.Status != repository.StatusCompleted || doc.ObjectKey == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "document not ready", "status": doc.Status})
		return
	}
	link := s.deps.Signer.Link(doc.ID, s.now())
	c.JSON(http.StatusOK, gin.H{
		"url":     "/download?" + link.Query().Encode(),
		"expires": strconv.FormatInt(link.Expires.Unix(), 10),
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	id, err := s.deps.Signer.Verify(c.Request.URL.Query(), s.now())
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, signing.ErrMissingParams) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	doc, ok := s.lookup(c, id)
	if !ok {
		return
	}
	if doc.ObjectKey == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document has no file"})
		return
	}
	data, err := s.deps.Store.GetDocument(c.Request.Context(), *doc.ObjectKey)
	if err != nil {
		s.log.Error("download document", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "file unavailable"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.pdf"`, doc.FormType, doc.ID))
	c.Data(http.StatusOK, "application/pdf", data)
}
