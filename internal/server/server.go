// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes ingestion, document lookup, memory review and
// prompt-cache control as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/pdiddy/curation-engine/internal/knowledge"
	"github.com/pdiddy/curation-engine/internal/llm"
	"github.com/pdiddy/curation-engine/internal/memory"
	"github.com/pdiddy/curation-engine/internal/metrics"
	"github.com/pdiddy/curation-engine/internal/pipeline"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// Ingester runs one document through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req types.IngestRequest) (*pipeline.Outcome, error)
}

// Documents is the read side of the knowledge store.
type Documents interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListEdges(ctx context.Context, id string) ([]types.RelationshipEdge, error)
	UsageTotals(ctx context.Context) ([]types.UsageTotals, error)
	Ping(ctx context.Context) error
}

// Memories is the review queue.
type Memories interface {
	List(ctx context.Context, status string) ([]types.Memory, error)
	CreateIfNotSimilar(ctx context.Context, c memory.Candidate) (string, bool, error)
	Review(ctx context.Context, id string, decision types.MemoryStatus, reviewerID, notes string) (*types.Memory, error)
	Archive(ctx context.Context, id, reviewerID string) error
}

// Sessions is the prompt-cache control surface. Nil means caching is off.
type Sessions interface {
	Names() []string
	Clear(name string)
	ClearAll()
}

// Deps are the components the routes call.
type Deps struct {
	Pipeline  Ingester
	Documents Documents
	Memories  Memories
	Sessions  Sessions
	Metrics   *metrics.Metrics
}

// Server is the HTTP API.
type Server struct {
	app    *fiber.App
	deps   Deps
	cfg    types.ServerConfig
	logger *slog.Logger
}

// New builds the fiber app and registers every route. accessLog receives one
// line per request; nil means stderr.
func New(deps Deps, cfg types.ServerConfig, logger *slog.Logger, accessLog io.Writer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if accessLog == nil {
		accessLog = os.Stderr
	}

	s := &Server{deps: deps, cfg: cfg, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "curation-engine",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		// model calls for one document can take minutes
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(fiberlogger.New(fiberlogger.Config{Output: accessLog}))

	if deps.Metrics != nil {
		prom := fiberprometheus.NewWithRegistry(deps.Metrics.Registry, "curation-engine", "curation_engine", "http", nil)
		s.app.Use(prom.Middleware)
		s.app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api")
	api.Post("/documents", s.ingest)
	api.Get("/documents/:id", s.getDocument)
	api.Get("/documents/:id/edges", s.getEdges)
	api.Get("/usage", s.usage)

	mem := api.Group("/memories", s.requireAdmin)
	mem.Get("", s.listMemories)
	mem.Post("", s.createMemory)
	mem.Post("/:id/approve", s.reviewMemory(types.MemoryValidated))
	mem.Post("/:id/reject", s.reviewMemory(types.MemoryRejected))
	mem.Post("/:id/archive", s.archiveMemory)

	cache := api.Group("/cache", s.requireAdmin)
	cache.Get("", s.listCache)
	cache.Delete("", s.clearCache)
	cache.Delete("/:name", s.clearCacheEntry)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on cfg.Addr until Shutdown.
func (s *Server) Listen() error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info("http api listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, pipeline.ErrValidation), errors.Is(err, memory.ErrInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, knowledge.ErrNotFound), errors.Is(err, memory.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, memory.ErrAlreadyReviewed), errors.Is(err, memory.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, llm.ErrProviderUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, llm.ErrMalformedResponse):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
