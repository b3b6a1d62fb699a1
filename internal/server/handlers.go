// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pdiddy/curation-engine/internal/memory"
	"github.com/pdiddy/curation-engine/internal/pipeline"
	"github.com/pdiddy/curation-engine/pkg/types"
)

// ReviewerHeader identifies the person behind a review action.
const ReviewerHeader = "X-Reviewer-ID"

// requireAdmin checks the bearer token. An empty admin token disables the
// guarded routes.
func (s *Server) requireAdmin(c *fiber.Ctx) error {
	if s.cfg.AdminToken == "" {
		return fiber.NewError(fiber.StatusForbidden, "admin routes are disabled")
	}
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid admin token")
	}
	return c.Next()
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.deps.Documents.Ping(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) ingest(c *fiber.Ctx) error {
	var req types.IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: parsing body: %v", pipeline.ErrValidation, err)
	}
	out, err := s.deps.Pipeline.Ingest(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) getDocument(c *fiber.Ctx) error {
	doc, err := s.deps.Documents.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) getEdges(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := s.deps.Documents.GetDocument(c.UserContext(), id); err != nil {
		return err
	}
	edges, err := s.deps.Documents.ListEdges(c.UserContext(), id)
	if err != nil {
		return err
	}
	if edges == nil {
		edges = []types.RelationshipEdge{}
	}
	return c.JSON(edges)
}

func (s *Server) usage(c *fiber.Ctx) error {
	totals, err := s.deps.Documents.UsageTotals(c.UserContext())
	if err != nil {
		return err
	}
	if totals == nil {
		totals = []types.UsageTotals{}
	}
	return c.JSON(totals)
}

func (s *Server) listMemories(c *fiber.Ctx) error {
	mems, err := s.deps.Memories.List(c.UserContext(), c.Query("status", string(types.MemoryPending)))
	if err != nil {
		return err
	}
	if mems == nil {
		mems = []types.Memory{}
	}
	return c.JSON(mems)
}

func (s *Server) createMemory(c *fiber.Ctx) error {
	var cand memory.Candidate
	if err := c.BodyParser(&cand); err != nil {
		return fmt.Errorf("%w: parsing body: %v", memory.ErrInvalid, err)
	}
	id, created, err := s.deps.Memories.CreateIfNotSimilar(c.UserContext(), cand)
	if err != nil {
		return err
	}
	if !created {
		return c.JSON(fiber.Map{"created": false})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "created": true})
}

type reviewBody struct {
	Notes string `json:"notes"`
}

func (s *Server) reviewMemory(decision types.MemoryStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body reviewBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fmt.Errorf("%w: parsing body: %v", memory.ErrInvalid, err)
			}
		}
		m, err := s.deps.Memories.Review(c.UserContext(), c.Params("id"), decision, c.Get(ReviewerHeader), body.Notes)
		if err != nil {
			return err
		}
		return c.JSON(m)
	}
}

func (s *Server) archiveMemory(c *fiber.Ctx) error {
	if err := s.deps.Memories.Archive(c.UserContext(), c.Params("id"), c.Get(ReviewerHeader)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) listCache(c *fiber.Ctx) error {
	if s.deps.Sessions == nil {
		return c.JSON(fiber.Map{"enabled": false, "sessions": []string{}})
	}
	names := s.deps.Sessions.Names()
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"enabled": true, "sessions": names})
}

func (s *Server) clearCache(c *fiber.Ctx) error {
	if s.deps.Sessions != nil {
		s.deps.Sessions.ClearAll()
		s.logger.Info("prompt cache cleared")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) clearCacheEntry(c *fiber.Ctx) error {
	if s.deps.Sessions != nil {
		s.deps.Sessions.Clear(c.Params("name"))
		s.logger.Info("prompt cache entry cleared", "session", c.Params("name"))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
