// Package api exposes scoring, explanation and stored-indicator lookup over
// HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/llm"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/store"
	"github.com/ppiankov/iocscore/internal/worker"
)

// maxImportBody caps POST /api/import payloads
const maxImportBody = 16 << 20

// Options wires a Server. Engine is required; Store enables the indicator
// routes and Importer the bulk import route.
type Options struct {
	Engine   *engine.Engine
	Store    store.Store
	Importer *worker.Importer
	Narrator *llm.Narrator
	Logger   zerolog.Logger
	Version  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API
type Server struct {
	app      *fiber.App
	engine   *engine.Engine
	store    store.Store
	importer *worker.Importer
	narrator *llm.Narrator
	log      zerolog.Logger
	version  string
}

// ScoreResponse is the body of POST /api/score and GET /api/ioc/*
type ScoreResponse struct {
	engine.Assessment
	Status    model.Status     `json:"status"`
	Partial   bool             `json:"partial"`
	Narrative *model.Narrative `json:"narrative,omitempty"`
}

// ExplainResponse is the body of the explain routes
type ExplainResponse struct {
	Explanation model.Explanation `json:"explanation"`
	Score       model.ScoreRecord `json:"score"`
	Status      model.Status      `json:"status"`
	Partial     bool              `json:"partial"`
	Narrative   *model.Narrative  `json:"narrative,omitempty"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewServer builds the fiber app and registers all routes
func NewServer(opts Options) *Server {
	s := &Server{
		engine:   opts.Engine,
		store:    opts.Store,
		importer: opts.Importer,
		narrator: opts.Narrator,
		log:      opts.Logger.With().Str("component", "api").Logger(),
		version:  opts.Version,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "iocscore",
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		BodyLimit:             maxImportBody,
		DisableStartupMessage: true,
		UnescapePath:          true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)

	s.setupRoutes()
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("listen", addr).Msg("api listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api")
	api.Post("/score", s.handleScore)
	api.Post("/explain", s.handleExplain)
	// values may contain slashes, so they are matched by wildcard or ?value=
	api.Get("/ioc", s.handleIndicator)
	api.Get("/ioc/*", s.handleIndicator)
	api.Get("/explain", s.handleStoredExplain)
	api.Get("/explain/*", s.handleStoredExplain)
	api.Post("/import", s.handleImport)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	return err
}

// handleError maps domain errors to status codes
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := "internal"

	var (
		invalid  *model.InvalidIndicatorError
		mismatch *model.FeatureSchemaMismatchError
		fe       *fiber.Error
	)
	switch {
	case errors.As(err, &invalid):
		code, kind = fiber.StatusBadRequest, "invalid_indicator"
	case errors.Is(err, model.ErrNotFound):
		code, kind = fiber.StatusNotFound, "not_found"
	case errors.As(err, &mismatch):
		kind = "feature_schema_mismatch"
	case errors.As(err, &fe):
		code, kind = fe.Code, "request"
	}

	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error(), Code: kind})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":          "ok",
		"version":         s.version,
		"model_available": s.engine.ModelAvailable(),
		"model_version":   s.engine.ModelVersion(),
		"rules_version":   s.engine.Rules().Label(),
		"store":           s.store != nil,
		"narrator":        s.narrator.ProviderName(),
	})
}

func (s *Server) handleScore(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		return err
	}

	a, err := s.engine.ScoreIndicator(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(s.scoreResponse(c, a))
}

func (s *Server) handleExplain(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		return err
	}

	a, err := s.engine.ScoreIndicator(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(s.explainResponse(c, a))
}

// handleIndicator rescores a stored indicator with its provenance and
// enrichment and persists the new score
func (s *Server) handleIndicator(c *fiber.Ctx) error {
	assessments, err := s.assessStored(c)
	if err != nil {
		return err
	}

	out := make([]ScoreResponse, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, s.scoreResponse(c, a))
	}
	return c.JSON(out)
}

func (s *Server) handleStoredExplain(c *fiber.Ctx) error {
	assessments, err := s.assessStored(c)
	if err != nil {
		return err
	}

	out := make([]ExplainResponse, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, s.explainResponse(c, a))
	}
	return c.JSON(out)
}

func (s *Server) handleImport(c *fiber.Ctx) error {
	if s.importer == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "import requires a configured store")
	}
	report, err := s.importer.Import(c.UserContext(), bytes.NewReader(c.Body()))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) assessStored(c *fiber.Ctx) ([]engine.Assessment, error) {
	if s.store == nil {
		return nil, fiber.NewError(fiber.StatusNotImplemented, "indicator lookup requires a configured store")
	}
	value := c.Params("*")
	if value == "" {
		value = c.Query("value")
	}
	if value == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "indicator value is required")
	}

	ctx := c.UserContext()
	found, err := s.store.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if t := c.Query("type"); t != "" {
		found = filterType(found, model.IndicatorType(t))
		if len(found) == 0 {
			return nil, model.ErrNotFound
		}
	}

	out := make([]engine.Assessment, 0, len(found))
	for _, ind := range found {
		a, err := s.engine.AssessIndicator(ctx, ind)
		if err != nil {
			return nil, err
		}
		if err := s.store.SetEnrichment(ctx, ind.Fingerprint, a.Enrichment); err != nil {
			return nil, err
		}
		if err := s.store.SaveScore(ctx, ind.Fingerprint, a.Score); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Server) scoreResponse(c *fiber.Ctx, a engine.Assessment) ScoreResponse {
	return ScoreResponse{
		Assessment: a,
		Status:     a.Score.Status,
		Partial:    a.Explanation.Partial,
		Narrative:  s.narrate(c, a),
	}
}

func (s *Server) explainResponse(c *fiber.Ctx, a engine.Assessment) ExplainResponse {
	return ExplainResponse{
		Explanation: a.Explanation,
		Score:       a.Score,
		Status:      a.Explanation.Status,
		Partial:     a.Explanation.Partial,
		Narrative:   s.narrate(c, a),
	}
}

// narrate renders a narrative when ?narrate=true and a provider is set.
// Narrative failures are reported inside the narrative, never as errors.
func (s *Server) narrate(c *fiber.Ctx, a engine.Assessment) *model.Narrative {
	want, _ := strconv.ParseBool(c.Query("narrate"))
	if !want || !s.narrator.IsEnabled() {
		return nil
	}
	n, err := s.narrator.Narrate(c.UserContext(), a.Explanation, a.Score, a.Feeds)
	if err != nil {
		s.log.Warn().Err(err).Str("value", a.Value).Msg("narrative failed")
		return nil
	}
	return n
}

func parseRequest(c *fiber.Ctx) (engine.Request, error) {
	var req engine.Request
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return req, nil
}

func filterType(in []*model.Indicator, t model.IndicatorType) []*model.Indicator {
	var out []*model.Indicator
	for _, ind := range in {
		if ind.Type == t {
			out = append(out, ind)
		}
	}
	return out
}
