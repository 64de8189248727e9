package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/iocscore/internal/engine"
	"github.com/ppiankov/iocscore/internal/model"
	"github.com/ppiankov/iocscore/internal/store"
	"github.com/ppiankov/iocscore/internal/telemetry"
)

// Assessor scores a stored indicator
type Assessor interface {
	AssessIndicator(ctx context.Context, ind *model.Indicator) (engine.Assessment, error)
}

// Options tunes an Importer
type Options struct {
	Workers           int
	RequestsPerSecond float64 // per feed, 0 disables
	Burst             int
	Metrics           *telemetry.Metrics
	Logger            zerolog.Logger
	Now               func() time.Time
}

// ScoreResult is the outcome for one distinct indicator
type ScoreResult struct {
	Fingerprint string              `json:"fingerprint"`
	Type        model.IndicatorType `json:"type"`
	Value       string              `json:"value"`
	Assessment  *engine.Assessment  `json:"assessment,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// Report summarizes one import run
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Records    int           `json:"records"`  // sightings recorded
	Distinct   int           `json:"distinct"` // indicators scored
	Failed     int           `json:"failed"`
	Invalid    []LineError   `json:"invalid,omitempty"`
	Results    []ScoreResult `json:"results"` // highest final score first
}

// Importer records sightings from an IOC list and scores every distinct
// indicator it touched
type Importer struct {
	store    store.Store
	assessor Assessor
	limiter  *Limiter
	workers  int
	metrics  *telemetry.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewImporter creates an importer writing to st
func NewImporter(st store.Store, assessor Assessor, opts Options) *Importer {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Importer{
		store:    st,
		assessor: assessor,
		limiter:  NewLimiter(opts.RequestsPerSecond, opts.Burst),
		workers:  opts.Workers,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "importer").Logger(),
		now:      now,
	}
}

// Import parses r and imports its records
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	records, bad, err := ParseRecords(r, im.now())
	if err != nil {
		return nil, err
	}
	for range bad {
		im.metrics.ImportRecord(ctx, "invalid")
	}
	rep, err := im.ImportRecords(ctx, records)
	if err != nil {
		return nil, err
	}
	rep.Invalid = append(bad, rep.Invalid...)
	sort.Slice(rep.Invalid, func(i, j int) bool { return rep.Invalid[i].Line < rep.Invalid[j].Line })
	return rep, nil
}

// ImportRecords records every sighting, then scores each distinct
// indicator in parallel. Per-indicator failures are reported, not returned;
// only store failures and cancellation abort the run.
func (im *Importer) ImportRecords(ctx context.Context, records []Record) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		StartedAt: im.now(),
		Results:   []ScoreResult{},
	}
	log := im.log.With().Str("run_id", rep.RunID).Logger()

	var order []string
	touched := make(map[string]struct{})
	for _, rec := range records {
		if err := im.limiter.Wait(ctx, rec.Feed); err != nil {
			return nil, fmt.Errorf("import cancelled at line %d: %w", rec.Line, err)
		}

		ind, err := im.store.RecordSighting(ctx, rec.Type, rec.Value, rec.Feed, rec.SeenAt)
		if err != nil {
			var invalid *model.InvalidIndicatorError
			if errors.As(err, &invalid) {
				im.metrics.ImportRecord(ctx, "invalid")
				rep.Invalid = append(rep.Invalid, LineError{Line: rec.Line, Text: rec.Type + "," + rec.Value, Err: invalid.Reason})
				continue
			}
			return nil, fmt.Errorf("line %d: %w", rec.Line, err)
		}

		rep.Records++
		if _, seen := touched[ind.Fingerprint]; seen {
			im.metrics.ImportRecord(ctx, "duplicate")
		} else {
			order = append(order, ind.Fingerprint)
		}
		touched[ind.Fingerprint] = struct{}{}
	}
	log.Info().Int("records", rep.Records).Int("distinct", len(order)).Int("invalid", len(rep.Invalid)).Msg("sightings recorded")

	pool := NewPool[ScoreResult](ctx, im.workers)
	pool.Start()
	go func() {
		for _, fp := range order {
			if !pool.Submit(im.scoreJob(fp)) {
				break
			}
		}
		pool.Close()
	}()

	for res := range pool.Results() {
		if res.Error != "" {
			rep.Failed++
			im.metrics.ImportRecord(ctx, "failed")
			log.Warn().Str("fingerprint", res.Fingerprint).Str("error", res.Error).Msg("failed to score indicator")
		} else {
			im.metrics.ImportRecord(ctx, "scored")
		}
		rep.Results = append(rep.Results, res)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}

	sort.Slice(rep.Results, func(i, j int) bool {
		a, b := rep.Results[i], rep.Results[j]
		sa, sb := -1, -1
		if a.Assessment != nil {
			sa = a.Assessment.Score.FinalScore
		}
		if b.Assessment != nil {
			sb = b.Assessment.Score.FinalScore
		}
		if sa != sb {
			return sa > sb
		}
		return a.Fingerprint < b.Fingerprint
	})

	rep.Distinct = len(order)
	rep.FinishedAt = im.now()
	log.Info().Int("scored", rep.Distinct-rep.Failed).Int("failed", rep.Failed).Msg("import finished")
	return rep, nil
}

// scoreJob re-reads the merged indicator so sightings recorded by a
// concurrent run are included, then persists enrichment and score
func (im *Importer) scoreJob(fingerprint string) Job[ScoreResult] {
	return func(ctx context.Context) ScoreResult {
		res := ScoreResult{Fingerprint: fingerprint}
		fail := func(err error) ScoreResult {
			res.Error = err.Error()
			return res
		}

		ind, err := im.store.Get(ctx, fingerprint)
		if err != nil {
			return fail(err)
		}
		res.Type, res.Value = ind.Type, ind.Value

		a, err := im.assessor.AssessIndicator(ctx, ind)
		if err != nil {
			return fail(err)
		}
		if err := im.store.SetEnrichment(ctx, fingerprint, a.Enrichment); err != nil {
			return fail(fmt.Errorf("save enrichment: %w", err))
		}
		if err := im.store.SaveScore(ctx, fingerprint, a.Score); err != nil {
			return fail(fmt.Errorf("save score: %w", err))
		}
		res.Assessment = &a
		return res
	}
}
