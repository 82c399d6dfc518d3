// Package pipeline drives an uploaded asset through retrieval, extraction
// and persistence, tracking progress in a processing session and undoing the
// asset lock when any stage fails.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/panjf2000/ants/v2"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/persistence"
	"github.com/tikpoptv/terrahost/internal/quality"
	"github.com/tikpoptv/terrahost/internal/retrieval"
	"github.com/tikpoptv/terrahost/internal/session"
	"github.com/tikpoptv/terrahost/internal/tools"
)

// Fetcher copies an asset into scratch space. The returned scratch file
// must be non-nil even when err is set.
type Fetcher interface {
	Fetch(ctx context.Context, sessionID, locator, fileName string) (*retrieval.ScratchFile, error)
}

// Extractor runs the extraction worker. It must close output before
// returning.
type Extractor interface {
	Extract(ctx context.Context, path string, output chan<- tools.OutputLine) (*extractor.Document, error)
}

// Persister writes an extraction document atomically.
type Persister interface {
	Persist(ctx context.Context, in persistence.Input) (*persistence.Result, error)
}

// Outcome is a successful run.
type Outcome struct {
	AssetID          string                      `json:"asset_id"`
	SessionID        string                      `json:"session_id,omitempty"`
	AlreadyProcessed bool                        `json:"already_processed"`
	Summary          *database.ExtractionSummary `json:"summary,omitempty"`
	Quality          *quality.InlineReport       `json:"quality,omitempty"`
	BandCount        int                         `json:"band_count"`
	Duration         time.Duration               `json:"duration"`
}

// Processor is the processing orchestrator. Runs execute on a bounded pool;
// Start blocks until its run finishes.
type Processor struct {
	db        *database.DB
	tracker   *session.Tracker
	fetcher   Fetcher
	extractor Extractor
	persister Persister
	pool      *ants.Pool
	poolSize  int
	queueSize int
	logger    *slog.Logger
}

type Option func(*Processor)

// WithPoolSize sets how many pipelines run at once. Default is
// runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(n int) Option {
	return func(p *Processor) {
		if n < 1 {
			n = 1
		}
		p.poolSize = n
	}
}

// WithQueueSize bounds how many callers may wait for a free slot. Zero
// means unbounded.
func WithQueueSize(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.queueSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(db *database.DB, tracker *session.Tracker, fetcher Fetcher, ext Extractor, persister Persister, opts ...Option) (*Processor, error) {
	size := runtime.NumCPU() / 2
	if size < 1 {
		size = 1
	}
	p := &Processor{
		db:        db,
		tracker:   tracker,
		fetcher:   fetcher,
		extractor: ext,
		persister: persister,
		poolSize:  size,
		queueSize: 16,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	pool, err := ants.NewPool(p.poolSize, ants.WithMaxBlockingTasks(p.queueSize))
	if err != nil {
		return nil, fmt.Errorf("create pipeline pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Release stops the pool once running pipelines finish.
func (p *Processor) Release() {
	p.pool.Release()
}

// Running reports how many pipelines are executing.
func (p *Processor) Running() int {
	return p.pool.Running()
}

// Start processes one asset and waits for the result. An already processed
// asset succeeds immediately. Any other asset that is not in the uploaded
// state fails with ErrValidation and no session is created.
//
// Once a run begins it is not cancelled by ctx; only the worker timeout
// interrupts it.
func (p *Processor) Start(ctx context.Context, assetID string) (*Outcome, error) {
	a, err := p.db.GetAsset(ctx, assetID)
	if err != nil {
		return nil, &Error{Stage: ErrInternal, AssetID: assetID, Err: err}
	}
	if a == nil {
		return nil, &Error{Stage: ErrValidation, AssetID: assetID, Err: errors.New("asset not found")}
	}
	st := a.State()
	if st.IsProcessed() {
		return &Outcome{AssetID: a.ID, SessionID: st.SessionID, AlreadyProcessed: true}, nil
	}
	if !st.IsProcessable() {
		return nil, &Error{Stage: ErrValidation, AssetID: assetID, Err: fmt.Errorf("asset status is %s", st.Status)}
	}

	runCtx := context.WithoutCancel(ctx)
	var (
		wg      sync.WaitGroup
		outcome *Outcome
		runErr  error
	)
	wg.Add(1)
	err = p.pool.Submit(func() {
		defer wg.Done()
		outcome, runErr = p.run(runCtx, a)
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			return nil, &Error{Stage: ErrBusy, AssetID: assetID, Err: err}
		}
		return nil, &Error{Stage: ErrInternal, AssetID: assetID, Err: err}
	}
	wg.Wait()
	return outcome, runErr
}

// run is one pipeline. Every exit path after the asset is locked restores
// it, and the scratch file is removed on every path.
func (p *Processor) run(ctx context.Context, a *database.Asset) (outcome *Outcome, err error) {
	start := time.Now()
	logger := p.logger.With("asset_id", a.ID)

	sess, err := p.tracker.Create(ctx, a.ID, extractor.Method)
	if err != nil {
		return nil, &Error{Stage: ErrInternal, AssetID: a.ID, Err: err}
	}
	r := &runState{p: p, asset: a, sessionID: sess.ID, start: start, logger: logger.With("session_id", sess.ID)}

	defer func() {
		if v := recover(); v != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			r.logger.Error("pipeline panic", "panic", v, "stack", string(buf))
			err = r.fail(ctx, ErrInternal, "panic", fmt.Errorf("panic: %v", v))
			outcome = nil
		}
		r.scratch.Remove(r.logger)
	}()

	return r.execute(ctx)
}

type runState struct {
	p         *Processor
	asset     *database.Asset
	sessionID string
	start     time.Time
	logger    *slog.Logger

	locked  bool
	scratch *retrieval.ScratchFile
	stage   string
	stageAt time.Time
}

func (r *runState) progress(ctx context.Context, pct int, step string) {
	r.p.tracker.Update(ctx, r.asset.ID, r.sessionID, session.Progress(database.SessionProcessing, pct, step))
}

func (r *runState) begin(name string) {
	r.stage, r.stageAt = name, time.Now()
}

func (r *runState) finish(ctx context.Context, description string) {
	r.p.tracker.AppendStep(ctx, r.sessionID, session.Step{
		Name: r.stage, Description: description, Status: session.StepCompleted,
		StartedAt: r.stageAt, EndedAt: time.Now(),
	})
}

func (r *runState) execute(ctx context.Context) (*Outcome, error) {
	db := r.p.db

	r.begin("lock")
	r.progress(ctx, 10, "Preparing asset")
	ok, err := db.TransitionAssetState(ctx, r.asset.ID, asset.StatusUploaded, asset.Processing(r.sessionID))
	if err != nil {
		return nil, r.fail(ctx, ErrInternal, "lock", err)
	}
	if !ok {
		return nil, r.fail(ctx, ErrValidation, "lock", errors.New("asset was claimed by another run"))
	}
	r.locked = true
	r.progress(ctx, 20, "Asset locked for processing")
	r.finish(ctx, "Asset marked processing")

	r.begin("retrieve")
	r.progress(ctx, 25, "Downloading raster")
	r.scratch, err = r.p.fetcher.Fetch(ctx, r.sessionID, r.asset.StorageLocator, r.asset.FileName)
	if err != nil {
		return nil, r.fail(ctx, ErrRetrieval, "retrieve", err)
	}
	r.progress(ctx, 40, "Raster downloaded ("+humanize.Bytes(uint64(r.scratch.Size))+")")
	r.finish(ctx, "Downloaded "+humanize.Bytes(uint64(r.scratch.Size)))

	r.begin("extract")
	r.progress(ctx, 50, "Running extraction worker")
	doc, err := r.extract(ctx)
	if err != nil {
		return nil, r.fail(ctx, ErrExtraction, "extract", err)
	}
	if doc.ExtractorVersion != "" {
		r.p.tracker.SetWorker(ctx, r.sessionID, doc.ExtractorVersion, extractor.Method)
	}
	r.finish(ctx, fmt.Sprintf("Worker returned %d bands", len(doc.BandData)))

	r.begin("persist")
	r.progress(ctx, 70, "Persisting extracted data")
	res, err := r.p.persister.Persist(ctx, persistence.Input{Asset: r.asset, SessionID: r.sessionID, Document: doc})
	if err != nil {
		return nil, r.fail(ctx, ErrPersistence, "persist", err)
	}
	r.progress(ctx, 90, "Extraction persisted")

	if err := db.SetAssetState(ctx, r.asset.ID, asset.Processed(r.sessionID)); err != nil {
		return nil, r.fail(ctx, ErrPersistence, "persist", err)
	}
	r.locked = false
	r.finish(ctx, fmt.Sprintf("Stored %d bands, quality %.1f (%s)", res.BandCount, res.Quality.Score, res.Quality.Status))

	elapsed := time.Since(r.start)
	r.p.tracker.Update(ctx, r.asset.ID, r.sessionID, session.Completion(elapsed))
	r.logger.Info("asset processed", "bands", res.BandCount, "quality_score", res.Quality.Score, "duration", elapsed)

	q := res.Quality
	return &Outcome{
		AssetID:   r.asset.ID,
		SessionID: r.sessionID,
		Summary:   res.Summary,
		Quality:   &q,
		BandCount: res.BandCount,
		Duration:  elapsed,
	}, nil
}

// extract runs the worker while forwarding its stderr to subscribers. The
// forwarder also stops when Extract panics without closing lines.
func (r *runState) extract(ctx context.Context) (*extractor.Document, error) {
	lines := make(chan tools.OutputLine, 100)
	returned := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				r.p.tracker.Log(r.asset.ID, r.sessionID, line)
			case <-returned:
				return
			}
		}
	}()
	defer close(returned)

	doc, err := r.p.extractor.Extract(ctx, r.scratch.Path, lines)
	<-done
	return doc, err
}

// fail marks the session failed, logs the step and restores the asset to
// uploaded if this run locked it.
func (r *runState) fail(ctx context.Context, stage error, step string, cause error) error {
	r.logger.Error("pipeline failed", "stage", step, "error", cause)

	r.p.tracker.AppendStep(ctx, r.sessionID, session.Step{
		Name: step, Description: stage.Error(), Status: session.StepFailed,
		Output: cause.Error(), StartedAt: r.stageAt, EndedAt: time.Now(),
	})
	r.p.tracker.Update(ctx, r.asset.ID, r.sessionID, session.Failure(cause.Error(), time.Since(r.start)))

	if r.locked {
		if err := r.p.db.SetAssetState(ctx, r.asset.ID, asset.Uploaded()); err != nil {
			r.logger.Error("restoring asset status", "error", err)
		} else {
			r.locked = false
		}
	}
	return &Error{Stage: stage, AssetID: r.asset.ID, SessionID: r.sessionID, Err: cause}
}
