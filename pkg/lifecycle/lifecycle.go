// Package lifecycle implements the Lifecycle Coordinator: the single
// process-wide mutable singleton owning the database driver handle, the
// Schema Card, the optional Embedder, and the cached Retrieval Engine,
// publishing a readiness state machine over fast-start-then-enrich
// background builds.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Mando-03/nl2sql-mcp/pkg/planner"
	"github.com/Mando-03/nl2sql-mcp/pkg/retrieval"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/card"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/embed"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/graph"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/reflect"
	"github.com/Mando-03/nl2sql-mcp/pkg/schema/sample"
	"github.com/Mando-03/nl2sql-mcp/pkg/sqlast"
)

// Phase is a readiness state-machine value.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStarting Phase = "STARTING" // adapter connecting
	PhaseRunning  Phase = "RUNNING"  // fast-start reflection in flight
	PhaseReady    Phase = "READY"
	PhaseFailed   Phase = "FAILED"
	PhaseStopped  Phase = "STOPPED"
)

// State is the published readiness snapshot.
type State struct {
	Phase        Phase     `json:"phase"`
	Attempts     int       `json:"attempts"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Options configures a Coordinator. Per-request planning budgets live on
// planner.Request, and the execute_query row/cell budget is owned by
// whatever constructs the execute.Guardrail (the MCP tool layer), since
// neither is coordinator-wide state.
type Options struct {
	DSN             string
	Dialect         schema.Dialect
	FastStartCap    int
	SampleWorkers   int
	SampleRowLimit  int
	SampleTimeout   time.Duration
	EncoderDims     int
	EnableEmbedding bool
	CachePath       string
	Logger          *zap.Logger
}

// Coordinator is the lifecycle singleton.
type Coordinator struct {
	opts Options
	log  *zap.Logger

	db      *sql.DB
	adapter reflect.Adapter

	state atomic.Value // State

	cardStore *card.Store
	astSvc    *sqlast.Service

	retrievalMu  sync.Mutex
	retrieval    *retrieval.Engine
	retrievalFor string // reflection_hash this engine was built for

	graphMu  sync.Mutex
	graphFor string
	fkGraph  *graph.Graph

	semanticMu   sync.Mutex
	semanticHash string
	semantic     *embed.Semantic

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Coordinator in phase IDLE. Call Start to begin.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	c := &Coordinator{opts: opts, log: opts.Logger, cardStore: card.New(), astSvc: sqlast.New(nil, 256)}
	c.setState(State{Phase: PhaseIdle})
	return c
}

func (c *Coordinator) setState(s State) {
	c.state.Store(s)
}

// State returns the current readiness snapshot.
func (c *Coordinator) State() State {
	if v := c.state.Load(); v != nil {
		return v.(State)
	}
	return State{Phase: PhaseIdle}
}

// Ready reports whether the coordinator is serving a usable Schema Card.
func (c *Coordinator) Ready() bool {
	return c.State().Phase == PhaseReady
}

// Card returns the currently active Schema Card, if any.
func (c *Coordinator) Card() (*schema.Card, bool) {
	return c.cardStore.Get()
}

// SQLAST returns the shared SQL-AST service.
func (c *Coordinator) SQLAST() *sqlast.Service {
	return c.astSvc
}

// DB returns the live database handle, once connected.
func (c *Coordinator) DB() *sql.DB {
	return c.db
}

// Start transitions IDLE->STARTING, connects the driver, runs a fast-start
// build synchronously enough to publish an initial card, then kicks the
// background enrich task. It returns once the fast-start phase completes
// (successfully or not); enrichment continues in the background.
func (c *Coordinator) Start(ctx context.Context) error {
	s := c.State()
	s.Phase = PhaseStarting
	s.Attempts++
	s.StartedAt = time.Now()
	c.setState(s)

	bgCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	adapter, err := reflect.NewAdapter(c.opts.Dialect)
	if err != nil {
		return c.fail(fmt.Errorf("constructing reflection adapter: %w", err))
	}
	if err := adapter.Connect(ctx, c.opts.DSN); err != nil {
		return c.fail(fmt.Errorf("connecting to database: %w", err))
	}
	c.adapter = adapter
	c.db = adapter.DB()

	s = c.State()
	s.Phase = PhaseRunning
	c.setState(s)

	raw, err := reflect.Reflect(ctx, adapter, reflect.Options{MaxTables: c.opts.FastStartCap})
	if err != nil {
		return c.fail(fmt.Errorf("fast-start reflection: %w", err))
	}

	fastCard := card.Fast(raw, card.BuildParams{Version: "dev"})
	fastCard.Dialect = c.opts.Dialect
	fastCard.Fingerprint = card.ConnectionFingerprint(c.opts.Dialect, c.opts.DSN)
	fastCard.BuiltAt = time.Now()
	c.cardStore.Put(fastCard)
	c.astSvc.SetKnownIdentifiers(fastCard)

	s = c.State()
	s.Phase = PhaseReady
	s.CompletedAt = time.Now()
	c.setState(s)
	c.log.Info("fast-start build complete", zap.Int("tables", fastCard.TableCount()))

	c.wg.Add(1)
	go c.enrich(bgCtx, raw)

	return nil
}

func (c *Coordinator) fail(err error) error {
	s := c.State()
	s.Phase = PhaseFailed
	s.ErrorMessage = err.Error()
	c.setState(s)
	c.log.Error("lifecycle start failed", zap.Error(err))
	return err
}

// enrich runs the background full build: sampling, profiling, graph
// construction, classification, and (if enabled) embedding. On success it
// atomically swaps the active card; on failure the prior card remains
// active and the failure is recorded without regressing readiness.
func (c *Coordinator) enrich(ctx context.Context, raw *reflect.RawSchema) {
	defer c.wg.Done()

	sampler := sample.New(c.opts.Dialect, c.opts.SampleWorkers, c.opts.SampleRowLimit, c.opts.SampleTimeout)
	enriched, err := card.Enrich(ctx, raw, c.db, sampler, card.BuildParams{
		Version: "dev",
		Graph:   graph.Params{MinAreaSize: 2, MergeArchiveAreas: true},
	})
	if err != nil {
		c.log.Warn("enrichment failed, prior card remains active", zap.Error(err))
		s := c.State()
		s.ErrorMessage = fmt.Sprintf("enrichment failed: %v", err)
		c.setState(s)
		return
	}
	enriched.Dialect = c.opts.Dialect
	enriched.Fingerprint = card.ConnectionFingerprint(c.opts.Dialect, c.opts.DSN)
	enriched.BuiltAt = time.Now()

	if c.opts.EnableEmbedding {
		encoder := embed.NewHashingEncoder(c.opts.EncoderDims)
		if sem, embErr := embed.Build(ctx, enriched, encoder); embErr == nil && sem != nil {
			enriched.Meta.EmbeddingEnabled = true
			c.installSemantic(enriched.ReflectionHash, sem)
		}
	}

	c.cardStore.Put(enriched)
	c.astSvc.SetKnownIdentifiers(enriched)
	c.invalidateDerived()
	if err := card.Persist(c.opts.CachePath, enriched); err != nil {
		c.log.Warn("failed to persist schema card", zap.Error(err))
	}
	c.log.Info("enrichment complete", zap.Int("tables", enriched.TableCount()), zap.Bool("partial", enriched.Partial))
}

// installSemantic records the Embedder built for one reflection_hash. Only
// the most recently enriched card's embedding is kept, matching the
// single-active-entry lifetime of the retrieval/graph caches above rather
// than accumulating an entry per rebuild.
func (c *Coordinator) installSemantic(hash string, sem *embed.Semantic) {
	c.semanticMu.Lock()
	defer c.semanticMu.Unlock()
	c.semanticHash = hash
	c.semantic = sem
}

func (c *Coordinator) semanticFor(hash string) *embed.Semantic {
	c.semanticMu.Lock()
	defer c.semanticMu.Unlock()
	if c.semanticHash == hash {
		return c.semantic
	}
	return nil
}

func (c *Coordinator) invalidateDerived() {
	c.retrievalMu.Lock()
	c.retrieval = nil
	c.retrievalMu.Unlock()
	c.graphMu.Lock()
	c.fkGraph = nil
	c.graphMu.Unlock()
}

// Graph returns the FK graph for the active card, rebuilding it if the
// card has changed since the last call.
func (c *Coordinator) Graph() (*graph.Graph, error) {
	active, ok := c.Card()
	if !ok {
		return nil, fmt.Errorf("no schema card installed")
	}
	c.graphMu.Lock()
	defer c.graphMu.Unlock()
	if c.fkGraph != nil && c.graphFor == active.ReflectionHash {
		return c.fkGraph, nil
	}
	c.fkGraph = graph.Build(active.Tables)
	c.graphFor = active.ReflectionHash
	return c.fkGraph, nil
}

// Retrieval returns the Retrieval Engine for the active card, rebuilding it
// (keyed on reflection_hash) if the card has changed since the last call.
func (c *Coordinator) Retrieval() (*retrieval.Engine, error) {
	active, ok := c.Card()
	if !ok {
		return nil, fmt.Errorf("no schema card installed")
	}
	c.retrievalMu.Lock()
	defer c.retrievalMu.Unlock()
	if c.retrieval != nil && c.retrievalFor == active.ReflectionHash {
		return c.retrieval, nil
	}
	sem := c.semanticFor(active.ReflectionHash)
	c.retrieval = retrieval.New(active, sem)
	c.retrievalFor = active.ReflectionHash
	return c.retrieval, nil
}

// Planner returns a Query Planner bound to the active card, graph, and
// retrieval engine.
func (c *Coordinator) Planner() (*planner.Planner, error) {
	active, ok := c.Card()
	if !ok {
		return nil, fmt.Errorf("no schema card installed")
	}
	eng, err := c.Retrieval()
	if err != nil {
		return nil, err
	}
	g, err := c.Graph()
	if err != nil {
		return nil, err
	}
	return planner.New(active, eng, g), nil
}

// Stop transitions to STOPPED, cancelling background work and joining it
// within grace.
func (c *Coordinator) Stop(grace time.Duration) {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		c.log.Warn("lifecycle stop grace period elapsed before background tasks finished")
	}
	if c.adapter != nil {
		if err := c.adapter.Close(); err != nil {
			c.log.Warn("error closing database adapter", zap.Error(err))
		}
	}
	s := c.State()
	s.Phase = PhaseStopped
	c.setState(s)
}
