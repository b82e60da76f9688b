package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/filescope-mcp/internal/classifier"
	"github.com/dshills/filescope-mcp/internal/config"
	"github.com/dshills/filescope-mcp/internal/embedder"
	"github.com/dshills/filescope-mcp/internal/index"
	"github.com/dshills/filescope-mcp/internal/scanner"
	"github.com/dshills/filescope-mcp/internal/storage"
	"github.com/dshills/filescope-mcp/pkg/types"
)

var (
	ErrScanInProgress = errors.New("a scan is already in progress")
	ErrNoScan         = errors.New("no scan has been started")
	ErrNotRunning     = errors.New("no scan in progress")
)

const (
	backfillBatch   = 64
	maxReportErrors = 100
)

// Classifier is the gateway used by workers
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) classifier.Outcome
}

// Options contains the pipeline settings
type Options struct {
	Workers            int           // Classification goroutines (default: min(NumCPU, 8))
	QueueSize          int           // Candidates buffered between scanner and workers (default: 100)
	CheckpointEvery    int           // Save after this many applied results (default: 20)
	CheckpointInterval time.Duration // or after this long, whichever comes first (default: 5s)
	ResumeMaxAge       time.Duration // Older checkpoints are discarded; 0 never expires
	PruneMissing       bool          // Delete records under the roots that were not seen
	MaxReadBytes       int64         // Bytes read from each file for classification (default: 64KiB)
}

// DefaultOptions returns the default pipeline settings
func DefaultOptions() Options {
	return Options{
		Workers:            min(runtime.NumCPU(), 8),
		QueueSize:          100,
		CheckpointEvery:    20,
		CheckpointInterval: 5 * time.Second,
		ResumeMaxAge:       24 * time.Hour,
		PruneMissing:       true,
		MaxReadBytes:       64 * 1024,
	}
}

// OptionsFromConfig maps configuration onto pipeline settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:            cfg.WorkerCount(),
		QueueSize:          cfg.QueueSize,
		CheckpointEvery:    cfg.CheckpointEvery,
		CheckpointInterval: cfg.CheckpointInterval,
		ResumeMaxAge:       cfg.ResumeMaxAge,
		PruneMissing:       cfg.PruneMissing,
		MaxReadBytes:       int64(cfg.MaxReadBytes),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = def.CheckpointEvery
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = def.CheckpointInterval
	}
	if o.MaxReadBytes <= 0 {
		o.MaxReadBytes = def.MaxReadBytes
	}
	return o
}

// ScanOptions modify a single scan
type ScanOptions struct {
	Fresh bool // Ignore any resumable checkpoint
}

// Progress is a point-in-time view of the current or most recent scan
type Progress struct {
	State     types.ScanState  `json:"state"`
	ScanID    string           `json:"scan_id,omitempty"`
	Roots     []string         `json:"roots,omitempty"`
	Scanned   int64            `json:"scanned"`   // Candidates enumerated by this run
	Queued    int              `json:"queued"`    // Candidates waiting for a worker
	Completed int64            `json:"completed"` // Results applied by this run
	Cursor    int              `json:"cursor"`    // Paths completed across resumed runs of this scan
	Counts    types.ScanCounts `json:"counts"`
	Elapsed   time.Duration    `json:"elapsed"`
	Resumed   bool             `json:"resumed"`
}

// Report summarises a finished scan
type Report struct {
	ScanID   string           `json:"scan_id"`
	State    types.ScanState  `json:"state"`
	Roots    []string         `json:"roots"`
	Resumed  bool             `json:"resumed"`
	Counts   types.ScanCounts `json:"counts"`
	Duration time.Duration    `json:"duration"`
	Errors   []string         `json:"errors,omitempty"`
}

// Indexer coordinates the pipeline: scan -> queue -> classify -> single writer
type Indexer struct {
	store    *storage.RecordStore
	gateway  Classifier
	embedder embedder.Embedder // nil disables embeddings
	index    *index.Index
	scanner  *scanner.Scanner
	opts     Options
	logger   *slog.Logger

	lock IndexLock
	mu   sync.Mutex
	run  *run // Current or most recent run
}

// New creates a new Indexer instance
func New(store *storage.RecordStore, gateway Classifier, emb embedder.Embedder, idx *index.Index,
	scan *scanner.Scanner, opts Options, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    store,
		gateway:  gateway,
		embedder: emb,
		index:    idx,
		scanner:  scan,
		opts:     opts.withDefaults(),
		logger:   logger.With("component", "indexer"),
	}
}

// counters are updated by the writer and read by Progress
type counters struct {
	classified, fallback, skipped, unchanged, failed, pruned atomic.Int64
}

func (c *counters) snapshot() types.ScanCounts {
	return types.ScanCounts{
		Classified: int(c.classified.Load()),
		Fallback:   int(c.fallback.Load()),
		Skipped:    int(c.skipped.Load()),
		Unchanged:  int(c.unchanged.Load()),
		Failed:     int(c.failed.Load()),
		Pruned:     int(c.pruned.Load()),
	}
}

// run is one scan execution
type run struct {
	id      string
	roots   []string
	resumed bool
	cursor0 int // Completed paths inherited from the checkpoint
	start   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state      types.ScanState // Guarded by Indexer.mu
	finalizing bool            // Guarded by Indexer.mu

	queue     chan workItem
	scanned   atomic.Int64
	completed atomic.Int64
	counts    counters

	skip        map[string]bool     // Completed before this run; read by the scanner
	seen        map[string]struct{} // Writer only
	failedRoots map[string]bool     // Producer only until the pipeline ends

	errMu   sync.Mutex
	errs    []string
	failure error

	report *Report
	err    error
}

func (r *run) addError(msg string) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if len(r.errs) < maxReportErrors {
		r.errs = append(r.errs, msg)
	}
}

// fail records a systemic error and stops the pipeline
func (r *run) fail(err error) {
	r.errMu.Lock()
	if r.failure == nil {
		r.failure = err
	}
	r.errMu.Unlock()
	r.addError(err.Error())
	r.cancel()
}

func (r *run) failed() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.failure
}

// ticket is redeemed by the writer exactly once per dequeued item
type ticket struct {
	redeemed atomic.Bool
}

func (t *ticket) redeem() bool {
	return t.redeemed.CompareAndSwap(false, true)
}

type workItem struct {
	scanner.Candidate
	ticket *ticket
}

type resultKind int

const (
	kindRecord resultKind = iota
	kindUnchanged
)

type result struct {
	item   workItem
	kind   resultKind
	record *types.FileRecord
}

// StartScan begins a scan of roots in the background and returns its scan ID.
// A checkpoint left by an interrupted scan of the same roots is resumed unless
// opts.Fresh is set or the checkpoint is older than ResumeMaxAge.
func (idx *Indexer) StartScan(ctx context.Context, roots []string, opts ScanOptions) (string, error) {
	r, err := idx.start(ctx, roots, opts)
	if err != nil {
		return "", err
	}
	return r.id, nil
}

func (idx *Indexer) start(ctx context.Context, roots []string, opts ScanOptions) (*run, error) {
	if len(roots) == 0 {
		return nil, types.ErrNoRoots
	}
	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		a, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", root, err)
		}
		abs = append(abs, a)
	}

	if !idx.lock.TryAcquire() {
		return nil, ErrScanInProgress
	}

	now := time.Now()
	r := &run{
		roots:       abs,
		start:       now,
		state:       types.ScanScanning,
		done:        make(chan struct{}),
		queue:       make(chan workItem, idx.opts.QueueSize),
		skip:        map[string]bool{},
		seen:        map[string]struct{}{},
		failedRoots: map[string]bool{},
	}
	// Detached so the run outlives the request that started it
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	cp, ok := idx.store.Checkpoint()
	switch {
	case ok && !opts.Fresh && cp.Matches(abs) && !cp.Expired(now, idx.opts.ResumeMaxAge):
		r.id = cp.ScanID
		r.resumed = true
		r.cursor0 = len(cp.Completed)
		r.skip = cp.Completed
		for p := range cp.Completed {
			r.seen[p] = struct{}{}
		}
	default:
		if ok {
			idx.logger.Info("discarding previous scan checkpoint",
				slog.String("scan_id", cp.ScanID),
				slog.Bool("fresh", opts.Fresh),
				slog.Bool("roots_match", cp.Matches(abs)))
		}
		cp = types.NewScanCheckpoint(abs, now)
		idx.store.SetCheckpoint(cp)
		r.id = cp.ScanID
	}

	idx.mu.Lock()
	idx.run = r
	idx.mu.Unlock()

	idx.logger.Info("scan started",
		slog.String("scan_id", r.id),
		slog.Any("roots", r.roots),
		slog.Bool("resumed", r.resumed),
		slog.Int("already_completed", r.cursor0),
		slog.Int("workers", idx.opts.Workers))

	go idx.execute(r)
	return r, nil
}

// CancelScan stops the active scan. Items already being classified finish and
// are saved with the checkpoint so a later scan of the same roots resumes.
func (idx *Indexer) CancelScan() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := idx.run
	if r == nil || !r.state.Active() {
		return ErrNotRunning
	}
	if r.finalizing {
		// Enumeration and classification are done; let it complete
		return nil
	}
	r.state = types.ScanCancelled
	r.cancel()
	idx.logger.Info("scan cancellation requested", slog.String("scan_id", r.id))
	return nil
}

// Running reports whether a scan is active
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}

// Progress reports on the current or most recent scan
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	r := idx.run
	if r == nil {
		idx.mu.Unlock()
		return Progress{State: types.ScanIdle}
	}
	state := r.state
	report := r.report
	idx.mu.Unlock()

	p := Progress{
		State:     state,
		ScanID:    r.id,
		Roots:     r.roots,
		Scanned:   r.scanned.Load(),
		Queued:    len(r.queue),
		Completed: r.completed.Load(),
		Cursor:    r.cursor0 + int(r.completed.Load()),
		Counts:    r.counts.snapshot(),
		Elapsed:   time.Since(r.start),
		Resumed:   r.resumed,
	}
	if report != nil {
		p.Elapsed = report.Duration
	}
	return p
}

// Wait blocks until the current or most recent scan ends
func (idx *Indexer) Wait(ctx context.Context) (*Report, error) {
	idx.mu.Lock()
	r := idx.run
	idx.mu.Unlock()
	if r == nil {
		return nil, ErrNoScan
	}
	return waitRun(ctx, r)
}

func waitRun(ctx context.Context, r *run) (*Report, error) {
	select {
	case <-r.done:
		return r.report, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scan runs a scan to the end. Cancelling ctx cancels the scan; the partial
// report is returned once the checkpoint is saved.
func (idx *Indexer) Scan(ctx context.Context, roots []string, opts ScanOptions) (*Report, error) {
	r, err := idx.start(ctx, roots, opts)
	if err != nil {
		return nil, err
	}
	rep, err := waitRun(ctx, r)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		_ = idx.CancelScan()
		return waitRun(context.Background(), r)
	}
	return rep, err
}

// execute runs the pipeline and the end-of-run bookkeeping
func (idx *Indexer) execute(r *run) {
	defer close(r.done)
	defer idx.lock.Release()
	defer r.cancel()

	g, gctx := errgroup.WithContext(r.ctx)
	results := make(chan result, idx.opts.Workers)

	g.Go(func() error {
		idx.produce(gctx, r)
		return nil
	})
	g.Go(func() error {
		var workers errgroup.Group
		for i := 0; i < idx.opts.Workers; i++ {
			workers.Go(func() error {
				idx.work(gctx, r, results)
				return nil
			})
		}
		err := workers.Wait()
		close(results)
		return err
	})
	g.Go(func() error {
		return idx.write(r, results)
	})
	_ = g.Wait()

	idx.finish(r)
}

// produce feeds scanner candidates into the bounded queue
func (idx *Indexer) produce(ctx context.Context, r *run) {
	defer close(r.queue)

	candidates, rootErrs := idx.scanner.Walk(ctx, r.roots, func(path string) bool { return r.skip[path] })
	for c := range candidates {
		r.scanned.Add(1)
		item := workItem{Candidate: c, ticket: &ticket{}}
		select {
		case r.queue <- item:
		case <-ctx.Done():
			// Undequeued items are not in the checkpoint and will be rescanned
			for range candidates {
			}
		}
	}
	for err := range rootErrs {
		var rootErr *scanner.RootError
		if errors.As(err, &rootErr) {
			r.failedRoots[filepath.Clean(rootErr.Root)] = true
		}
		idx.logger.Warn("scan root skipped", slog.Any("error", err))
		r.addError(err.Error())
	}

	if ctx.Err() == nil {
		idx.transition(r, types.ScanScanning, types.ScanDraining)
	}
}

func (idx *Indexer) transition(r *run, from, to types.ScanState) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if r.state == from {
		r.state = to
	}
}

// work processes queued items until the queue closes or the run is cancelled
func (idx *Indexer) work(ctx context.Context, r *run, results chan<- result) {
	for {
		if ctx.Err() != nil {
			return
		}
		var item workItem
		var ok bool
		select {
		case <-ctx.Done():
			return
		case item, ok = <-r.queue:
			if !ok {
				return
			}
		}

		res, applied := idx.process(ctx, item)
		if !applied {
			continue
		}
		// The writer drains results until they are closed
		results <- res
	}
}

// process decides the outcome for one candidate. It returns false when the
// item was interrupted by cancellation and must not be applied.
func (idx *Indexer) process(ctx context.Context, item workItem) (result, bool) {
	c := item.Candidate
	now := time.Now().UTC()
	prev, hasPrev := idx.store.Get(c.Path)

	switch c.Disposition {
	case scanner.TooLarge, scanner.Excluded:
		state := types.StateSkippedTooLarge
		if c.Disposition == scanner.Excluded {
			state = types.StateSkippedExcluded
		}
		return result{item: item, record: &types.FileRecord{
			FileIdentity: c.FileIdentity,
			Name:         c.Name,
			State:        state,
			ScannedAt:    now,
		}}, true
	}

	if hasPrev && prev.State.Classified() && prev.Unchanged(c.FileIdentity) {
		return result{item: item, kind: kindUnchanged}, true
	}

	content, err := readHead(c.Path, idx.opts.MaxReadBytes)
	if err != nil {
		idx.logger.Warn("read failed", slog.String("path", c.Path), slog.Any("error", err))
		return result{item: item, record: failedRecord(c, prev, err, now)}, true
	}

	out := idx.gateway.Classify(ctx, classifier.Request{
		Path:    c.Path,
		Name:    c.Name,
		Ext:     c.Ext,
		Size:    c.Size,
		Content: content,
	})
	if out.Cancelled {
		return result{}, false
	}

	rec := &types.FileRecord{
		FileIdentity: c.FileIdentity,
		Name:         c.Name,
		Category:     out.Result.Category,
		Summary:      out.Result.Summary,
		Keywords:     out.Result.Keywords,
		State:        types.StateSuccess,
		Provider:     out.Provider,
		ClassifiedAt: now,
		ScannedAt:    now,
	}
	if out.Fallback {
		rec.State = types.StateFallback
		if out.Err != nil {
			rec.Error = out.Err.Error()
		}
	}
	idx.attachEmbedding(ctx, rec, prev)

	idx.logger.Debug("classified",
		slog.String("path", c.Path),
		slog.String("state", string(rec.State)),
		slog.String("provider", rec.Provider),
		slog.Int("attempts", out.Attempts))
	return result{item: item, record: rec}, true
}

// attachEmbedding reuses the previous vector when the summary is unchanged,
// otherwise embeds the new summary. Failures leave the record without a
// vector; it is backfilled when the scan completes.
func (idx *Indexer) attachEmbedding(ctx context.Context, rec, prev *types.FileRecord) {
	if idx.embedder == nil || rec.Summary == "" {
		return
	}
	model := idx.embedder.Model()
	if prev != nil && prev.HasEmbedding() && prev.Summary == rec.Summary && prev.EmbeddingModel == model {
		rec.Embedding = prev.Embedding
		rec.EmbeddingModel = prev.EmbeddingModel
		return
	}
	emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: rec.Summary})
	if err != nil {
		idx.logger.Warn("embedding failed", slog.String("path", rec.Path), slog.Any("error", err))
		return
	}
	rec.Embedding = emb.Vector
	rec.EmbeddingModel = emb.Model
}

// failedRecord keeps the last successful classification, if any
func failedRecord(c scanner.Candidate, prev *types.FileRecord, err error, now time.Time) *types.FileRecord {
	rec := &types.FileRecord{}
	if prev != nil {
		rec = prev
	}
	rec.FileIdentity = c.FileIdentity
	rec.Name = c.Name
	rec.State = types.StateFailed
	rec.Error = err.Error()
	rec.ScannedAt = now
	return rec
}

// readHead reads at most n bytes from the start of path
func readHead(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(io.LimitReader(f, n))
}

// write is the single writer: it applies results to the store and index and
// saves every CheckpointEvery results or CheckpointInterval
func (idx *Indexer) write(r *run, results <-chan result) error {
	ticker := time.NewTicker(idx.opts.CheckpointInterval)
	defer ticker.Stop()

	pending := 0
	save := func() {
		if pending == 0 || r.failed() != nil {
			return
		}
		// Saves must still land after a cancel
		if err := idx.store.Save(context.WithoutCancel(r.ctx)); err != nil {
			r.fail(fmt.Errorf("checkpoint save: %w", err))
			idx.logger.Error("checkpoint save failed", slog.Any("error", err))
			return
		}
		pending = 0
	}

	for {
		select {
		case res, ok := <-results:
			if !ok {
				return r.failed()
			}
			if r.failed() != nil {
				continue
			}
			if idx.apply(r, res) {
				pending++
			}
			if pending >= idx.opts.CheckpointEvery {
				save()
			}
		case <-ticker.C:
			save()
		}
	}
}

// apply redeems the item's ticket and records its outcome
func (idx *Indexer) apply(r *run, res result) bool {
	if !res.item.ticket.redeem() {
		idx.logger.Error("result completed twice", slog.String("path", res.item.Path))
		return false
	}

	switch res.kind {
	case kindUnchanged:
		r.counts.unchanged.Add(1)
	default:
		rec := res.record
		if err := idx.store.Put(rec); err != nil {
			idx.logger.Warn("record rejected", slog.String("path", rec.Path), slog.Any("error", err))
			r.counts.failed.Add(1)
			r.addError(fmt.Sprintf("%s: %v", rec.Path, err))
			break
		}
		idx.index.Upsert(rec.Path, rec.Embedding, rec.ClassifiedAt)
		switch rec.State {
		case types.StateSuccess:
			r.counts.classified.Add(1)
		case types.StateFallback:
			r.counts.fallback.Add(1)
		case types.StateFailed:
			r.counts.failed.Add(1)
			r.addError(fmt.Sprintf("%s: %s", rec.Path, rec.Error))
		default:
			r.counts.skipped.Add(1)
		}
	}

	idx.store.MarkCompleted(res.item.Path)
	r.seen[res.item.Path] = struct{}{}
	r.completed.Add(1)
	return true
}

// finish settles the terminal state and performs the final save
func (idx *Indexer) finish(r *run) {
	idx.mu.Lock()
	cancelled := r.state == types.ScanCancelled
	if !cancelled {
		r.finalizing = true
	}
	idx.mu.Unlock()

	failure := r.failed()
	state := types.ScanCompleted
	switch {
	case failure != nil:
		state = types.ScanFailed
		// Keep whatever can still be saved; the checkpoint stays
		if err := idx.store.Save(context.Background()); err != nil {
			idx.logger.Error("final save failed", slog.Any("error", err))
		}
	case cancelled:
		state = types.ScanCancelled
		if err := idx.store.Save(context.Background()); err != nil {
			failure = fmt.Errorf("final save: %w", err)
			r.addError(failure.Error())
			state = types.ScanFailed
		}
	default:
		if idx.opts.PruneMissing {
			idx.prune(r)
		}
		idx.backfill(r.ctx)
		idx.store.ClearCheckpoint()
		if err := idx.store.Save(context.Background()); err != nil {
			failure = fmt.Errorf("final save: %w", err)
			r.addError(failure.Error())
			state = types.ScanFailed
		}
	}

	r.errMu.Lock()
	errs := append([]string(nil), r.errs...)
	r.errMu.Unlock()

	report := &Report{
		ScanID:   r.id,
		State:    state,
		Roots:    r.roots,
		Resumed:  r.resumed,
		Counts:   r.counts.snapshot(),
		Duration: time.Since(r.start),
		Errors:   errs,
	}

	idx.mu.Lock()
	r.state = state
	r.report = report
	r.err = failure
	idx.mu.Unlock()

	idx.logger.Info("scan finished",
		slog.String("scan_id", r.id),
		slog.String("state", string(state)),
		slog.Int("classified", report.Counts.Classified),
		slog.Int("fallback", report.Counts.Fallback),
		slog.Int("skipped", report.Counts.Skipped),
		slog.Int("unchanged", report.Counts.Unchanged),
		slog.Int("failed", report.Counts.Failed),
		slog.Int("pruned", report.Counts.Pruned),
		slog.Duration("duration", report.Duration))
}

// prune deletes records under the scanned roots that this scan did not see.
// Roots that could not be walked are left alone.
func (idx *Indexer) prune(r *run) {
	for _, path := range idx.store.Paths() {
		if _, ok := r.seen[path]; ok {
			continue
		}
		if !idx.underScannedRoot(r, path) {
			continue
		}
		if idx.store.Delete(path) {
			idx.index.Remove(path)
			r.counts.pruned.Add(1)
			idx.logger.Debug("pruned missing file", slog.String("path", path))
		}
	}
}

func (idx *Indexer) underScannedRoot(r *run, path string) bool {
	for _, root := range r.roots {
		if r.failedRoots[root] {
			continue
		}
		if isUnder(root, path) {
			return true
		}
	}
	return false
}

func isUnder(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// backfill embeds classified records that lack a vector for the current model
func (idx *Indexer) backfill(ctx context.Context) {
	if idx.embedder == nil {
		return
	}
	model := idx.embedder.Model()

	var missing []*types.FileRecord
	for _, rec := range idx.store.All() {
		if rec.State.Classified() && rec.Summary != "" && (!rec.HasEmbedding() || rec.EmbeddingModel != model) {
			missing = append(missing, rec)
		}
	}
	if len(missing) == 0 {
		return
	}

	filled := 0
	for start := 0; start < len(missing); start += backfillBatch {
		if ctx.Err() != nil {
			break
		}
		batch := missing[start:min(start+backfillBatch, len(missing))]
		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Summary
		}
		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			idx.logger.Warn("embedding backfill failed", slog.Int("records", len(batch)), slog.Any("error", err))
			break
		}
		for i, rec := range batch {
			rec.Embedding = resp.Embeddings[i].Vector
			rec.EmbeddingModel = resp.Embeddings[i].Model
			if err := idx.store.Put(rec); err != nil {
				continue
			}
			idx.index.Upsert(rec.Path, rec.Embedding, rec.ClassifiedAt)
			filled++
		}
	}
	idx.logger.Info("embeddings backfilled", slog.Int("records", filled), slog.Int("missing", len(missing)))
}
