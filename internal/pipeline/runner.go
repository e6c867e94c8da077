package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"spritebatch/internal/archive"
	"spritebatch/internal/batch"
	"spritebatch/internal/config"
	"spritebatch/internal/discovery"
	"spritebatch/internal/extract"
	"spritebatch/internal/ledger"
	"spritebatch/internal/logging"
	"spritebatch/internal/notifications"
	"spritebatch/internal/services"
	"spritebatch/internal/services/detector"
)

// Uploader sends one batch to the detection service and returns the response
// archive bytes.
type Uploader interface {
	Upload(ctx context.Context, b batch.Batch) ([]byte, error)
}

// Extractor unpacks a response archive into outputRoot/batch_<index>.
type Extractor interface {
	Extract(payload []byte, index int, outputRoot string) (extract.Outcome, error)
}

// Archiver packages the output root into a run archive.
type Archiver interface {
	Write(outputRoot string) (string, error)
}

// Publisher uploads a finished run archive and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, runID, archivePath string) (string, error)
}

// Request names the directories of a single run.
type Request struct {
	RootDir string
	// OutputDir overrides the configured output root.
	OutputDir string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithUploader replaces the HTTP detector client.
func WithUploader(u Uploader) Option {
	return func(r *Runner) { r.uploader = u }
}

// WithExtractor replaces the archive extractor.
func WithExtractor(e Extractor) Option {
	return func(r *Runner) { r.extractor = e }
}

// WithArchiver replaces the run archiver.
func WithArchiver(a Archiver) Option {
	return func(r *Runner) { r.archiver = a }
}

// WithLedger records runs and batches in store.
func WithLedger(store *ledger.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithPublisher uploads the run archive after it is written.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithNotifier publishes run events.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// Runner executes runs against one configuration.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	uploader  Uploader
	extractor Extractor
	archiver  Archiver
	store     *ledger.Store
	publisher Publisher
	notifier  notifications.Service

	mu    sync.Mutex
	state State
}

// New builds a Runner. Components not supplied through options are built from
// cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires config")
	}
	r := &Runner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		notifier: notifications.Noop(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.uploader == nil {
		r.uploader = detector.New(cfg.Detector.Endpoint,
			detector.WithFieldName(cfg.Detector.FieldName),
			detector.WithTimeout(cfg.RequestTimeout()),
			detector.WithUserAgent(cfg.Detector.UserAgent),
		)
	}
	if r.extractor == nil {
		r.extractor = &extract.Extractor{
			TempDir:    cfg.Paths.TempDir,
			Marker:     cfg.Batch.MarkerDir,
			Extensions: cfg.Batch.Extensions,
		}
	}
	if r.archiver == nil {
		r.archiver = archive.New()
	}
	return r, nil
}

// State returns the current orchestrator state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) enter(ctx context.Context, s State) context.Context {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	ctx = services.WithStage(ctx, string(s))
	logging.WithContext(ctx, r.logger).Debug("stage entered")
	return ctx
}

// Run processes every image beneath req.RootDir. Per-batch failures are
// reported in the summary, not as an error. A cancelled context stops
// dispatch, archives what was produced, and returns the summary together with
// the context error.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)

	outputRoot := req.OutputDir
	if outputRoot == "" {
		outputRoot = r.cfg.Paths.OutputDir
	}
	if abs, err := filepath.Abs(outputRoot); err == nil {
		outputRoot = abs
	}
	summary := &Summary{
		RunID:     runID,
		RootDir:   req.RootDir,
		OutputDir: outputRoot,
		StartedAt: time.Now(),
	}

	stageCtx := r.enter(ctx, StateDiscovering)
	listing, err := discovery.Scan(req.RootDir, r.cfg.Batch.Extensions)
	if err != nil {
		return nil, r.abort(stageCtx, "image discovery failed", err)
	}
	for _, path := range listing.Skipped {
		logging.WarnWithContext(logging.WithContext(stageCtx, r.logger), "unreadable path skipped", "discovery_skipped",
			logging.String("path", path),
			logging.String(logging.FieldImpact, "images beneath it are not submitted"),
			logging.String(logging.FieldErrorHint, "check permissions under the root directory"),
		)
	}
	images := listing.Images
	summary.TotalImages = len(images)
	if len(images) == 0 {
		stageCtx = r.enter(ctx, StateNoImages)
		logging.WithContext(stageCtx, r.logger).Info("no images found",
			logging.String("root", req.RootDir),
			logging.String(logging.FieldEventType, "no_images"),
		)
		summary.FinishedAt = time.Now()
		return summary, nil
	}

	stageCtx = r.enter(ctx, StatePlanning)
	batches, err := batch.Plan(images, r.cfg.Batch.Size)
	if err != nil {
		return nil, r.abort(stageCtx, "batch planning failed", err)
	}
	summary.TotalBatches = len(batches)

	lock, err := acquireOutputLock(r.cfg.LockDir(), outputRoot)
	if err != nil {
		return nil, r.abort(stageCtx, "output root busy", err)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(outputRoot, 0o755); err != nil {
		return nil, r.abort(stageCtx, "create output root failed",
			services.Wrap(services.ErrConfiguration, "planning", "create output root", outputRoot, err))
	}

	logging.WithContext(stageCtx, r.logger).Info("run planned",
		logging.String("root", req.RootDir),
		logging.String("output_dir", outputRoot),
		logging.Int("images", len(images)),
		logging.Int("batches", len(batches)),
		logging.Int("batch_size", r.cfg.Batch.Size),
		logging.Int("workers", r.workers(len(batches))),
	)

	if r.store != nil {
		if err := r.store.CreateRun(ctx, ledger.Run{
			ID:          runID,
			RootDir:     req.RootDir,
			OutputDir:   outputRoot,
			Endpoint:    r.cfg.Detector.Endpoint,
			BatchSize:   r.cfg.Batch.Size,
			Workers:     r.workers(len(batches)),
			TotalImages: len(images),
			StartedAt:   summary.StartedAt,
		}, batches); err != nil {
			r.ledgerWarning(stageCtx, "record run", err)
		}
	}
	r.notify(ctx, summary.message(notifications.EventRunStarted))

	summary.Results = r.dispatch(ctx, runID, outputRoot, batches)
	return r.finish(ctx, summary)
}

// Retry re-dispatches the failed, skipped, and unfinished batches of a
// recorded run with their original indices into the run's output root, then
// writes a fresh run archive covering the whole tree.
func (r *Runner) Retry(ctx context.Context, runID string) (*Summary, error) {
	if r.store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "retry", "load run", "run ledger is disabled", nil)
	}
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithRunID(ctx, run.ID)
	pending, err := r.store.RetryableBatches(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:        run.ID,
		RootDir:      run.RootDir,
		OutputDir:    run.OutputDir,
		TotalImages:  run.TotalImages,
		TotalBatches: run.TotalBatches,
		StartedAt:    time.Now(),
	}
	stageCtx := r.enter(ctx, StatePlanning)
	if len(pending) == 0 {
		logging.WithContext(stageCtx, r.logger).Info("nothing to retry",
			logging.String(logging.FieldEventType, "retry_noop"),
		)
		records, err := r.store.Batches(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		summary.Results = mergeResults(records, nil)
		summary.ArchivePath = run.ArchivePath
		summary.PublishedURL = run.PublishedURL
		summary.FinishedAt = time.Now()
		r.enter(ctx, StateDone)
		return summary, nil
	}

	lock, err := acquireOutputLock(r.cfg.LockDir(), run.OutputDir)
	if err != nil {
		return nil, r.abort(stageCtx, "output root busy", err)
	}
	defer lock.Unlock()

	if err := os.MkdirAll(run.OutputDir, 0o755); err != nil {
		return nil, r.abort(stageCtx, "create output root failed",
			services.Wrap(services.ErrConfiguration, "retry", "create output root", run.OutputDir, err))
	}
	if err := r.store.BeginRetry(ctx, run.ID); err != nil {
		return nil, r.abort(stageCtx, "mark run for retry failed", err)
	}

	indices := make([]int, 0, len(pending))
	for _, b := range pending {
		indices = append(indices, b.Index)
	}
	logging.WithContext(stageCtx, r.logger).Info("retrying batches",
		logging.Int("batches", len(pending)),
		logging.Any("indices", indices),
		logging.Int("previous_attempts", run.Attempts),
	)
	r.notify(ctx, summary.message(notifications.EventRunStarted))

	fresh := r.dispatch(ctx, run.ID, run.OutputDir, pending)
	records, err := r.store.Batches(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		r.ledgerWarning(stageCtx, "load batches", err)
		summary.Results = fresh
	} else {
		summary.Results = mergeResults(records, fresh)
	}
	return r.finish(ctx, summary)
}

// dispatch feeds batches to a bounded worker pool and returns one result per
// batch in input order. Once ctx is cancelled nothing further is dispatched;
// batches already handed to a worker finish on a context detached from the
// cancellation, still bounded by the uploader's own timeout.
func (r *Runner) dispatch(ctx context.Context, runID, outputRoot string, batches []batch.Batch) []batch.Result {
	col := newCollector(len(batches))
	work := context.WithoutCancel(ctx)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range r.workers(len(batches)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				// The send can win the select against ctx.Done; drop it here
				// so the batch is recorded as skipped.
				if ctx.Err() != nil {
					continue
				}
				result := r.processBatch(work, outputRoot, batches[pos])
				col.set(pos, result)
				r.recordBatch(work, runID, result)
			}
		}()
	}

dispatchLoop:
	for pos := range batches {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatchLoop
		case jobs <- pos:
		}
	}
	close(jobs)
	wg.Wait()

	for pos, b := range batches {
		if col.done(pos) {
			continue
		}
		result := batch.Skipped(b, ctx.Err())
		col.set(pos, result)
		r.recordBatch(work, runID, result)
		logging.WithContext(services.WithBatchIndex(work, b.Index), r.logger).Info("batch skipped",
			logging.Int("images", len(b.Images)),
			logging.String(logging.FieldEventType, "batch_skipped"),
		)
	}
	return col.snapshot()
}

func (r *Runner) processBatch(ctx context.Context, outputRoot string, b batch.Batch) batch.Result {
	ctx = services.WithBatchIndex(ctx, b.Index)
	started := time.Now()

	stageCtx := r.enter(ctx, StateUploadingBatch)
	payload, err := r.uploader.Upload(stageCtx, b)
	if err != nil {
		return r.batchFailed(stageCtx, b, err)
	}

	stageCtx = r.enter(ctx, StateExtractingBatch)
	outcome, err := r.extractor.Extract(payload, b.Index, outputRoot)
	if err != nil {
		return r.batchFailed(stageCtx, b, err)
	}

	result := batch.Completed(b, outcome.Detected, outcome.Dir)
	logging.WithContext(stageCtx, r.logger).Info("batch processed",
		logging.Int("images", len(b.Images)),
		logging.String("status", string(result.Status)),
		logging.Int("files", outcome.Files),
		logging.String("dir", outcome.Dir),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "batch_completed"),
	)
	return result
}

func (r *Runner) batchFailed(ctx context.Context, b batch.Batch, err error) batch.Result {
	if _, ok := services.BatchIndex(err); !ok {
		err = services.NewBatchError(services.ErrUploadFailed, b.Index, "", err)
	}
	kind := services.Classify(err)
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "batch failed", "batch_failed",
		logging.Error(err),
		logging.String("error_kind", kind),
		logging.Int("images", len(b.Images)),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	runID, _ := services.RunIDFromContext(ctx)
	r.notify(ctx, notifications.Message{
		Event:      notifications.EventBatchFailed,
		RunID:      runID,
		BatchIndex: b.Index,
		Error:      err.Error(),
	})
	return batch.Failed(b, err)
}

// finish summarizes, archives, publishes, and records the end of a run.
func (r *Runner) finish(ctx context.Context, summary *Summary) (*Summary, error) {
	detached := context.WithoutCancel(ctx)
	summary.Canceled = ctx.Err() != nil

	stageCtx := r.enter(detached, StateSummarizing)
	logger := logging.WithContext(stageCtx, r.logger)
	logger.Info("run summary",
		logging.Int("batches", len(summary.Results)),
		logging.Any("detected", summary.Detected()),
		logging.Any("failed", summary.Failed()),
		logging.Any("skipped", summary.Skipped()),
		logging.Bool("canceled", summary.Canceled),
		logging.String(logging.FieldEventType, "run_summary"),
	)

	stageCtx = r.enter(detached, StateArchiving)
	logger = logging.WithContext(stageCtx, r.logger)
	archivePath, err := r.archiver.Write(summary.OutputDir)
	if err != nil {
		summary.FinishedAt = time.Now()
		r.enter(detached, StateFailed)
		logging.ErrorWithContext(logger, "run archive failed", "archive_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "batch directories are intact; check free space and permissions on the output root"),
		)
		r.finishLedger(detached, summary, ledger.RunFailed, err)
		msg := summary.message(notifications.EventRunFailed)
		msg.Error = err.Error()
		r.notify(detached, msg)
		return summary, err
	}
	summary.ArchivePath = archivePath
	logger.Info("run archive written",
		logging.String("archive", archivePath),
		logging.String(logging.FieldEventType, "archive_written"),
	)

	if r.publisher != nil && !summary.Canceled {
		url, err := r.publisher.Publish(detached, summary.RunID, archivePath)
		if err != nil {
			logging.WarnWithContext(logger, "run archive publish failed", "publish_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "archive kept locally only"),
			)
		} else {
			summary.PublishedURL = url
			logger.Info("run archive published",
				logging.String("url", url),
				logging.String(logging.FieldEventType, "archive_published"),
			)
		}
	}

	summary.FinishedAt = time.Now()
	var finishErr error
	if summary.Canceled {
		finishErr = ctx.Err()
	}
	r.finishLedger(detached, summary, summary.RunStatus(), finishErr)
	r.notify(detached, summary.message(notifications.EventRunCompleted))
	r.enter(detached, StateDone)

	if summary.Canceled {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (r *Runner) abort(ctx context.Context, msg string, err error) error {
	r.enter(ctx, StateFailed)
	logging.ErrorWithContext(logging.WithContext(ctx, r.logger), msg, services.Classify(err),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, failureHint(err)),
	)
	return err
}

func (r *Runner) workers(batches int) int {
	return max(1, min(r.cfg.Batch.Workers, batches))
}

func (r *Runner) recordBatch(ctx context.Context, runID string, result batch.Result) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordBatch(ctx, runID, result); err != nil {
		r.ledgerWarning(services.WithBatchIndex(ctx, result.Index), "record batch", err)
	}
}

func (r *Runner) finishLedger(ctx context.Context, summary *Summary, status ledger.RunStatus, err error) {
	if r.store == nil {
		return
	}
	if ferr := r.store.FinishRun(ctx, summary.RunID, ledger.Finish{
		Status:       status,
		ArchivePath:  summary.ArchivePath,
		PublishedURL: summary.PublishedURL,
		Err:          err,
		FinishedAt:   summary.FinishedAt,
	}); ferr != nil {
		r.ledgerWarning(ctx, "finish run", ferr)
	}
}

func (r *Runner) ledgerWarning(ctx context.Context, op string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "run ledger update failed", "ledger_write_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "run history incomplete; retry may not see this run"),
	)
}

func (r *Runner) notify(ctx context.Context, msg notifications.Message) {
	if err := r.notifier.Publish(ctx, msg); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "run event not delivered", "notification_failed",
			logging.String("event", string(msg.Event)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "downstream consumers miss this event"),
		)
	}
}

func (s *Summary) message(event notifications.Event) notifications.Message {
	return notifications.Message{
		Event:        event,
		RunID:        s.RunID,
		RootDir:      s.RootDir,
		OutputDir:    s.OutputDir,
		TotalImages:  s.TotalImages,
		TotalBatches: s.TotalBatches,
		Detected:     s.Detected(),
		Failed:       s.Failed(),
		Skipped:      s.Skipped(),
		ArchivePath:  s.ArchivePath,
		PublishedURL: s.PublishedURL,
	}
}

// mergeResults rebuilds full run results from ledger records, preferring the
// results of batches dispatched in this attempt.
func mergeResults(records []ledger.BatchRecord, fresh []batch.Result) []batch.Result {
	byIndex := make(map[int]batch.Result, len(fresh))
	for _, res := range fresh {
		byIndex[res.Index] = res
	}
	out := make([]batch.Result, 0, len(records))
	for _, rec := range records {
		if res, ok := byIndex[rec.Index]; ok {
			out = append(out, res)
			continue
		}
		res := batch.Result{
			Index:      rec.Index,
			ImageCount: rec.ImageCount,
			Detected:   rec.Detected,
			Dir:        rec.Dir,
			Status:     rec.Status,
		}
		if rec.Status == ledger.StatusPending {
			res.Status = batch.StatusSkipped
		}
		if rec.ErrorMessage != "" {
			res.Err = errors.New(rec.ErrorMessage)
		}
		out = append(out, res)
	}
	return out
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "detection service did not answer in time; raise detector.request_timeout_seconds or lower --batch"
	case errors.Is(err, services.ErrUploadFailed):
		return "check the detection endpoint with `spritebatch check`"
	case errors.Is(err, services.ErrArchiveCorrupt):
		return "the service returned an unreadable archive; retry the run later"
	case errors.Is(err, services.ErrDirectoryNotFound):
		return "verify the directory path"
	case errors.Is(err, services.ErrInvalidBatchSize):
		return "use a positive --batch value"
	case errors.Is(err, services.ErrRunLocked):
		return "wait for the other run to finish or choose another --outdir"
	default:
		return "check logs for details"
	}
}
