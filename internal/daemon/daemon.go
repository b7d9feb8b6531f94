package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"eduscale/internal/config"
	"eduscale/internal/delivery"
	"eduscale/internal/dispatch"
	"eduscale/internal/event"
	"eduscale/internal/logging"
	"eduscale/internal/notifications"
	"eduscale/internal/pipeline"
	"eduscale/internal/rules"
	"eduscale/internal/stages"
	"eduscale/internal/status"
	"eduscale/internal/storage"
	"eduscale/internal/warehouse"
)

// Daemon wires the object store, filter engine, delivery coordinator, and
// stage orchestrator together and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	objects      *storage.Store
	records      *status.Store
	engine       *rules.Engine
	orchestrator *pipeline.Orchestrator
	dispatcher   *dispatch.Dispatcher
	warehouse    warehouse.Warehouse
	notifier     notifications.Service
	watcher      *storage.Watcher
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool           `json:"running"`
	Bucket     string         `json:"bucket"`
	RuleCount  int            `json:"rule_count"`
	FileCount  int            `json:"file_count"`
	StageCount map[string]int `json:"stage_counts"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	objects, err := storage.NewStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	ruleSet := rules.Defaults(cfg.Storage.Bucket)
	if cfg.Rules.Path != "" {
		ruleSet, err = rules.Load(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
	}
	engine, err := rules.NewEngine(ruleSet)
	if err != nil {
		return nil, fmt.Errorf("build filter engine: %w", err)
	}

	wh, err := warehouse.Open(cfg.WarehouseDSN())
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		objects:   objects,
		records:   status.NewStore(),
		engine:    engine,
		warehouse: wh,
		notifier:  notifications.NewService(cfg),
		lockPath:  filepath.Join(cfg.DataDir, "eduscaled.lock"),
	}
	d.lock = flock.New(d.lockPath)

	d.orchestrator = pipeline.NewOrchestrator(d.records, d.ingest, logger)
	d.orchestrator.OnTerminal(d.notifyTerminal)

	limits := stages.Limits{
		MaxFileBytes:      int64(cfg.Pipeline.MaxFileSizeMB) << 20,
		MaxArchiveBytes:   int64(cfg.Pipeline.MaxArchiveSizeMB) << 20,
		MaxArchiveMembers: cfg.Pipeline.MaxFilesPerArchive,
	}
	bucket := cfg.Storage.Bucket
	d.orchestrator.Register(stages.NewClassifier(objects, bucket, limits, logger))
	d.orchestrator.Register(stages.NewExtractor(objects, bucket, limits, logger))
	d.orchestrator.Register(stages.NewStructurer(objects, bucket, logger))
	d.orchestrator.Register(stages.NewLoader(objects, wh, logger))

	policy := delivery.Policy{
		BaseDelay:      time.Duration(cfg.Delivery.BaseDelaySeconds) * time.Second,
		Multiplier:     float64(cfg.Delivery.BackoffMultiplier),
		MaxAttempts:    cfg.Delivery.MaxAttempts,
		RequestTimeout: time.Duration(cfg.Delivery.RequestTimeoutSeconds) * time.Second,
	}
	coordinator := delivery.NewCoordinator(policy, logger, delivery.WithExhaustedHook(d.deliveryExhausted))
	d.dispatcher = dispatch.NewDispatcher(engine, coordinator, cfg.Delivery.MaxInFlight, logger)

	for _, stage := range status.ProcessingStages() {
		name := string(stage)
		if endpoint := cfg.Delivery.Endpoints[name]; endpoint != "" {
			d.dispatcher.RegisterDestination(name, delivery.NewHTTPDestination("http:"+name, endpoint, policy.RequestTimeout))
			continue
		}
		d.dispatcher.RegisterDestination(name, delivery.NewStageDestination(d.orchestrator, stage))
	}

	if cfg.Storage.WatchUploads {
		d.watcher, err = storage.NewWatcher(objects, bucket, d.ingest, logger)
		if err != nil {
			_ = wh.Close()
			return nil, fmt.Errorf("build uploads watcher: %w", err)
		}
	}

	d.api, err = newAPIServer(cfg, d, logger)
	if err != nil {
		_ = wh.Close()
		return nil, err
	}
	return d, nil
}

// Start acquires the daemon lock and launches the watcher and status API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another eduscale daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return fmt.Errorf("start uploads watcher: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			if d.watcher != nil {
				_ = d.watcher.Close()
			}
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("eduscale daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bucket", d.cfg.Storage.Bucket),
	)
	return nil
}

// Stop halts ingestion and waits for in-flight deliveries to drain.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.dispatcher.Close()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("eduscale daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.warehouse != nil {
		return d.warehouse.Close()
	}
	return nil
}

// Records exposes the aggregator store for the API and tests.
func (d *Daemon) Records() *status.Store {
	return d.records
}

// Objects exposes the object store for tests.
func (d *Daemon) Objects() *storage.Store {
	return d.objects
}

// APIAddr returns the bound status API address, empty until Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status summarizes runtime state.
func (d *Daemon) Status() Status {
	counts := make(map[string]int)
	total := 0
	for stage, count := range d.records.CountByStage() {
		counts[string(stage)] = count
		total += count
	}
	return Status{
		Running:    d.running.Load(),
		Bucket:     d.cfg.Storage.Bucket,
		RuleCount:  len(d.engine.Rules()),
		FileCount:  total,
		StageCount: counts,
	}
}

// Replay synthesizes the storage-finalize notification for an existing
// object so an operator can reprocess it after an exhausted delivery.
func (d *Daemon) Replay(ctx context.Context, bucket, objectPath string) (event.Notification, error) {
	if bucket == "" {
		bucket = d.cfg.Storage.Bucket
	}
	info, err := d.objects.Stat(bucket, objectPath)
	if err != nil {
		return event.Notification{}, fmt.Errorf("replay target: %w", err)
	}
	n := event.New(bucket, objectPath, info.ContentType, info.SizeBytes)
	d.logger.Info("manual replay requested",
		logging.String(logging.FieldEventID, n.ID),
		logging.String("object_path", objectPath),
	)
	d.ingest(n)
	return n, nil
}

func (d *Daemon) ingest(n event.Notification) {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	d.dispatcher.Ingest(ctx, n)
}

func (d *Daemon) notifyTerminal(record *status.Record) {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	switch record.CurrentStage {
	case status.StageDone:
		rows := int64(0)
		if v, ok := record.Metadata["rows_loaded"].(int64); ok {
			rows = v
		}
		if err := d.notifier.NotifyFileCompleted(ctx, record.FileID, record.RegionID, rows); err != nil {
			d.logger.Warn("completion notification failed", logging.Error(err))
		}
	case status.StageFailed:
		reason := ""
		if len(record.AuditWarnings) > 0 {
			reason = record.AuditWarnings[len(record.AuditWarnings)-1]
		}
		if err := d.notifier.NotifyFileFailed(ctx, record.FileID, string(record.CurrentStage), reason); err != nil {
			d.logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

func (d *Daemon) deliveryExhausted(ctx context.Context, n event.Notification, destination string, attempts []delivery.Attempt) {
	if err := d.notifier.NotifyDeliveryExhausted(ctx, n.ObjectPath, destination, len(attempts)); err != nil {
		d.logger.Warn("exhaustion notification failed", logging.Error(err))
	}
}
