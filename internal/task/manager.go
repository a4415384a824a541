// Package task drains the work queue, claims waiting task rows, and runs
// the pipeline each Task.Kind names: import-variation and import-coverage
// through internal/ingest, annotate through internal/annotate. It also
// owns Activate, the single transactional helper that flips a sample's
// active flag under its activation guard.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"varda/internal/annotate"
	"varda/internal/broker"
	"varda/internal/domain"
	"varda/internal/ingest"
	"varda/internal/logging"
	"varda/internal/store"
	"varda/internal/verr"
)

// Options configures a Manager.
type Options struct {
	// PollInterval is how often the scheduler re-scans for waiting tasks,
	// the backstop path for a task enqueued before the manager started or
	// whose broker message never arrived.
	PollInterval time.Duration
}

func (o *Options) setDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
}

// Manager drains broker.Queue, dispatching each claimed Task to the
// pipeline its Kind names.
type Manager struct {
	Store     store.Store
	Importer  *ingest.Importer
	Annotator *annotate.Annotator
	Queue     broker.Queue
	Logger    *zap.Logger
	Opts      Options

	scheduler *gocron.Scheduler

	mu       sync.RWMutex
	payloads map[string]broker.Payload // TaskID -> payload, populated by the queue-drain loop
}

// NewManager wires a Manager, applying Options defaults.
func NewManager(s store.Store, imp *ingest.Importer, ann *annotate.Annotator, q broker.Queue, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		Store:     s,
		Importer:  imp,
		Annotator: ann,
		Queue:     q,
		Logger:    logging.Nop(),
		Opts:      opts,
		payloads:  map[string]broker.Payload{},
	}
}

// Submit creates a Task row and publishes its payload, the combined
// operation every enqueue path (import upload, annotation request) calls.
func (m *Manager) Submit(ctx context.Context, t domain.Task, payload broker.Payload) error {
	if err := m.Store.Tasks().Create(ctx, t); err != nil {
		return err
	}
	payload.TaskID = t.ID
	payload.Kind = t.Kind
	return m.Queue.Publish(ctx, payload)
}

// Run starts the queue-drain goroutine and the gocron-driven poll loop,
// blocking until ctx is canceled. It mirrors the select-loop shape of
// gohan's IngestionService.Init(), generalized from an unbounded
// in-process channel listener to a broker.Queue abstraction plus a
// scheduled catch-all poll.
func (m *Manager) Run(ctx context.Context) error {
	raw, err := m.Queue.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				payload, err := broker.DecodePayload(msg)
				if err != nil {
					m.Logger.Warn("task: drop unparseable broker message", zap.Error(err))
					continue
				}
				m.mu.Lock()
				m.payloads[payload.TaskID] = payload
				m.mu.Unlock()
				m.pollKind(ctx, payload.Kind)
			}
		}
	}()

	m.scheduler = gocron.NewScheduler(time.UTC)
	_, err = m.scheduler.Every(m.Opts.PollInterval).Do(func() {
		for _, kind := range []domain.TaskKind{domain.TaskImportVariation, domain.TaskImportCoverage, domain.TaskAnnotate} {
			m.pollKind(ctx, kind)
		}
	})
	if err != nil {
		return verr.Wrap(verr.Internal, err, "task: schedule poll job")
	}
	m.scheduler.StartAsync()

	<-ctx.Done()
	m.scheduler.Stop()
	return nil
}

// pollKind claims and executes every waiting task of kind until none remain.
func (m *Manager) pollKind(ctx context.Context, kind domain.TaskKind) {
	for {
		t, ok, err := m.Store.Tasks().ClaimNextWaiting(ctx, kind)
		if err != nil {
			m.Logger.Error("task: claim waiting task", zap.String("kind", string(kind)), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		m.execute(ctx, t)
	}
}

func (m *Manager) execute(ctx context.Context, t domain.Task) {
	logger := m.Logger.With(zap.String("task_id", t.ID), zap.String("kind", string(t.Kind)))

	m.mu.RLock()
	payload, havePayload := m.payloads[t.ID]
	m.mu.RUnlock()
	if !havePayload {
		// The queue-drain goroutine never delivered this task's payload (an
		// admin reschedule, a vardad restart against ChanQueue's in-memory
		// queue, or the backstop poll winning the claim race before
		// delivery): Target/DataSourceID on the Task row itself, durable
		// storage rather than the in-process map, carry everything a
		// payload would have.
		payload = payloadFromTask(t)
	}

	var err error
	switch t.Kind {
	case domain.TaskImportVariation:
		err = m.runImportVariation(ctx, t, payload)
	case domain.TaskImportCoverage:
		err = m.runImportCoverage(ctx, t, payload)
	case domain.TaskAnnotate:
		err = m.runAnnotate(ctx, t, payload)
	default:
		err = verr.New(verr.Internal, "task: unknown kind %q", t.Kind)
	}

	if err != nil {
		logger.Error("task: run failed", zap.Error(err))
	} else {
		logger.Info("task: run finished")
	}
	m.finish(ctx, t.ID, err)

	m.mu.Lock()
	delete(m.payloads, t.ID)
	m.mu.Unlock()
}

// payloadFromTask rebuilds the broker.Payload a Task's original Submit call
// published, reading it back off the durable columns Create/Reschedule
// write (Target, DataSourceID) rather than the broker message, which a
// reschedule never republishes and an in-memory ChanQueue never survives a
// restart to redeliver.
func payloadFromTask(t domain.Task) broker.Payload {
	p := broker.Payload{TaskID: t.ID, Kind: t.Kind}
	switch t.Kind {
	case domain.TaskImportVariation, domain.TaskImportCoverage:
		p.SampleID = t.Target
		p.DataSourceID = t.DataSourceID
	case domain.TaskAnnotate:
		p.AnnotationID = t.Target
	}
	return p
}

func (m *Manager) finish(ctx context.Context, taskID string, err error) {
	state := domain.TaskSuccess
	msg := ""
	if err != nil {
		state = domain.TaskFailure
		msg = err.Error()
	}
	if ferr := m.Store.Tasks().Finish(ctx, taskID, state, msg); ferr != nil {
		m.Logger.Error("task: write terminal state", zap.String("task_id", taskID), zap.Error(ferr))
	}
}

func (m *Manager) runImportVariation(ctx context.Context, t domain.Task, p broker.Payload) error {
	ds, err := m.Store.DataSources().Get(ctx, p.DataSourceID)
	if err != nil {
		return err
	}
	_, err = m.Importer.ImportVariation(ctx, ds, p.SampleID, t.Checkpoint, m.checkpointFunc(t.ID, ds.Size))
	return err
}

func (m *Manager) runImportCoverage(ctx context.Context, t domain.Task, p broker.Payload) error {
	ds, err := m.Store.DataSources().Get(ctx, p.DataSourceID)
	if err != nil {
		return err
	}
	_, err = m.Importer.ImportCoverage(ctx, ds, p.SampleID, t.Checkpoint, m.checkpointFunc(t.ID, ds.Size))
	return err
}

func (m *Manager) runAnnotate(ctx context.Context, t domain.Task, p broker.Payload) error {
	ann, err := m.Store.Annotations().Get(ctx, p.AnnotationID)
	if err != nil {
		return err
	}
	original, err := m.Store.DataSources().Get(ctx, ann.OriginalDataSourceID)
	if err != nil {
		return err
	}
	_, _, err = m.Annotator.Annotate(ctx, ann, original, m.checkpointFunc(t.ID, original.Size))
	return err
}

// checkpointFunc persists progress against totalSize bytes, logging a
// human-readable byte count alongside the row counters.
func (m *Manager) checkpointFunc(taskID string, totalSize int64) func(ctx context.Context, cp domain.Checkpoint) error {
	return func(ctx context.Context, cp domain.Checkpoint) error {
		progress := 0.0
		if totalSize > 0 {
			progress = float64(cp.ByteOffset) / float64(totalSize)
			if progress > 1 {
				progress = 1
			}
		}
		m.Logger.Info("task: checkpoint",
			zap.String("task_id", taskID),
			zap.String("processed", humanize.Bytes(uint64(cp.ByteOffset))),
			zap.Int64("rows_accepted", cp.RowsAccepted),
			zap.Int64("rows_rejected", cp.RowsRejected),
		)
		return m.Store.Tasks().UpdateProgress(ctx, taskID, progress, cp)
	}
}
