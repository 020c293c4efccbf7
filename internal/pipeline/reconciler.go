package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scenestudio/internal/domain"
	"scenestudio/internal/metrics"
	"scenestudio/internal/providers/video"
	"scenestudio/internal/settlement"
	"scenestudio/internal/storage"
)

// ReconcilerConfig bounds the per-batch state machine.
type ReconcilerConfig struct {
	// MaxTicks is the status-query budget of a batch.
	MaxTicks int
	// PollConcurrency caps concurrent status queries inside one batch tick.
	PollConcurrency int
	// WriteTimeout bounds the registry write at the end of a tick.
	WriteTimeout time.Duration
	// LeaseTTL is how long a tick may hold a batch before another poller
	// can take it over. It must outlast one tick.
	LeaseTTL time.Duration
	// SettleRetries is how many ticks past MaxTicks a failing settlement is
	// retried before the batch is closed as failed.
	SettleRetries int
}

// ErrBatchLocked reports that another poller holds the batch lease.
var ErrBatchLocked = errors.New("pipeline: batch is locked by another poller")

// Reconciler advances one batch per Tick.
type Reconciler struct {
	batches   domain.BatchStore
	locker    domain.BatchLocker
	generator video.Generator
	store     storage.ArtifactStore
	settler   *settlement.Settler
	metrics   *metrics.Pipeline
	cfg       ReconcilerConfig
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReconciler(batches domain.BatchStore, generator video.Generator, store storage.ArtifactStore, settler *settlement.Settler, m *metrics.Pipeline, cfg ReconcilerConfig, logger zerolog.Logger) *Reconciler {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = 60
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = 4
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.SettleRetries <= 0 {
		cfg.SettleRetries = 30
	}
	locker, _ := batches.(domain.BatchLocker)
	return &Reconciler{
		batches:   batches,
		locker:    locker,
		generator: generator,
		store:     store,
		settler:   settler,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Tick runs one reconciliation step for batchID and returns the new snapshot.
// Terminal batches are returned unchanged. When the registry hands out
// leases, a batch held by another poller yields ErrBatchLocked.
func (r *Reconciler) Tick(ctx context.Context, batchID string) (*domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.locker != nil {
		unlock, ok, err := r.locker.Lock(ctx, batchID, r.cfg.LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("lock batch %s: %w", batchID, err)
		}
		if !ok {
			return nil, ErrBatchLocked
		}
		defer unlock()
	}
	b, err := r.batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if b.Status.Terminal() {
		return b, nil
	}
	log := r.logger.With().Str("batch_id", b.ID).Logger()

	b.Ticks++
	b.LastPollAt = r.now()
	if b.Ticks <= r.cfg.MaxTicks {
		r.poll(ctx, b, log)
	}
	exhausted := b.Ticks >= r.cfg.MaxTicks

	var settleErr error
	if unsettled := b.Unsettled(); len(unsettled) > 0 {
		partial := exhausted && !b.AllTerminal()
		_, settleErr = r.settler.Settle(ctx, b, unsettled, partial)
	}
	switch {
	case settleErr == nil:
		r.advance(b, exhausted)
	case errors.Is(settleErr, domain.ErrNotFound) || b.Ticks >= r.cfg.MaxTicks+r.cfg.SettleRetries:
		r.abandon(b)
		log.Error().Err(settleErr).
			Str("user_id", b.UserID).
			Int("tick", b.Ticks).
			Int("unsettled", len(b.Unsettled())).
			Msg("reconcile: settlement abandoned")
	default:
		log.Warn().Err(settleErr).Int("tick", b.Ticks).Msg("reconcile: settlement deferred")
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.WriteTimeout)
	defer cancel()
	if err := r.batches.Put(wctx, b); err != nil {
		return b, fmt.Errorf("store batch %s: %w", b.ID, err)
	}
	if b.Status.Terminal() {
		log.Info().
			Str("status", string(b.Status)).
			Str("quota_status", string(b.QuotaStatus)).
			Int("settled", len(b.SettledIDs)).
			Int("ticks", b.Ticks).
			Msg("reconcile: batch finished")
	}
	return b, nil
}

func (r *Reconciler) poll(ctx context.Context, b *domain.Batch, log zerolog.Logger) {
	pending := b.PendingIndexes()
	if len(pending) == 0 {
		return
	}
	results := make([]domain.Operation, len(pending))
	var g errgroup.Group
	g.SetLimit(r.cfg.PollConcurrency)
	for i, idx := range pending {
		op := b.Operations[idx]
		g.Go(func() error {
			results[i] = r.pollOne(ctx, b.ID, op, log)
			return nil
		})
	}
	_ = g.Wait()

	for i, idx := range pending {
		next := results[i]
		if next.Status != b.Operations[idx].Status && next.Status.Terminal() {
			r.metrics.OperationTerminal(next.Status)
		}
		b.Operations[idx] = next
	}
}

// pollOne queries one operation. Any error leaves the operation pending so
// the next tick asks again.
func (r *Reconciler) pollOne(ctx context.Context, batchID string, op domain.Operation, log zerolog.Logger) domain.Operation {
	st, err := r.generator.Status(ctx, op.Handle)
	if err != nil {
		if errors.Is(err, video.ErrNotFound) {
			op.Status = domain.OperationExpired
			op.Error = err.Error()
			op.UpdatedAt = r.now()
			return op
		}
		log.Debug().Err(err).Int("index", op.Index).Msg("reconcile: transient status error")
		return op
	}

	switch st.State {
	case video.StateFailed:
		op.Status = domain.OperationFailed
		op.Error = st.Reason
	case video.StateExpired:
		op.Status = domain.OperationExpired
		op.Error = st.Reason
	case video.StateCompleted:
		artifact, err := r.persist(ctx, batchID, op, st)
		if err != nil {
			log.Warn().Err(err).Int("index", op.Index).Msg("reconcile: artifact not yet durable")
			return op
		}
		op.Status = domain.OperationCompleted
		op.Artifact = artifact
	default:
		return op
	}
	op.UpdatedAt = r.now()
	return op
}

func (r *Reconciler) persist(ctx context.Context, batchID string, op domain.Operation, st video.Status) (*domain.Artifact, error) {
	key := storage.VideoKey(batchID, op.Index)
	stored, err := r.store.Persist(ctx, key, storage.Source{URL: st.VideoURL, Data: st.Data, MIME: st.MIME})
	if err != nil {
		return nil, err
	}
	if stored.URL == "" {
		return nil, errors.New("storage returned no url")
	}
	now := r.now()
	return &domain.Artifact{
		ID:              domain.ArtifactID(batchID, op.Index),
		BatchID:         batchID,
		OperationIndex:  op.Index,
		URL:             stored.URL,
		SizeBytes:       stored.Size,
		DurationSeconds: op.Request.DurationSeconds,
		Prompt:          op.Request.Prompt,
		Provenance: domain.Provenance{
			Model:         r.generator.Model(),
			EstimatedCost: op.EstimatedCost,
			CompletedAt:   now,
			SourceURL:     st.VideoURL,
		},
		CreatedAt: now,
	}, nil
}

// abandon closes a batch whose settlement keeps failing. Unsettled artifacts
// are neither charged nor added to the library.
func (r *Reconciler) abandon(b *domain.Batch) {
	now := r.now()
	for i := range b.Operations {
		if b.Operations[i].Status == domain.OperationPending {
			b.Operations[i].Status = domain.OperationExpired
			b.Operations[i].Error = "settlement abandoned"
			b.Operations[i].UpdatedAt = now
			r.metrics.OperationTerminal(domain.OperationExpired)
		}
	}
	b.Status = domain.BatchStatusFailed
	b.CompletedAt = now
	if len(b.SettledIDs) == 0 {
		b.QuotaStatus = domain.QuotaNone
	} else {
		b.QuotaStatus = domain.QuotaPartialDeducted
	}
}

// advance derives the aggregate status. A batch with completed but unsettled
// artifacts stays generating so settlement is retried.
func (r *Reconciler) advance(b *domain.Batch, exhausted bool) {
	if len(b.Unsettled()) > 0 {
		return
	}
	switch {
	case b.AllTerminal():
		b.Status = domain.BatchStatusCompleted
	case exhausted:
		b.Status = domain.BatchStatusTimedOut
		now := r.now()
		for i := range b.Operations {
			if b.Operations[i].Status == domain.OperationPending {
				b.Operations[i].Status = domain.OperationExpired
				b.Operations[i].Error = "tick budget exhausted"
				b.Operations[i].UpdatedAt = now
				r.metrics.OperationTerminal(domain.OperationExpired)
			}
		}
	default:
		return
	}
	b.CompletedAt = r.now()
	switch {
	case len(b.SettledIDs) == 0:
		b.QuotaStatus = domain.QuotaNone
	case b.Status == domain.BatchStatusTimedOut:
		b.QuotaStatus = domain.QuotaPartialDeducted
	case b.QuotaStatus == domain.QuotaPending:
		b.QuotaStatus = domain.QuotaDeducted
	}
}
