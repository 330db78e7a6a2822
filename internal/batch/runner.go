// Package batch runs submitted balance-query jobs against partner gateways.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nexcred/backoffice/internal/gateway"
	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

// DefaultMaxIdentifiers caps the identifier list of a single submission.
const DefaultMaxIdentifiers = 5000

// Options tunes the runner.
type Options struct {
	// RequestsPerSecond paces partner calls within a run. Zero means no
	// pacing.
	RequestsPerSecond float64
	// MaxIdentifiers overrides DefaultMaxIdentifiers when positive.
	MaxIdentifiers int
}

// Runner executes batch jobs. Each submission creates a job row and a
// detached run goroutine; identifiers within a run are processed strictly in
// order, one partner call at a time.
type Runner struct {
	store    store.Store
	registry *gateway.Registry
	opts     Options

	mu       sync.Mutex
	limiters map[model.Provider]*rate.Limiter

	runs sync.WaitGroup
}

// NewRunner creates a Runner over the given store and gateway registry.
func NewRunner(st store.Store, registry *gateway.Registry, opts Options) *Runner {
	return &Runner{
		store:    st,
		registry: registry,
		opts:     opts,
		limiters: make(map[model.Provider]*rate.Limiter),
	}
}

// SubmitRequest describes one batch submission.
type SubmitRequest struct {
	Provider    model.Provider
	FileName    string
	Identifiers []string
	OwnerID     string
	OwnerEmail  string
}

// Submit validates the request, persists the job and starts its run in the
// background. The returned job snapshot has status processing and processed 0;
// progress is observed by polling the store.
func (r *Runner) Submit(ctx context.Context, req SubmitRequest) (*model.BatchJob, error) {
	if _, err := r.registry.Lookup(req.Provider); err != nil {
		return nil, err
	}
	if len(req.Identifiers) == 0 {
		return nil, eris.New("batch: lista de identificadores vazia")
	}
	maxIdentifiers := r.opts.MaxIdentifiers
	if maxIdentifiers <= 0 {
		maxIdentifiers = DefaultMaxIdentifiers
	}
	if len(req.Identifiers) > maxIdentifiers {
		return nil, eris.Errorf("batch: lote com %d identificadores excede o limite de %d", len(req.Identifiers), maxIdentifiers)
	}

	identifiers := make([]string, 0, len(req.Identifiers))
	for _, id := range req.Identifiers {
		if digits := model.DigitsOnly(id); digits != "" {
			identifiers = append(identifiers, digits)
		}
	}
	if len(identifiers) == 0 {
		return nil, eris.New("batch: nenhum identificador válido no lote")
	}

	now := time.Now().UTC()
	job := &model.BatchJob{
		ID:          model.NewJobID(req.Provider, now),
		Provider:    req.Provider,
		FileName:    req.FileName,
		Identifiers: identifiers,
		Total:       len(identifiers),
		Status:      model.JobStatusProcessing,
		OwnerID:     req.OwnerID,
		OwnerEmail:  req.OwnerEmail,
		CreatedAt:   now,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "batch: create job")
	}

	if err := r.store.AppendActivity(ctx, &model.ActivityLogEntry{
		ID:        uuid.New().String(),
		UserID:    req.OwnerID,
		UserEmail: req.OwnerEmail,
		Action:    model.ActionBatchSubmitted,
		Provider:  req.Provider,
		Detail:    fmt.Sprintf("%s: %d identificadores", job.FileName, job.Total),
		CreatedAt: now,
	}); err != nil {
		zap.L().Warn("batch: append activity failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	r.runs.Add(1)
	go func() {
		defer r.runs.Done()
		// The run outlives the submission request on purpose.
		r.run(context.Background(), job)
	}()

	snapshot := *job
	return &snapshot, nil
}

// Wait blocks until every in-flight run finishes. Used for graceful shutdown
// and in tests.
func (r *Runner) Wait() {
	r.runs.Wait()
}

// run drives one job to a terminal state. It never panics out: any failure is
// recorded on the job row.
func (r *Runner) run(ctx context.Context, job *model.BatchJob) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("batch: run panicked",
				zap.String("job_id", job.ID), zap.Any("panic", rec))
			r.fail(ctx, job.ID, fmt.Sprintf("erro interno: %v", rec))
		}
	}()

	log := zap.L().With(zap.String("job_id", job.ID), zap.String("provider", string(job.Provider)))
	log.Info("batch: run started", zap.Int("total", job.Total))

	gw, err := r.registry.Lookup(job.Provider)
	if err != nil {
		r.fail(ctx, job.ID, err.Error())
		return
	}

	creds, err := r.store.GetCredentials(ctx, job.OwnerID, job.Provider)
	if err != nil {
		r.fail(ctx, job.ID, fmt.Sprintf("erro ao carregar credenciais: %v", err))
		return
	}
	if creds == nil {
		r.fail(ctx, job.ID, fmt.Sprintf("credenciais %s não cadastradas", job.Provider))
		return
	}

	// Tokens are obtained fresh per run, never reused across jobs.
	session, err := gw.Authenticate(ctx, creds)
	if err != nil {
		log.Warn("batch: authentication failed", zap.Error(err))
		r.fail(ctx, job.ID, fmt.Sprintf("falha de autenticação: %v", err))
		return
	}

	limiter := r.limiter(job.Provider)
	for _, identifier := range job.Identifiers {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				r.fail(ctx, job.ID, fmt.Sprintf("limitador interrompido: %v", err))
				return
			}
		}

		outcome := gw.QueryBalance(ctx, session, identifier)
		if err := r.record(ctx, job, identifier, outcome); err != nil {
			// A store failure aborts the run but keeps the progress already
			// persisted.
			log.Error("batch: persist result failed",
				zap.String("identifier", identifier), zap.Error(err))
			r.fail(ctx, job.ID, fmt.Sprintf("falha ao gravar resultado: %v", err))
			return
		}

		if err := r.store.IncrementJobProgress(ctx, job.ID); err != nil {
			log.Error("batch: increment progress failed",
				zap.String("identifier", identifier), zap.Error(err))
			r.fail(ctx, job.ID, fmt.Sprintf("falha ao avançar progresso: %v", err))
			return
		}
	}

	if err := r.store.FinalizeJob(ctx, job.ID, model.JobStatusCompleted, ""); err != nil {
		log.Error("batch: finalize failed", zap.Error(err))
		return
	}
	log.Info("batch: run completed", zap.Int("total", job.Total))
}

// record writes the result row for one identifier. Accepted outcomes write
// nothing: the webhook receiver owns that key until the partner calls back.
func (r *Runner) record(ctx context.Context, job *model.BatchJob, identifier string, outcome gateway.Outcome) error {
	if outcome.Kind == gateway.OutcomeAccepted {
		return nil
	}

	status := model.ResultStatusError
	if outcome.Kind == gateway.OutcomeSuccess {
		status = model.ResultStatusSuccess
	}

	return r.store.UpsertResult(ctx, &model.ResultRecord{
		CorrelationKey: model.CorrelationKey(job.Provider, identifier),
		Provider:       job.Provider,
		Identifier:     identifier,
		Status:         status,
		Message:        outcome.Message,
		Balance:        outcome.Balance,
		RawPayload:     outcome.Raw,
		ReceivedAt:     time.Now().UTC(),
	})
}

// fail moves the job to error, keeping whatever progress was already
// persisted. Finalize errors here are logged and swallowed: the job may have
// been finalized by a concurrent path already.
func (r *Runner) fail(ctx context.Context, jobID, msg string) {
	if err := r.store.FinalizeJob(ctx, jobID, model.JobStatusError, msg); err != nil {
		zap.L().Warn("batch: finalize to error failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// limiter returns the shared pacing limiter for a provider.
func (r *Runner) limiter(provider model.Provider) *rate.Limiter {
	if r.opts.RequestsPerSecond <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.opts.RequestsPerSecond), 1)
		r.limiters[provider] = l
	}
	return l
}
