package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/domain/ports/adapter"
	"ai-transform-service/internal/domain/ports/repository"
	"ai-transform-service/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const textContentType = "text/markdown; charset=utf-8"

// GenerationUseCase drives one session's generation job through its steps.
type GenerationUseCase interface {
	// Submit runs (or resumes) the job for sessionID. It never blocks on a job
	// owned by another worker; that case reports SubmitBusy.
	Submit(ctx context.Context, sessionID string) (*model.SubmitResult, error)
	// Status reports the job without doing any work.
	Status(ctx context.Context, sessionID string) (*model.SubmitResult, error)
}

// GenerationSwitch gates paid generation.
type GenerationSwitch interface {
	Enabled(ctx context.Context) bool
}

type GenerationDeps struct {
	Jobs     repository.JobRepository
	Sessions repository.SessionRepository
	Budget   repository.BudgetLedger
	Blobs    adapter.BlobStore
	Provider adapter.GenerationProvider
	Gate     *QualityGate
	Prompts  *PromptBuilder
	Switch   GenerationSwitch
	Sink     adapter.ProgressSink // optional
	Notifier adapter.Notifier     // optional
	Now      func() time.Time     // optional
	NewID    func() string        // optional
	Log      *zerolog.Logger
}

type GenerationOptions struct {
	Steps       []model.Step
	Lease       time.Duration
	StepTimeout time.Duration
	Retry       RetryPolicy
	// InspectionCost is charged with every image attempt when the quality
	// inspector is itself a paid call.
	InspectionCost int64
}

type generationUC struct {
	GenerationDeps
	steps          []model.Step
	lease          time.Duration
	stepTimeout    time.Duration
	retry          RetryPolicy
	inspectionCost int64
	log            *zerolog.Logger
}

var _ GenerationUseCase = (*generationUC)(nil)

func NewGenerationUseCase(deps GenerationDeps, opts GenerationOptions) (GenerationUseCase, error) {
	steps, err := model.SortSteps(opts.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if len(steps) == 0 || opts.Lease <= 0 {
		return nil, fmt.Errorf("%w: steps and lease are required", domain.ErrInvalidArgument)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return ulid.Make().String() }
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = opts.Lease / 2
	}
	if opts.StepTimeout >= opts.Lease {
		return nil, fmt.Errorf("%w: step timeout %s must be shorter than the lease %s", domain.ErrInvalidArgument, opts.StepTimeout, opts.Lease)
	}
	if opts.InspectionCost < 0 {
		return nil, fmt.Errorf("%w: negative inspection cost", domain.ErrInvalidArgument)
	}
	l := deps.Log.With().Str("component", "GenerationUC").Logger()
	return &generationUC{
		GenerationDeps: deps,
		steps:          steps,
		lease:          opts.Lease,
		stepTimeout:    opts.StepTimeout,
		retry:          opts.Retry,
		inspectionCost: opts.InspectionCost,
		log:            &l,
	}, nil
}

// jobRun is the worker-local state of one locked run.
type jobRun struct {
	sessionID string
	token     string
	session   *model.Session
	photo     adapter.Image
	completed []string
	degraded  []string
	log       zerolog.Logger
}

func (r *jobRun) result(status model.SubmitStatus, reason domain.ErrorKind) *model.SubmitResult {
	return &model.SubmitResult{
		SessionID:      r.sessionID,
		Status:         status,
		CompletedSteps: slices.Clone(r.completed),
		DegradedSteps:  slices.Clone(r.degraded),
		Reason:         reason,
	}
}

func (uc *generationUC) Submit(ctx context.Context, sessionID string) (*model.SubmitResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := uc.log.With().Str("session_id", sessionID).Logger()

	job, err := uc.Jobs.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get or create job: %w", err)
	}
	if job.State.Terminal() {
		return resultFromJob(job), nil
	}

	token, err := uc.Jobs.AcquireLock(ctx, sessionID, uc.lease)
	switch {
	case errors.Is(err, domain.ErrAlreadyLocked):
		log.Debug().Msg("job owned by another worker")
		metrics.IncJob(string(model.SubmitBusy), "")
		uc.publish(model.ProgressEvent{SessionID: sessionID, Type: model.EventJobBusy})
		res := resultFromJob(job)
		res.Status = model.SubmitBusy
		return res, nil
	case errors.Is(err, domain.ErrJobTerminal):
		if job, err = uc.Jobs.Get(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("reload job: %w", err)
		}
		return resultFromJob(job), nil
	case err != nil:
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	// Re-read under the lease so completed steps reflect the last owner's work.
	if job, err = uc.Jobs.Get(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("reload job: %w", err)
	}
	run := &jobRun{
		sessionID: sessionID,
		token:     token,
		completed: slices.Clone(job.CompletedSteps),
		degraded:  slices.Clone(job.DegradedSteps),
		log:       log.With().Int("attempt", job.Attempts).Logger(),
	}
	return uc.execute(ctx, run)
}

func (uc *generationUC) execute(ctx context.Context, run *jobRun) (*model.SubmitResult, error) {
	start := uc.Now()
	run.log.Info().Strs("completed_steps", run.completed).Msg("generation job started")
	uc.publish(model.ProgressEvent{SessionID: run.sessionID, Type: model.EventJobStarted})

	if err := uc.loadInputs(ctx, run); err != nil {
		return uc.fail(ctx, run, err)
	}

	for _, step := range uc.steps {
		if slices.Contains(run.completed, step.ID) {
			continue
		}
		uc.publish(model.ProgressEvent{SessionID: run.sessionID, Type: model.EventStepStarted, StepID: step.ID, Ordinal: step.Ordinal})

		art, err := uc.runStep(ctx, run, step)
		if err != nil {
			return uc.fail(ctx, run, fmt.Errorf("step %s: %w", step.ID, err))
		}

		run.completed = append(run.completed, step.ID)
		if art.QualityStatus == model.QualityDegraded {
			run.degraded = append(run.degraded, step.ID)
		}
		metrics.IncStep(step.ID, string(art.QualityStatus))
		run.log.Info().Str("step", step.ID).Str("quality", string(art.QualityStatus)).Int("attempts", art.Attempts).Msg("step completed")
		uc.publish(model.ProgressEvent{
			SessionID: run.sessionID, Type: model.EventStepCompleted,
			StepID: step.ID, Ordinal: step.Ordinal, QualityStatus: art.QualityStatus,
		})
	}

	if err := uc.Jobs.MarkCompleted(ctx, run.sessionID, run.token); err != nil {
		return uc.fail(ctx, run, fmt.Errorf("mark completed: %w", err))
	}
	metrics.IncJob(string(model.SubmitCompleted), "")
	run.log.Info().
		Str("status", string(model.SubmitCompleted)).
		Strs("degraded_steps", run.degraded).
		Dur("duration", uc.Now().Sub(start)).
		Msg("generation job finished")
	uc.publish(model.ProgressEvent{SessionID: run.sessionID, Type: model.EventJobCompleted})
	return run.result(model.SubmitCompleted, domain.KindNone), nil
}

func (uc *generationUC) loadInputs(ctx context.Context, run *jobRun) error {
	session, err := uc.Sessions.Read(ctx, run.sessionID)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	data, contentType, err := uc.Blobs.Get(ctx, session.PhotoPath)
	if err != nil {
		return fmt.Errorf("read source photo: %w", err)
	}
	if session.PhotoContentType != "" {
		contentType = session.PhotoContentType
	}
	run.session = session
	run.photo = adapter.Image{Data: data, ContentType: contentType}
	return nil
}

// runStep produces, gates and persists one step's artifact.
func (uc *generationUC) runStep(ctx context.Context, run *jobRun, step model.Step) (*model.Artifact, error) {
	if !uc.Switch.Enabled(ctx) {
		return nil, domain.ErrGenerationDisabled
	}
	cost := uc.attemptCost(step)
	ok, err := uc.Budget.TryReserve(ctx, cost)
	if err != nil {
		return nil, fmt.Errorf("reserve budget: %w", err)
	}
	if !ok {
		metrics.IncBudgetDenied()
		return nil, domain.ErrBudgetExceeded
	}
	metrics.AddBudgetSpend("reserve", cost)

	var (
		art   *model.Artifact
		hints []string
	)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !uc.Switch.Enabled(ctx) {
				run.log.Warn().Str("step", step.ID).Msg("generation disabled during correction; keeping degraded artifact")
				art.QualityStatus = model.QualityDegraded
				break
			}
			if err := uc.Budget.RecordSpend(ctx, cost); err != nil {
				return nil, fmt.Errorf("record correction spend: %w", err)
			}
			metrics.AddBudgetSpend("record", cost)
		}

		prompt, err := uc.Prompts.Build(run.session.Profile, step, uc.steps, hints)
		if err != nil {
			return nil, err
		}
		metrics.ObservePromptTokens(step.PromptTemplateRef, uc.Prompts.Tokens(prompt))

		out, err := uc.call(ctx, run, step, prompt)
		if err != nil {
			if art != nil && ctx.Err() == nil && !errors.Is(err, domain.ErrLockLost) {
				run.log.Warn().Err(err).Str("step", step.ID).Msg("correction call failed; keeping degraded artifact")
				art.QualityStatus = model.QualityDegraded
				break
			}
			return nil, err
		}

		art = &model.Artifact{
			ID:          uc.NewID(),
			SessionID:   run.sessionID,
			StepID:      step.ID,
			Ordinal:     step.Ordinal,
			ContentType: out.ContentType,
			Data:        out.Data,
			Attempts:    attempt + 1,
			CreatedAt:   uc.Now(),
		}
		v := uc.Gate.Evaluate(ctx, art, QualityContext{Step: step, Attempt: attempt})
		if v.Kind == VerdictAccepted {
			art.QualityStatus = model.QualityAccepted
			break
		}
		art.QualityHint = v.Hint
		if v.Kind == VerdictDegraded || attempt >= step.MaxQualityRetries {
			art.QualityStatus = model.QualityDegraded
			break
		}
		run.log.Debug().Str("step", step.ID).Str("hint", v.Hint).Int("attempt", attempt+1).Msg("quality check failed; retrying with correction")
		hints = append(hints, v.Hint)
	}

	if err := uc.persist(ctx, run, art); err != nil {
		return nil, err
	}
	return art, nil
}

func (uc *generationUC) persist(ctx context.Context, run *jobRun, art *model.Artifact) error {
	if err := uc.renew(ctx, run); err != nil {
		return err
	}
	path := fmt.Sprintf("sessions/%s/%s/%s%s", run.sessionID, art.StepID, art.ID, extensionFor(art.ContentType))
	stored, err := uc.Blobs.Put(ctx, path, art.Data, art.ContentType)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}
	art.Path = stored
	if err := uc.Sessions.WriteArtifacts(ctx, run.sessionID, []*model.Artifact{art}); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return uc.Jobs.RecordStepCompleted(ctx, run.sessionID, run.token, art.StepID, art.QualityStatus)
}

// attemptCost is what one provider attempt for step may spend, including a
// paid inspection of the produced image.
func (uc *generationUC) attemptCost(step model.Step) int64 {
	if step.Kind == model.StepKindText {
		return step.CostUnits
	}
	return step.CostUnits + uc.inspectionCost
}

// call invokes the provider through the retry executor, renewing the lease
// before every attempt so a step never outlives it. Exhausted transient
// failures escalate to ErrProviderUnavailable; fatal ones to ErrProviderRejected.
func (uc *generationUC) call(ctx context.Context, run *jobRun, step model.Step, prompt string) (adapter.Image, error) {
	provider := uc.Provider.Name()
	policy := uc.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.IncProviderRetry(provider)
		run.log.Warn().Err(err).Str("step", step.ID).Int("attempt", attempt).Dur("backoff", delay).Msg("provider call failed; retrying")
	}

	var leaseErr error
	out, err := WithRetry(ctx, policy, func(ctx context.Context) (adapter.Image, error) {
		if leaseErr = uc.renew(ctx, run); leaseErr != nil {
			return adapter.Image{}, leaseErr
		}
		cctx, cancel := context.WithTimeout(ctx, uc.stepTimeout)
		defer cancel()

		began := time.Now()
		var (
			img adapter.Image
			err error
		)
		if step.Kind == model.StepKindText {
			var text string
			text, err = uc.Provider.Complete(cctx, prompt, run.photo)
			img = adapter.Image{Data: []byte(text), ContentType: textContentType}
		} else {
			img, err = uc.Provider.Generate(cctx, prompt, run.photo)
		}
		if err == nil && len(img.Data) == 0 {
			err = domain.ErrEmptyOutput
		}
		metrics.ObserveProviderCall(provider, string(step.Kind), time.Since(began), err == nil)
		return img, err
	})
	if err == nil {
		return out, nil
	}
	if leaseErr != nil {
		return adapter.Image{}, leaseErr
	}
	if ctx.Err() != nil {
		return adapter.Image{}, ctx.Err()
	}
	if Classify(err) == Retryable {
		return adapter.Image{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return adapter.Image{}, fmt.Errorf("%w: %v", domain.ErrProviderRejected, err)
}

func (uc *generationUC) renew(ctx context.Context, run *jobRun) error {
	ok, err := uc.Jobs.RenewLock(ctx, run.sessionID, run.token, uc.lease)
	if err != nil {
		return fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		return domain.ErrLockLost
	}
	return nil
}

// fail terminates the run. LockLost and caller cancellation leave the job to
// its current owner or to lease expiry; every other error marks it failed.
func (uc *generationUC) fail(ctx context.Context, run *jobRun, cause error) (*model.SubmitResult, error) {
	kind := domain.KindOf(cause)

	if kind == domain.KindLockLost {
		return uc.lockLost(run, cause), nil
	}
	if ctx.Err() != nil {
		run.log.Warn().Err(cause).Msg("generation abandoned by caller; lease will expire")
		return nil, ctx.Err()
	}

	if err := uc.Jobs.MarkFailed(ctx, run.sessionID, run.token, kind); err != nil {
		if errors.Is(err, domain.ErrLockLost) {
			return uc.lockLost(run, err), nil
		}
		run.log.Error().Err(err).Msg("could not mark job failed")
		return nil, fmt.Errorf("mark failed: %w", err)
	}

	metrics.IncJob(string(model.SubmitFailed), string(kind))
	run.log.Info().Err(cause).Str("status", string(model.SubmitFailed)).Str("reason", string(kind)).Msg("generation job finished")
	uc.publish(model.ProgressEvent{SessionID: run.sessionID, Type: model.EventJobFailed, Reason: kind})
	if uc.Notifier != nil {
		if err := uc.Notifier.JobFailed(ctx, run.sessionID, kind); err != nil {
			run.log.Error().Err(err).Msg("failed to notify operators")
		}
	}
	return run.result(model.SubmitFailed, kind), nil
}

func (uc *generationUC) lockLost(run *jobRun, cause error) *model.SubmitResult {
	metrics.IncLockLost()
	metrics.IncJob(string(model.SubmitBusy), string(domain.KindLockLost))
	run.log.Warn().Err(cause).Msg("lock lost; another worker owns the job")
	return run.result(model.SubmitBusy, domain.KindNone)
}

func (uc *generationUC) Status(ctx context.Context, sessionID string) (*model.SubmitResult, error) {
	job, err := uc.Jobs.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res := resultFromJob(job)
	// A lapsed lease means the owner died; the job waits for recovery.
	if res.Status == model.SubmitBusy && !job.LockHeld(uc.Now()) {
		res.Status = model.SubmitPending
	}
	return res, nil
}

func (uc *generationUC) publish(ev model.ProgressEvent) {
	if uc.Sink == nil {
		return
	}
	ev.Total = len(uc.steps)
	ev.At = uc.Now()
	uc.Sink.Publish(ev)
}

func resultFromJob(job *model.Job) *model.SubmitResult {
	res := &model.SubmitResult{
		SessionID:      job.SessionID,
		CompletedSteps: slices.Clone(job.CompletedSteps),
		DegradedSteps:  slices.Clone(job.DegradedSteps),
		Reason:         job.LastError,
	}
	switch job.State {
	case model.JobStateCompleted:
		res.Status = model.SubmitCompleted
	case model.JobStateFailed:
		res.Status = model.SubmitFailed
	case model.JobStateLocked, model.JobStateInProgress:
		res.Status = model.SubmitBusy
	default:
		res.Status = model.SubmitPending
	}
	return res
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "text/markdown", "text/plain":
		return ".md"
	default:
		return ".bin"
	}
}
