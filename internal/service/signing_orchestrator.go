package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/metrics"
	"secure-withdrawal-gateway/pkg/observable"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// User-facing outcome messages of a signing run.
const (
	MsgSubmitted    = "Transaction signed and submitted successfully."
	MsgRejected     = "The transaction could not be signed."
	msgSignFailed   = "An error occurred during signing: %s"
	msgSubmitFailed = "An error occurred during submission: %s"
)

const defaultSubmitTimeout = 30 * time.Second

// SigningOrchestratorImpl drives Idle -> InProgress -> Success|Error for one
// session. Once a challenge is signed the submission runs exactly once on a
// context detached from the caller, so abandoning Execute never leaves a
// signed artifact unsubmitted.
type SigningOrchestratorImpl struct {
	accountID     uuid.UUID
	signer        ports.SignatureProvider
	submitter     ports.SubmissionService
	submitTimeout time.Duration
	state         *observable.Cell[domain.SigningState]
	runs          *Submissions
	log           zerolog.Logger
}

// Submissions counts signing runs still in flight. After Close it admits no
// new runs, so Wait never overlaps an Add.
type Submissions struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (s *Submissions) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Submissions) end() { s.wg.Done() }

// Close stops admitting runs. Runs already admitted continue.
func (s *Submissions) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Wait blocks until admitted runs finish or ctx ends.
func (s *Submissions) Wait(ctx context.Context) error {
	return waitGroup(ctx, &s.wg)
}

// NewSigningOrchestrator creates an orchestrator in the Idle state.
// runs tracks signing runs; pass a shared tracker to drain several
// orchestrators at once, or nil for a private one.
func NewSigningOrchestrator(
	accountID uuid.UUID,
	signer ports.SignatureProvider,
	submitter ports.SubmissionService,
	submitTimeout time.Duration,
	runs *Submissions,
	log zerolog.Logger,
) *SigningOrchestratorImpl {
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	if runs == nil {
		runs = &Submissions{}
	}
	return &SigningOrchestratorImpl{
		accountID:     accountID,
		signer:        signer,
		submitter:     submitter,
		submitTimeout: submitTimeout,
		state:         observable.NewCell(domain.IdleState()),
		runs:          runs,
		log:           log,
	}
}

// State returns the current state.
func (o *SigningOrchestratorImpl) State() domain.SigningState {
	return o.state.Get()
}

// Subscribe delivers the current state and then every transition in order.
func (o *SigningOrchestratorImpl) Subscribe(fn func(domain.SigningState)) func() {
	return o.state.Subscribe(fn)
}

// Execute signs q's challenge with strategy and submits the artifact.
//
// The switch to InProgress is visible to subscribers before Execute blocks.
// A second call while InProgress is rejected. Execute returns the terminal
// state, or ctx.Err() when the caller leaves first; in that case a started
// submission keeps running and its outcome still lands in State. Once the
// run tracker is closed Execute fails with SYS_005 and stays Idle.
func (o *SigningOrchestratorImpl) Execute(
	ctx context.Context,
	q *domain.Quotation,
	strategy domain.SigningStrategy,
	op domain.OperationType,
) (domain.SigningState, error) {
	if q == nil {
		return o.State(), apperror.ErrNoQuotation()
	}

	if !o.runs.begin() {
		return o.State(), apperror.ErrShuttingDown()
	}

	started := o.state.Update(func(cur domain.SigningState) (domain.SigningState, bool) {
		if cur.Status == domain.SigningInProgress {
			return cur, false
		}
		return domain.InProgressState(), true
	})
	if !started {
		o.runs.end()
		return o.State(), apperror.ErrSigningInProgress()
	}

	log := o.log.With().
		Str("quotation_id", q.ID).
		Str("strategy", string(strategy)).
		Str("operation", string(op)).
		Logger()

	artifact, err := o.signer.Sign(ctx, q.Challenge, strategy)
	if err != nil {
		log.Warn().Err(err).Msg("signing failed, nothing submitted")
		o.runs.end()
		return o.finish(domain.ErrorState(fmt.Sprintf(msgSignFailed, userMessage(err))), "sign_error"), nil
	}

	done := make(chan domain.SigningState, 1)
	go func() {
		defer o.runs.end()
		done <- o.submit(context.WithoutCancel(ctx), q, artifact, strategy, log)
	}()

	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		log.Info().Msg("caller left during submission, outcome will be recorded in state")
		return domain.InProgressState(), ctx.Err()
	}
}

// submit runs the single submission attempt of an Execute call.
func (o *SigningOrchestratorImpl) submit(
	base context.Context,
	q *domain.Quotation,
	artifact domain.SignedArtifact,
	strategy domain.SigningStrategy,
	log zerolog.Logger,
) (result domain.SigningState) {
	ctx, cancel := context.WithTimeout(base, o.submitTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("submission panicked")
			result = o.finish(domain.ErrorState(fmt.Sprintf(msgSubmitFailed, "internal error")), "submit_error")
		}
	}()

	start := time.Now()
	accepted, err := o.submitter.Submit(ctx, o.accountID, q.ID, artifact, strategy)
	metrics.SubmissionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		log.Error().Err(err).Msg("submission failed")
		return o.finish(domain.ErrorState(fmt.Sprintf(msgSubmitFailed, userMessage(err))), "submit_error")
	case !accepted:
		log.Warn().Msg("submission rejected")
		return o.finish(domain.ErrorState(MsgRejected), "rejected")
	default:
		log.Info().Msg("submission accepted")
		return o.finish(domain.SuccessState(MsgSubmitted), "success")
	}
}

func (o *SigningOrchestratorImpl) finish(s domain.SigningState, outcome string) domain.SigningState {
	o.state.Set(s)
	metrics.SigningOutcomesTotal.WithLabelValues(outcome).Inc()
	return s
}

// Reset returns a terminal state to Idle. It does nothing and reports false
// while a run is InProgress.
func (o *SigningOrchestratorImpl) Reset() bool {
	busy := false
	o.state.Update(func(cur domain.SigningState) (domain.SigningState, bool) {
		switch cur.Status {
		case domain.SigningInProgress:
			busy = true
			return cur, false
		case domain.SigningIdle:
			return cur, false
		}
		return domain.IdleState(), true
	})
	return !busy
}

// Wait blocks until every run started by this orchestrator (or by any
// orchestrator sharing its tracker) has finished.
func (o *SigningOrchestratorImpl) Wait(ctx context.Context) error {
	return o.runs.Wait(ctx)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// userMessage strips internal detail from AppErrors.
func userMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
