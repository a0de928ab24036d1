package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultWebhookRetryIntervals is the wait before each retry.
var defaultWebhookRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// EventWithdrawalSubmitted is sent once per accepted withdrawal.
const EventWithdrawalSubmitted = "WITHDRAWAL_SUBMITTED"

// SignatureHeader carries the "t=<unix>,v1=<hex>" signature of the body.
const SignatureHeader = "X-Webhook-Signature"

// WebhookPayload is the JSON body POSTed to the webhook URL.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
}

// WebhookPayloadData describes the accepted withdrawal.
type WebhookPayloadData struct {
	WithdrawalID  string `json:"withdrawal_id"`
	QuotationID   string `json:"quotation_id"`
	AccountID     string `json:"account_id"`
	Status        string `json:"status"`
	AmountWei     string `json:"amount_wei"`
	FeeWei        string `json:"fee_wei"`
	Currency      string `json:"currency"`
	OperationType string `json:"operation_type"`
	Strategy      string `json:"strategy"`
	Timestamp     int64  `json:"timestamp"`
}

// WebhookConfig configures delivery. An empty URL disables webhooks.
type WebhookConfig struct {
	URL            string
	Secret         string
	Currency       string
	Timeout        time.Duration
	RetryIntervals []time.Duration
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookServiceImpl implements ports.WebhookService. Deliveries run in the
// background; every attempt is recorded in the WebhookRepository.
type WebhookServiceImpl struct {
	cfg        WebhookConfig
	repo       ports.WebhookRepository
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	now        func() time.Time

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
	log  zerolog.Logger
}

// NewWebhookService creates a new webhook service. repo may be nil.
func NewWebhookService(
	cfg WebhookConfig,
	repo ports.WebhookRepository,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookServiceImpl {
	if cfg.RetryIntervals == nil {
		cfg.RetryIntervals = defaultWebhookRetryIntervals
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WebhookServiceImpl{
		cfg:        cfg,
		repo:       repo,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		now:        time.Now,
		stop:       make(chan struct{}),
		log:        log,
	}
}

// EnqueueWithdrawal schedules delivery of a WITHDRAWAL_SUBMITTED event.
func (s *WebhookServiceImpl) EnqueueWithdrawal(_ context.Context, w *domain.Withdrawal) error {
	if s.cfg.URL == "" {
		s.log.Debug().Str("withdrawal_id", w.ID.String()).Msg("webhook: no URL configured, skipping")
		return nil
	}

	payload := WebhookPayload{
		EventType: EventWithdrawalSubmitted,
		Data: WebhookPayloadData{
			WithdrawalID:  w.ID.String(),
			QuotationID:   w.QuotationID,
			AccountID:     w.AccountID.String(),
			Status:        string(w.Status),
			AmountWei:     bigString(w.AmountWei),
			FeeWei:        bigString(w.FeeWei),
			Currency:      s.cfg.Currency,
			OperationType: string(w.OperationType),
			Strategy:      string(w.Strategy),
			Timestamp:     s.now().Unix(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetries(w, body)
	}()
	return nil
}

// Close abandons pending retries and waits for running attempts.
func (s *WebhookServiceImpl) Close(ctx context.Context) error {
	s.once.Do(func() { close(s.stop) })
	return waitGroup(ctx, &s.wg)
}

func (s *WebhookServiceImpl) deliverWithRetries(w *domain.Withdrawal, body []byte) {
	log := s.log.With().Str("withdrawal_id", w.ID.String()).Logger()

	for attempt := 1; attempt <= len(s.cfg.RetryIntervals)+1; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(s.cfg.RetryIntervals[attempt-2]):
			case <-s.stop:
				log.Warn().Int("attempt", attempt).Msg("webhook: shutting down, retries abandoned")
				return
			}
		}

		status, err := s.attempt(body)
		delivered := err == nil && status >= 200 && status < 300
		s.record(w, body, attempt, status, err, delivered)

		switch {
		case delivered:
			log.Info().Int("attempt", attempt).Int("status", status).Msg("webhook: delivered successfully")
			return
		case err != nil:
			log.Warn().Err(err).Int("attempt", attempt).Msg("webhook: delivery failed")
		default:
			log.Warn().Int("attempt", attempt).Int("status", status).Msg("webhook: non-2xx response, retrying")
		}
	}

	log.Error().Msg("webhook: all retry attempts exhausted")
}

func (s *WebhookServiceImpl) attempt(body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, s.sigSvc.Sign(s.cfg.Secret, s.now().Unix(), body))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (s *WebhookServiceImpl) record(w *domain.Withdrawal, body []byte, attempt, status int, err error, delivered bool) {
	if s.repo == nil {
		return
	}
	entry := &domain.WebhookDeliveryLog{
		ID:           uuid.New(),
		WithdrawalID: w.ID,
		AccountID:    w.AccountID,
		WebhookURL:   s.cfg.URL,
		Payload:      string(body),
		Attempt:      attempt,
		Status:       domain.WebhookStatusFailed,
		CreatedAt:    s.now().UTC(),
	}
	if status != 0 {
		entry.HTTPStatus = &status
	}
	if err != nil {
		msg := err.Error()
		entry.LastError = &msg
	}
	if delivered {
		entry.Status = domain.WebhookStatusDelivered
	}
	if err := s.repo.Create(context.Background(), entry); err != nil {
		s.log.Warn().Err(err).Str("withdrawal_id", w.ID.String()).Msg("webhook: failed to record delivery attempt")
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
