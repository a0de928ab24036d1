package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/apperror"
	"secure-withdrawal-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultHeartbeat = 15 * time.Second

// SessionHandler exposes withdrawal sessions: commands, views and the view
// event stream.
type SessionHandler struct {
	sessions  ports.SessionManager
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler. heartbeat <= 0 uses 15s.
func NewSessionHandler(sessions ports.SessionManager, heartbeat time.Duration, log zerolog.Logger) *SessionHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &SessionHandler{sessions: sessions, heartbeat: heartbeat, log: log}
}

// Open handles POST /api/v1/withdrawals/sessions. The body is optional.
func (h *SessionHandler) Open(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	// The session manager resolves the tag against the supported locales.
	locale := req.Locale
	if locale == "" {
		locale = c.Query("locale")
	}
	if locale == "" {
		locale = firstLanguage(c.GetHeader("Accept-Language"))
	}

	session, err := h.sessions.Open(c.Request.Context(), accountID, locale)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Location", c.Request.URL.Path+"/"+session.ID())
	response.Created(c, dto.NewSessionView(session.View()))
}

// Get handles GET /api/v1/withdrawals/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	response.OK(c, dto.NewSessionView(session.View()))
}

// SetAmount handles PUT /api/v1/withdrawals/sessions/:id/amount.
func (h *SessionHandler) SetAmount(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req dto.SetAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	session.SetAmount(req.Amount)
	response.OK(c, dto.NewSessionView(session.View()))
}

// RequestQuotation handles POST /api/v1/withdrawals/sessions/:id/quotation.
// A pricing failure is reported on the view's screen, not as an HTTP error.
func (h *SessionHandler) RequestQuotation(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.RequestQuotation(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSessionView(session.View()))
}

// ConfirmQuotation handles POST /api/v1/withdrawals/sessions/:id/confirm.
func (h *SessionHandler) ConfirmQuotation(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.ConfirmQuotation(); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewSessionView(session.View()))
}

// Sign handles POST /api/v1/withdrawals/sessions/:id/sign. It answers once
// the signing state is terminal; a caller that disconnects earlier does not
// cancel a submission already handed to the ledger.
func (h *SessionHandler) Sign(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req dto.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	strategy, _ := domain.ParseSigningStrategy(req.Strategy)

	state, err := session.SelectStrategy(c.Request.Context(), strategy)
	if err != nil {
		if c.Request.Context().Err() != nil {
			h.log.Info().Str("session_id", session.ID()).Msg("client left before signing finished")
			return
		}
		response.Error(c, err)
		return
	}

	response.OK(c, dto.SignResponse{
		Signing: state,
		View:    dto.NewSessionView(session.View()),
	})
}

// Dismiss handles POST /api/v1/withdrawals/sessions/:id/dismiss.
func (h *SessionHandler) Dismiss(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Dismiss()
	response.OK(c, dto.NewSessionView(session.View()))
}

// Close handles DELETE /api/v1/withdrawals/sessions/:id.
func (h *SessionHandler) Close(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	if err := h.sessions.Close(accountID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Events handles GET /api/v1/withdrawals/sessions/:id/events as a
// server-sent event stream. Every view change is sent as a "view" event;
// slow readers only get the latest view. The stream ends with a "closed"
// event when the session closes.
func (h *SessionHandler) Events(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	updates := make(chan domain.WithdrawalView, 1)
	cancel := session.Subscribe(func(v domain.WithdrawalView) {
		for {
			select {
			case updates <- v:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	send := func(event string, data any) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case v := <-updates:
			send("view", dto.NewSessionView(v))
		case <-heartbeat.C:
			send("ping", time.Now().Unix())
		case <-session.Done():
			select {
			case v := <-updates:
				send("view", dto.NewSessionView(v))
			default:
			}
			send("closed", gin.H{"session_id": session.ID()})
			return
		}
	}
}

func (h *SessionHandler) session(c *gin.Context) (ports.WithdrawalSession, bool) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return nil, false
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, apperror.ErrNotFound("Session"))
		return nil, false
	}
	session, err := h.sessions.Get(accountID, id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return session, true
}
