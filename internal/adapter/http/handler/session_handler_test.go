package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/dto"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sessionFixture struct {
	manager *mocks.MockSessionManager
	session *mocks.MockWithdrawalSession
	handler *SessionHandler
	id      string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	ctrl := gomock.NewController(t)
	f := &sessionFixture{
		manager: mocks.NewMockSessionManager(ctrl),
		session: mocks.NewMockWithdrawalSession(ctrl),
		id:      uuid.NewString(),
	}
	f.handler = NewSessionHandler(f.manager, 10*time.Millisecond, zerolog.Nop())
	f.session.EXPECT().ID().Return(f.id).AnyTimes()
	return f
}

// request builds an authenticated context for the session and expects the
// manager lookup.
func (f *sessionFixture) request(method, suffix string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	c, w := newContext(method, "/api/v1/withdrawals/sessions/"+f.id+suffix, body)
	c.Params = gin.Params{{Key: "id", Value: f.id}}
	accountID := authenticate(c)
	f.manager.EXPECT().Get(accountID, f.id).Return(f.session, nil)
	return c, w
}

func sampleView(id string) domain.WithdrawalView {
	return domain.WithdrawalView{
		SessionID:    id,
		Locale:       "en_US",
		Currency:     "ETH",
		AmountInput:  "0.5",
		AmountWei:    wei("500000000000000000"),
		BalanceWei:   wei("20310000000000000000"),
		IsCtaEnabled: true,
		Signing:      domain.IdleState(),
		Screen:       domain.IdleScreen(),
	}
}

func TestSessionOpen_UsesAcceptLanguage(t *testing.T) {
	f := newSessionFixture(t)
	c, w := newContext(http.MethodPost, "/api/v1/withdrawals/sessions", nil)
	c.Request.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
	accountID := authenticate(c)

	f.manager.EXPECT().Open(gomock.Any(), accountID, "fr-FR").Return(f.session, nil)
	f.session.EXPECT().View().Return(sampleView(f.id))

	f.handler.Open(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/withdrawals/sessions/"+f.id, w.Header().Get("Location"))
	var view dto.SessionViewResponse
	decode(t, w, &view)
	assert.Equal(t, f.id, view.SessionID)
	assert.Equal(t, "500000000000000000", view.AmountWei)
	assert.Empty(t, view.RemainingWei)
	assert.Equal(t, domain.ScreenIdle, view.Screen.Step)
}

func TestSessionOpen_BodyLocaleWins(t *testing.T) {
	f := newSessionFixture(t)
	c, w := newContext(http.MethodPost, "/api/v1/withdrawals/sessions?locale=ja_JP", dto.OpenSessionRequest{Locale: "de_DE"})
	accountID := authenticate(c)

	f.manager.EXPECT().Open(gomock.Any(), accountID, "de_DE").Return(f.session, nil)
	f.session.EXPECT().View().Return(sampleView(f.id))

	f.handler.Open(c)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSessionOpen_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "feature disabled", err: apperror.ErrFeatureDisabled("withdrawal"), wantCode: http.StatusForbidden, wantErr: "WDR_007"},
		{name: "suspended", err: apperror.ErrAccountSuspended(), wantCode: http.StatusForbidden, wantErr: "AUTH_002"},
		{name: "shutting down", err: apperror.ErrShuttingDown(), wantCode: http.StatusServiceUnavailable, wantErr: "SYS_005"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture(t)
			c, w := newContext(http.MethodPost, "/api/v1/withdrawals/sessions", nil)
			authenticate(c)
			f.manager.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, tc.err)

			f.handler.Open(c)

			assert.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, tc.wantErr, decode(t, w, nil).ErrorCode)
		})
	}
}

func TestSessionGet_MalformedIDIsNotFound(t *testing.T) {
	f := newSessionFixture(t)
	c, w := newContext(http.MethodGet, "/api/v1/withdrawals/sessions/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	authenticate(c)

	f.handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "WDR_008", decode(t, w, nil).ErrorCode)
}

func TestSessionGet_ForeignSessionIsNotFound(t *testing.T) {
	f := newSessionFixture(t)
	c, w := newContext(http.MethodGet, "/api/v1/withdrawals/sessions/"+f.id, nil)
	c.Params = gin.Params{{Key: "id", Value: f.id}}
	accountID := authenticate(c)
	f.manager.EXPECT().Get(accountID, f.id).Return(nil, apperror.ErrNotFound("Session"))

	f.handler.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionSetAmount_PassesRawText(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPut, "/amount", dto.SetAmountRequest{Amount: " 1,5 <x>"})

	view := sampleView(f.id)
	view.AmountInput = " 1,5 <x>"
	gomock.InOrder(
		f.session.EXPECT().SetAmount(" 1,5 <x>"),
		f.session.EXPECT().View().Return(view),
	)

	f.handler.SetAmount(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SessionViewResponse
	decode(t, w, &resp)
	assert.Equal(t, " 1,5 <x>", resp.AmountInput)
}

func TestSessionRequestQuotation_ReturnsView(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/quotation", nil)

	view := sampleView(f.id)
	view.Quotation = &domain.Quotation{
		ID:            "q-1",
		Amount:        wei("500000000000000000"),
		Fee:           wei("2000000000000000"),
		Challenge:     "abc",
		OperationType: domain.OperationWithdrawal,
		ExpiresAt:     time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	view.Screen = domain.ShowQuotationScreen()
	f.session.EXPECT().RequestQuotation(gomock.Any()).Return(nil)
	f.session.EXPECT().View().Return(view)

	f.handler.RequestQuotation(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SessionViewResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Quotation)
	assert.Equal(t, "q-1", resp.Quotation.ID)
	assert.Equal(t, "2000000000000000", resp.Quotation.FeeWei)
	assert.Equal(t, "2030-01-01T00:00:00Z", resp.Quotation.ExpiresAt)
	assert.Equal(t, domain.ScreenShowQuotation, resp.Screen.Step)
}

func TestSessionConfirm_WithoutQuotation(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/confirm", nil)
	f.session.EXPECT().ConfirmQuotation().Return(apperror.ErrNoQuotation())

	f.handler.ConfirmQuotation(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WDR_006", decode(t, w, nil).ErrorCode)
}

func TestSessionSign_Success(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/sign", dto.SignRequest{Strategy: "otp"})

	success := domain.SuccessState("Withdrawal submitted")
	view := sampleView(f.id)
	view.Signing = success
	view.Screen = domain.ShowSuccessScreen(success.Message)
	f.session.EXPECT().SelectStrategy(gomock.Any(), domain.StrategyOTP).Return(success, nil)
	f.session.EXPECT().View().Return(view)

	f.handler.Sign(c)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.SignResponse
	decode(t, w, &resp)
	assert.Equal(t, domain.SigningSuccess, resp.Signing.Status)
	assert.Equal(t, domain.ScreenShowSuccess, resp.View.Screen.Step)
}

func TestSessionSign_UnknownStrategy(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/sign", dto.SignRequest{Strategy: "PASSWORD"})

	f.handler.Sign(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "WDR_001", decode(t, w, nil).ErrorCode)
}

func TestSessionSign_InProgress(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/sign", dto.SignRequest{Strategy: "PASSKEY"})
	f.session.EXPECT().SelectStrategy(gomock.Any(), domain.StrategyPasskey).
		Return(domain.InProgressState(), apperror.ErrSigningInProgress())

	f.handler.Sign(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "WDR_005", decode(t, w, nil).ErrorCode)
}

func TestSessionSign_ClientGone(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/sign", dto.SignRequest{Strategy: "PASSKEY"})
	ctx, cancel := context.WithCancel(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)

	f.session.EXPECT().SelectStrategy(gomock.Any(), domain.StrategyPasskey).
		DoAndReturn(func(context.Context, domain.SigningStrategy) (domain.SigningState, error) {
			cancel()
			return domain.InProgressState(), context.Canceled
		})

	f.handler.Sign(c)

	assert.Empty(t, w.Body.String())
}

func TestSessionDismiss(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodPost, "/dismiss", nil)
	gomock.InOrder(
		f.session.EXPECT().Dismiss(),
		f.session.EXPECT().View().Return(sampleView(f.id)),
	)

	f.handler.Dismiss(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionClose(t *testing.T) {
	f := newSessionFixture(t)
	c, w := newContext(http.MethodDelete, "/api/v1/withdrawals/sessions/"+f.id, nil)
	c.Params = gin.Params{{Key: "id", Value: f.id}}
	accountID := authenticate(c)
	f.manager.EXPECT().Close(accountID, f.id).Return(nil)

	f.handler.Close(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionEvents_StreamsUntilClosed(t *testing.T) {
	f := newSessionFixture(t)
	c, w := f.request(http.MethodGet, "/events", nil)

	done := make(chan struct{})
	close(done)
	unsubscribed := false
	f.session.EXPECT().Subscribe(gomock.Any()).DoAndReturn(func(fn func(domain.WithdrawalView)) func() {
		fn(sampleView(f.id))
		// A newer view replaces the one not yet written.
		next := sampleView(f.id)
		next.AmountInput = "0.75"
		fn(next)
		return func() { unsubscribed = true }
	})
	f.session.EXPECT().Done().Return((<-chan struct{})(done)).AnyTimes()

	f.handler.Events(c)

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"),
		"content type %q", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, 1, strings.Count(body, "event:view"))
	assert.Contains(t, body, `"amount_input":"0.75"`)
	assert.NotContains(t, body, `"amount_input":"0.5"`)
	assert.Contains(t, body, "event:closed")
	assert.True(t, unsubscribed)
}

func TestSessionEvents_StopsWhenClientLeaves(t *testing.T) {
	f := newSessionFixture(t)
	c, _ := f.request(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithCancel(c.Request.Context())
	c.Request = c.Request.WithContext(ctx)

	f.session.EXPECT().Subscribe(gomock.Any()).Return(func() {})
	f.session.EXPECT().Done().Return((<-chan struct{})(make(chan struct{}))).AnyTimes()

	finished := make(chan struct{})
	go func() {
		f.handler.Events(c)
		close(finished)
	}()

	time.Sleep(30 * time.Millisecond) // at least one heartbeat
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("event stream did not stop")
	}
}
