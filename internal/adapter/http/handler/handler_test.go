package handler

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http/httptest"
	"strconv"
	"testing"

	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/ports/mocks"
	"secure-withdrawal-gateway/pkg/localize"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

// newContext builds a test context; body is JSON-encoded unless it is nil
// or already a string.
func newContext(method, path string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, &buf)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func authenticate(c *gin.Context) uuid.UUID {
	id := uuid.New()
	c.Set(middleware.CtxAccountID, id)
	return id
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

// testPresenter renders amounts as "<wei> <code>@<locale>" and times as
// "t<millis>@<locale>" so tests can see what was formatted and for whom.
func testPresenter(ctrl *gomock.Controller) Presenter {
	money := mocks.NewMockMoneyFormatter(ctrl)
	money.EXPECT().Format(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(amount *big.Int, code string, _ localize.Precision, locale string) string {
			return amount.String() + " " + code + "@" + locale
		}).AnyTimes()

	clock := mocks.NewMockDateTimeFormatter(ctrl)
	clock.EXPECT().FormatMillis(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ms int64, locale string) string {
			return "t" + strconv.FormatInt(ms, 10) + "@" + locale
		}).AnyTimes()

	return Presenter{
		Money:    money,
		Clock:    clock,
		Locales:  localize.NewRegistry("en_US"),
		Currency: "ETH",
	}
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad wei literal " + s)
	}
	return v
}
