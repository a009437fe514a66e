package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waplex/waplex/internal/domain"
	"github.com/waplex/waplex/internal/session"
)

type stubClient struct {
	handlers  session.Handlers
	connected chan struct{}
}

func (c *stubClient) Connect(context.Context) error {
	close(c.connected)
	return nil
}

func (c *stubClient) SendText(_ context.Context, _, _ string) (string, error) {
	return "MSG-1", nil
}

func (c *stubClient) LiveIdentity() string { return "628123@s.whatsapp.net" }

func (c *stubClient) FetchMessages(context.Context) ([]session.IncomingMessage, error) {
	return nil, nil
}

func (c *stubClient) Disconnect() {}

func (c *stubClient) Logout(context.Context) error { return nil }

type stubProvider struct {
	created chan *stubClient
}

func (p *stubProvider) CreateClient(_ context.Context, _ int64, _ string, handlers session.Handlers) (session.Client, error) {
	c := &stubClient{handlers: handlers, connected: make(chan struct{})}
	p.created <- c
	return c, nil
}

type stubPersistence struct{}

func (stubPersistence) UpsertAccountStatus(int64, session.State, time.Time) error { return nil }

func (stubPersistence) SetAccountConnected(int64, string, time.Time) error { return nil }

func (stubPersistence) TouchAccountActivity(int64, time.Time) error { return nil }

func (stubPersistence) CreateMessage(msg *domain.ChatMessage) error {
	msg.ID = 1
	return nil
}

func (stubPersistence) FindMessageByPlatformId(string, string) (*domain.ChatMessage, error) {
	return nil, nil
}

func (stubPersistence) FindOrCreateConversation(accountID int64, participantID, preview string, at time.Time, inbound bool) (*domain.ChatConversation, error) {
	return &domain.ChatConversation{ID: 7, AccountId: accountID, ParticipantId: participantID}, nil
}

// newSendManager installs a manager backed by stub platform plumbing and
// returns it; handlers read the package-level manager variable.
func newSendManager(t *testing.T) (*session.Manager, *stubProvider) {
	t.Helper()
	provider := &stubProvider{created: make(chan *stubClient, 4)}
	mgr, err := session.NewManager(session.ManagerConfig{
		Providers:   map[string]session.Provider{session.PlatformWhatsApp: provider},
		Persistence: stubPersistence{},
	})
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	manager = mgr
	return mgr, provider
}

func readySendSession(t *testing.T, mgr *session.Manager, provider *stubProvider, accountID int64) {
	t.Helper()
	require.NoError(t, mgr.CreateSession(accountID, session.PlatformWhatsApp, "628123"))
	select {
	case c := <-provider.created:
		select {
		case <-c.connected:
		case <-time.After(2 * time.Second):
			t.Fatal("client never connected")
		}
		c.handlers.OnAuthenticated()
		c.handlers.OnReady()
	case <-time.After(2 * time.Second):
		t.Fatal("no client created")
	}
}

func newSendContext(accountID, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/accounts/"+accountID+"/send", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/accounts/:id/send")
	c.SetParamNames("id")
	c.SetParamValues(accountID)
	return c, rec
}

func TestPostSendMessageDelivers(t *testing.T) {
	mgr, provider := newSendManager(t)
	readySendSession(t, mgr, provider, 42)

	c, rec := newSendContext("42", `{"to":"628999","body":"hello"}`)
	require.NoError(t, postSendMessage(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			Recipient string `json:"recipient"`
			Body      string `json:"body"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "628999@s.whatsapp.net", resp.Data.Recipient)
	assert.Equal(t, "hello", resp.Data.Body)
	assert.Equal(t, "sent", resp.Data.Status)
}

func TestPostSendMessageSessionMissing(t *testing.T) {
	newSendManager(t)

	c, rec := newSendContext("42", `{"to":"628999","body":"hello"}`)
	require.NoError(t, postSendMessage(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")
}

func TestPostSendMessageNotConnected(t *testing.T) {
	mgr, _ := newSendManager(t)
	require.NoError(t, mgr.CreateSession(42, session.PlatformWhatsApp, "628123"))

	c, rec := newSendContext("42", `{"to":"628999","body":"hello"}`)
	require.NoError(t, postSendMessage(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_CONNECTED")
}

func TestPostSendMessageValidation(t *testing.T) {
	newSendManager(t)

	c, rec := newSendContext("42", `{"to":"628999"}`)
	require.NoError(t, postSendMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_FIELDS")

	c, rec = newSendContext("not-a-number", `{"to":"628999","body":"hi"}`)
	require.NoError(t, postSendMessage(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ID")
}
