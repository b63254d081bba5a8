package suite

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"oauthsrv/internal/app"
	"oauthsrv/internal/config"
	"oauthsrv/internal/domain/protocol"
)

const (
	ClientID    = "c1"
	RedirectURI = "http://localhost:8001/callback"
)

// Clock is a settable time source shared by the app under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type Suite struct {
	*testing.T
	Cfg    config.Config
	Clock  *Clock
	Server *httptest.Server
	// Client keeps cookies and does not follow redirects.
	Client *http.Client
}

// New starts the whole server in-process on the memory storage.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()
	t.Parallel()

	cfg := config.Config{
		Env:                  config.EnvLocal,
		SecretKey:            "test-secret",
		Issuer:               "oauthsrv-test",
		SessionTTL:           7 * 24 * time.Hour,
		AccessTokenTTL:       5 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		AuthorizationCodeTTL: time.Minute,
		SweepInterval:        time.Minute,
		HTTP: config.HTTPConfig{
			Timeout:        5 * time.Second,
			DefaultLanding: "/dashboard",
		},
		Clients: []config.ClientConfig{
			{ClientID: ClientID, RedirectURI: RedirectURI},
		},
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)

	clock := &Clock{now: time.Now().Truncate(time.Second)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	application, err := app.New(ctx, log, &cfg, app.WithClock(clock.Now))
	require.NoError(t, err)

	srv := httptest.NewServer(application.HTTPSrv.Handler())

	t.Cleanup(func() {
		t.Helper()
		srv.Close()
		application.Close()
		cancelCtx()
	})

	return ctx, &Suite{
		T:      t,
		Cfg:    cfg,
		Clock:  clock,
		Server: srv,
		Client: NewClient(t),
	}
}

// NewClient returns a browser-like client with its own cookie jar.
func NewClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 10 * time.Second,
	}
}

func (s *Suite) URL(path string, query url.Values) string {
	u := s.Server.URL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (s *Suite) Get(client *http.Client, path string, query url.Values) *http.Response {
	s.Helper()
	resp, err := client.Get(s.URL(path, query))
	require.NoError(s, err)
	s.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *Suite) PostForm(client *http.Client, path string, query url.Values, form url.Values) *http.Response {
	s.Helper()
	req, err := http.NewRequest(http.MethodPost, s.URL(path, query), strings.NewReader(form.Encode()))
	require.NoError(s, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	require.NoError(s, err)
	s.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *Suite) Register(username string, password string, email string) {
	s.Helper()
	resp := s.PostForm(s.Client, "/register", nil, url.Values{
		"username": {username},
		"password": {password},
		"email":    {email},
	})
	require.Equal(s, http.StatusOK, resp.StatusCode)
}

func (s *Suite) Login(client *http.Client, username string, password string) {
	s.Helper()
	resp := s.PostForm(client, "/login", nil, url.Values{"username": {username}, "password": {password}})
	require.Equal(s, http.StatusSeeOther, resp.StatusCode)
}

// Authorize approves scope for ClientID and returns the code from the redirect.
func (s *Suite) Authorize(client *http.Client, scope string, state string) string {
	s.Helper()
	resp := s.Get(client, "/authorize", url.Values{
		"client_id":    {ClientID},
		"redirect_uri": {RedirectURI},
		"scope":        {scope},
		"state":        {state},
	})
	require.Equal(s, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(s, err)
	require.Equal(s, state, loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(s, code)
	return code
}

// Token posts to the token endpoint and returns status and decoded body.
func (s *Suite) Token(form url.Values) (int, protocol.TokenSet, map[string]string) {
	s.Helper()
	resp := s.PostForm(http.DefaultClient, "/token", nil, form)
	body, err := io.ReadAll(resp.Body)
	require.NoError(s, err)

	var set protocol.TokenSet
	var errBody map[string]string
	if resp.StatusCode == http.StatusOK {
		require.NoError(s, json.Unmarshal(body, &set))
	} else {
		require.NoError(s, json.Unmarshal(body, &errBody))
	}
	return resp.StatusCode, set, errBody
}

// DecodeJSON reads a JSON object of strings from resp.
func (s *Suite) DecodeJSON(resp *http.Response) map[string]string {
	s.Helper()
	var out map[string]string
	require.NoError(s, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
