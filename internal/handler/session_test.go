package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/auth"
	"relay-backend/internal/config"
	"relay-backend/internal/gateway"
	"relay-backend/internal/ingest"
	"relay-backend/internal/langs"
	"relay-backend/internal/model"
	"relay-backend/internal/sessionid"
	"relay-backend/internal/store"
)

type fixedOracle struct{}

func (fixedOracle) SupportedLanguages(context.Context) ([]string, []string, error) {
	return []string{"ko", "en"}, []string{"ko", "en", "ja"}, nil
}

type restFixture struct {
	app   *fiber.App
	store *store.Memory
}

func newRestFixture(t *testing.T) *restFixture {
	t.Helper()
	st := store.NewMemory()
	alloc := sessionid.New(func(ctx context.Context, id string) (bool, error) {
		_, err := st.GetSession(ctx, id)
		if err == store.ErrNotFound {
			return false, nil
		}
		return err == nil, err
	}, 5)
	validator := langs.NewValidator(fixedOracle{})
	validator.Refresh(context.Background())
	verifier := auth.NewStaticVerifier("test-secret", "test-issuer")

	bus := ingest.NewBus(config.IngestConfig{
		BatchWindow:     3 * time.Second,
		BatchMaxFrames:  100,
		HighWaterFrames: 100,
		BatchQueueSize:  8,
	})
	gw := gateway.New(
		config.WebSocketConfig{SendTimeout: time.Second, SendQueueSize: 8},
		config.SessionConfig{TTL: time.Hour, ConnectionTTL: time.Hour},
		st, bus, validator, verifier,
	)

	h := NewSessionHandler(st, alloc, validator, verifier, gw, nil,
		config.SessionConfig{TTL: 4 * time.Hour, ConnectionTTL: 2 * time.Hour})

	app := fiber.New()
	app.Post("/api/sessions", h.Create)
	app.Get("/api/sessions/:id", h.Get)
	app.Post("/api/sessions/:id/end", h.End)
	app.Get("/api/sessions/:id/transcripts", h.Transcripts)

	return &restFixture{app: app, store: st}
}

func (f *restFixture) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, 2000)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestCreateSessionAnonymous(t *testing.T) {
	f := newRestFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{
		SourceLanguage:  "ko",
		TargetLanguages: []string{"en", "ja"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	id := body["sessionId"].(string)
	assert.Regexp(t, regexp.MustCompile(`^[a-z]+-[a-z]+-[1-9][0-9]{2}$`), id)
	assert.Equal(t, "ko", body["sourceLanguage"])

	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, sess.OwnerID)
	assert.Equal(t, model.StatusActive, sess.Status)
	assert.Equal(t, []string{"en", "ja"}, sess.ConfiguredTargets)
}

func TestCreateSessionRejectsBadLanguages(t *testing.T) {
	f := newRestFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{
		SourceLanguage: "xx",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// ja is a valid target but not a transcribable source.
	resp, _ = f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{
		SourceLanguage: "ja",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{
		SourceLanguage:  "ko",
		TargetLanguages: []string{"xx"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSession(t *testing.T) {
	f := newRestFixture(t)

	_, created := f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{SourceLanguage: "en"})
	id := created["sessionId"].(string)

	resp, body := f.do(t, http.MethodGet, "/api/sessions/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["sessionId"])
	assert.Equal(t, "active", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/api/sessions/missing-bird-000", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndSessionOwnerOnly(t *testing.T) {
	f := newRestFixture(t)

	ownerToken, err := auth.IssueStatic("test-secret", "test-issuer", "user-7", time.Hour)
	require.NoError(t, err)
	otherToken, err := auth.IssueStatic("test-secret", "test-issuer", "user-9", time.Hour)
	require.NoError(t, err)

	_, created := f.do(t, http.MethodPost, "/api/sessions", ownerToken, CreateSessionRequest{SourceLanguage: "en"})
	id := created["sessionId"].(string)

	resp, _ := f.do(t, http.MethodPost, "/api/sessions/"+id+"/end", "", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/api/sessions/"+id+"/end", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/sessions/"+id+"/end", ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnded, sess.Status)
}

func TestTranscriptsWithoutCache(t *testing.T) {
	f := newRestFixture(t)

	_, created := f.do(t, http.MethodPost, "/api/sessions", "", CreateSessionRequest{SourceLanguage: "en"})
	id := created["sessionId"].(string)

	resp, body := f.do(t, http.MethodGet, "/api/sessions/"+id+"/transcripts", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["transcripts"])
}
