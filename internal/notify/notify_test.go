package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/mybak/internal/config"
)

func TestWebhookPostsEvent(t *testing.T) {
	var got Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := Webhook{Name: "ops", URL: srv.URL, Headers: map[string]string{"X-Token": "abc"}}
	event := Event{RunID: "r1", Mode: "both", Status: StatusSuccess, Artifacts: []string{"20240313_FULL_0_100.xb.zst"}}
	require.NoError(t, hook.Notify(context.Background(), event))

	assert.Equal(t, "abc", header)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, []string{"20240313_FULL_0_100.xb.zst"}, got.Artifacts)
}

func TestMattermostSendsSummary(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	event := Event{Status: StatusFailed, Message: "mybak data", Error: "backup collaborator failed"}
	require.NoError(t, Mattermost{Name: "chat", URL: srv.URL}.Notify(context.Background(), event))
	assert.Equal(t, "[failed] mybak data (backup collaborator failed)", payload["text"])
}

func TestMatrixUsesBearerToken(t *testing.T) {
	var auth, path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		method = r.Method
	}))
	defer srv.Close()

	m := Matrix{Name: "room", ServerURL: srv.URL + "/", AccessToken: "tok", RoomID: "!room:example.org"}
	require.NoError(t, m.Notify(context.Background(), Event{Status: StatusSuccess}))
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/"))
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Webhook{Name: "ops", URL: srv.URL}.Notify(context.Background(), Event{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook ops returned 502")
}

type failing struct{ err error }

func (f failing) Notify(context.Context, Event) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	err := Multi{Targets: []Notifier{failing{first}, nil, failing{nil}, failing{second}}}.Notify(context.Background(), Event{})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
}

func TestFromConfig(t *testing.T) {
	multi := FromConfig(config.NotificationsConfig{
		Webhooks:   []config.WebhookConfig{{Name: "a", URL: "http://a"}},
		Mattermost: []config.MattermostHook{{Name: "b", URL: "http://b"}},
		Matrix:     []config.MatrixConfig{{Name: "c", ServerURL: "http://c", RoomID: "!r"}},
	})
	assert.Len(t, multi.Targets, 3)
	assert.Empty(t, FromConfig(config.NotificationsConfig{}).Targets)
}

func TestStatusFromErr(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusFromErr(nil))
	assert.Equal(t, StatusFailed, StatusFromErr(errors.New("x")))
}
