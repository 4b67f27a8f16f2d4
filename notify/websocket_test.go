package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T) (string, <-chan Event, <-chan string) {
	t.Helper()

	events := make(chan Event, 8)
	keys := make(chan string, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.URL.Query().Get("apiKey")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(msg, &ev); err == nil {
				events <- ev
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), events, keys
}

func TestWebSocketPublish(t *testing.T) {
	url, events, keys := newFeedServer(t)
	ctx := context.Background()

	w, err := Dial(ctx, Config{ServerURL: url, APIKey: "secret"})
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, "secret", <-keys)

	ev, err := NewEvent(TypeFileSaved, "run-1", FilePayload{Name: "lap1.sto", URL: "packs/lap1.sto", Path: "/d/car/(car_track)lap1.sto"})
	require.NoError(t, err)
	require.NoError(t, w.Publish(ctx, ev))

	select {
	case got := <-events:
		require.Equal(t, TypeFileSaved, got.Type)
		require.Equal(t, "run-1", got.RunID)

		var payload FilePayload
		require.NoError(t, json.Unmarshal(got.Payload, &payload))
		require.Equal(t, "lap1.sto", payload.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestWebSocketPublishAfterClose(t *testing.T) {
	url, _, _ := newFeedServer(t)

	w, err := Dial(context.Background(), Config{ServerURL: url})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ev, err := NewEvent(TypeRunCompleted, "run-1", nil)
	require.NoError(t, err)
	require.ErrorIs(t, w.Publish(context.Background(), ev), ErrNotConnected)
}

func TestDialInvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), Config{ServerURL: "ws://127.0.0.1:1/feed"})
	require.Error(t, err)
}
