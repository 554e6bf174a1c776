package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uint(1)
		if r.URL.Query().Get("u") == "2" {
			id = 2
		}
		hub.ServeWS(w, r, id)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c1, _, err := websocket.DefaultDialer.Dial(url+"?u=1", nil)
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := websocket.DefaultDialer.Dial(url+"?u=2", nil)
	require.NoError(t, err)
	defer c2.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 2 })
	assert.True(t, hub.IsOnline(1))
	assert.False(t, hub.IsOnline(3))

	hub.SendToUser(1, EventNotification, map[string]interface{}{"id": 5})

	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c1.ReadMessage()
	require.NoError(t, err)
	var msg struct {
		Type string         `json:"type"`
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, EventNotification, msg.Type)
	assert.Equal(t, 5, msg.Data["id"])

	c2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = c2.ReadMessage()
	assert.Error(t, err, "teacher 2 receives nothing")

	c1.Close()
	waitFor(t, func() bool { return !hub.IsOnline(1) })
}
