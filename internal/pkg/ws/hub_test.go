package ws

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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestHub_Broadcast_NoViewers(t *testing.T) {
	hub := NewHub()

	// 没有观看者时不是错误
	err := hub.Broadcast("job1", map[string]string{"type": "log"})
	assert.NoError(t, err)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	first := &Client{FileID: "job1"}
	second := &Client{FileID: "job1"}
	other := &Client{FileID: "job2"}

	hub.Register(first)
	hub.Register(second)
	hub.Register(other)

	assert.Equal(t, 2, hub.ViewerCount("job1"))
	assert.Equal(t, 1, hub.ViewerCount("job2"))
	assert.Equal(t, 3, hub.ConnectionCount())

	hub.Unregister(first)
	assert.Equal(t, 1, hub.ViewerCount("job1"))

	hub.Unregister(second)
	assert.Equal(t, 0, hub.ViewerCount("job1"))
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHub_Broadcast_DeliversToViewers(t *testing.T) {
	hub := NewHub()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		client := &Client{FileID: "job1", Conn: conn}
		hub.Register(client)
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// 等服务端完成注册
	require.Eventually(t, func() bool {
		return hub.ViewerCount("job1") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast("job1", map[string]string{"type": "log", "message": "hi"}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "log", decoded["type"])
	assert.Equal(t, "hi", decoded["message"])
}
