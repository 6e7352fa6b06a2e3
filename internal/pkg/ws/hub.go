package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub 把协调后的流事件转发给订阅同一 fileId 的浏览器连接。
// 同一任务可以有多个标签页同时观看（多标签、重连场景）。
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	FileID string
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.FileID] == nil {
		h.clients[client.FileID] = make(map[*Client]struct{})
	}
	h.clients[client.FileID][client] = struct{}{}

	log.Printf("Viewer connected for %s, viewers: %d", client.FileID, len(h.clients[client.FileID]))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.FileID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.FileID)
		}
	}
	log.Printf("Viewer disconnected for %s", client.FileID)
}

// Broadcast 把一条事件发给该 fileId 的所有观看连接
func (h *Hub) Broadcast(fileID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[fileID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// 复制一份引用，避免长时间持锁
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("Broadcast write error for %s: %v", fileID, err)
		}
	}
	return nil
}

// ViewerCount 某任务当前的观看连接数
func (h *Hub) ViewerCount(fileID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[fileID])
}

// ConnectionCount 全部在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
