package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/lifesim/internal/store"
	"go.uber.org/zap"
)

// Message 推送给调试客户端的消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected   = "connected"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeError       = "error"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeStoreChange = "store_change"
	MessageTypeNotice      = "notice"
)

// heartbeatPeriod 应用层心跳周期
var heartbeatPeriod = 30 * time.Second

type envelope struct {
	store string // 为空表示发送给所有客户端
	data  []byte
}

// Hub 调试客户端连接管理，广播存储变更事件
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once

	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub，ctx取消时关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.doneOnce.Do(func() { close(h.done) })
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case env := <-h.broadcast:
			h.deliver(env)

		case <-ticker.C:
			if data, err := encode(MessageTypePing, nil); err == nil {
				h.deliver(envelope{data: data})
			}
		}
	}
}

// AttachBus 订阅存储变更总线，返回取消订阅函数
// 总线回调不阻塞：缓冲区满时丢弃事件
func (h *Hub) AttachBus(bus *store.Bus) func() {
	return bus.Subscribe(func(c store.Change) {
		data, err := encode(MessageTypeStoreChange, c)
		if err != nil {
			h.logger.Error("序列化存储事件失败", zap.Error(err))
			return
		}
		select {
		case h.broadcast <- envelope{store: c.Store, data: data}:
		default:
			h.logger.Warn("广播缓冲区满，丢弃存储事件",
				zap.String("store", c.Store), zap.String("action", c.Action))
		}
	})
}

func encode(msgType string, payload any) ([]byte, error) {
	msg := Message{Type: msgType, Timestamp: time.Now().Unix()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("调试客户端连接", zap.String("client_id", client.ID))

	if data, err := encode(MessageTypeConnected, map[string]string{"client_id": client.ID}); err == nil {
		client.trySend(data)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("调试客户端断开", zap.String("client_id", client.ID))
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
	h.clientsMu.Unlock()
}

func (h *Hub) deliver(env envelope) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.clients {
		if env.store != "" && !client.Wants(env.store) {
			continue
		}
		if !client.trySend(env.data) {
			h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", client.ID))
		}
	}
}

// Broadcast 向全部客户端广播消息，不订阅过滤
// 缓冲区满或Hub已停止时返回错误，不阻塞调用方
func (h *Hub) Broadcast(msgType string, payload any) error {
	data, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case <-h.done:
		return errHubStopped
	default:
	}
	select {
	case h.broadcast <- envelope{data: data}:
		return nil
	default:
		return errBroadcastFull
	}
}

var (
	errHubStopped    = errors.New("hub stopped")
	errBroadcastFull = errors.New("broadcast buffer full")
)

// Register 注册客户端，Hub已停止时返回false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// OnlineCount 在线客户端数
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
