// cmd/push-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/bootstrap"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/config"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/logger"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/mq"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain"
)

const (
	serviceName = "push-gateway"
	servicePort = 8088

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// Hub 维护所有活跃的连接，按 UserID 索引
type Hub struct {
	lock    sync.RWMutex
	clients map[string]*Client
}

func newHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) register(c *Client) {
	h.lock.Lock()
	if old, ok := h.clients[c.userID]; ok {
		close(old.send)
	}
	h.clients[c.userID] = c
	h.lock.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.lock.Lock()
	if cur, ok := h.clients[c.userID]; ok && cur == c {
		delete(h.clients, c.userID)
		close(c.send)
	}
	h.lock.Unlock()
}

// Push 把消息投递给用户的连接；用户不在本节点时静默丢弃
func (h *Hub) Push(userID string, payload []byte) bool {
	h.lock.RLock()
	c, ok := h.clients[userID]
	h.lock.RUnlock()
	if !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		// 写缓冲已满，断开这个慢消费者
		h.unregister(c)
		return false
	}
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 客户端只发心跳，内容直接丢弃
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: userID}
	hub.register(client)
	go client.writePump()
	go client.readPump()
}

// consumeStatusStream 订阅 order-status，把状态流转推给在线用户。
// 每个网关节点用自己专属的消费组，保证所有节点都收到全量事件。
func consumeStatusStream(ctx context.Context, reader *kafka.Reader, hub *Hub) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var ev domain.OrderStatusChangedEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("🛑 malformed status event, skipping")
		} else if hub.Push(ev.UserID, msg.Value) {
			logger.Ctx(ctx).Info().
				Str("user_id", ev.UserID).
				Str("order_id", ev.OrderID).
				Str("status", ev.Status).
				Msg("✅ status pushed to client")
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit status message")
		}
	}
}

func main() {
	cfg := config.MustLoad()
	nodeID := serviceName + "-" + uuid.New().String()[:8]

	hub := newHub()
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, domain.TopicOrderStatus, nodeID)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, w, r)
			})
		},
		Run: func(runCtx context.Context, _ bootstrap.AppCtx) error {
			return consumeStatusStream(runCtx, reader, hub)
		},
		OnShutdown: func(shutdownCtx context.Context) {
			reader.Close()
		},
	})
}
