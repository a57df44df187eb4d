package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	sessionHandler "github.com/zhouzirui/synesthesia/backend/internal/handler/session"
	chatService "github.com/zhouzirui/synesthesia/backend/internal/service/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
	"github.com/zhouzirui/synesthesia/backend/pkg/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// 视图事件以外的下行消息类型
const (
	TypeSnapshot = "snapshot"
	TypeTurn     = "turn"
	TypeError    = "error"
)

// Handler WebSocket会话处理器
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With(zap.String("component", "websocket")),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type textPayload struct {
	Text string `json:"text"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, sessionHandler.StatusFor(err), err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Debug("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := session.View.Subscribe(0)
	defer unsubscribe()

	out := make(chan view.Event, 8)
	out <- envelope(sessionID, TypeSnapshot, session.View.Snapshot())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, events, out, logger)
		cancel()
		// 写协程先退出时解除读循环阻塞
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("read error", zap.Error(err))
			}
			break
		}

		reply := h.handleMessage(ctx, sessionID, msg)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		select {
		case out <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
	logger.Debug("connection closed")
}

func (h *Handler) handleMessage(ctx context.Context, sessionID string, msg inboundMessage) view.Event {
	switch msg.Type {
	case view.EventMessage:
		var payload textPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return errorEvent(sessionID, "invalid message payload")
		}
		result, err := h.chatSvc.Submit(ctx, sessionID, payload.Text)
		if err != nil {
			return errorEvent(sessionID, err.Error())
		}
		return envelope(sessionID, TypeTurn, result)
	default:
		return errorEvent(sessionID, "unsupported message type: "+msg.Type)
	}
}

// writeLoop 负责conn上的全部写操作
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan view.Event, out <-chan view.Event, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(event view.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug("write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case event, ok := <-events:
			if !ok || !write(event) {
				return
			}
		case event := <-out:
			// 生成回复期间产生的视图事件先于回复发出
		drain:
			for {
				select {
				case pending, ok := <-events:
					if !ok || !write(pending) {
						return
					}
				default:
					break drain
				}
			}
			if !write(event) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func envelope(sessionID, eventType string, data any) view.Event {
	return view.Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func errorEvent(sessionID, message string) view.Event {
	return envelope(sessionID, TypeError, map[string]string{"message": message})
}
