package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"studymate-go/internal/model"
	"studymate-go/internal/service"
	"studymate-go/pkg/llm"
	"studymate-go/pkg/log"
	"studymate-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// errStreamStopped 表示流式输出被客户端主动中断。
var errStreamStopped = errors.New("stream stopped by client")

// ChatHandler 负责处理 WebSocket 流式问答连接。
type ChatHandler struct {
	assistant  service.AssistantService
	generator  service.GeneratorService
	llmClient  llm.Client
	jwtManager *token.JWTManager
	// 每连接停止标志
	stopFlags sync.Map // key: connection pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(
	assistant service.AssistantService,
	generator service.GeneratorService,
	llmClient llm.Client,
	jwtManager *token.JWTManager,
) *ChatHandler {
	return &ChatHandler{
		assistant:  assistant,
		generator:  generator,
		llmClient:  llmClient,
		jwtManager: jwtManager,
	}
}

// stopAwareWriter 在每次写入前检查停止标志，中断时返回 errStreamStopped。
type stopAwareWriter struct {
	conn       *websocket.Conn
	shouldStop func() bool
}

func (w *stopAwareWriter) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop() {
		return errStreamStopped
	}
	return w.conn.WriteMessage(messageType, data)
}

// Handle 处理一个传入的 WebSocket 连接。
// 令牌通过路径参数传递，因为浏览器的 WebSocket API 不支持自定义请求头。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的会话令牌", "data": nil})
		return
	}
	sessionID := claims.SessionID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	defer h.stopFlags.Delete(connKey(conn))

	log.Infof("WebSocket 连接已建立, session: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		// 停止指令: {"type":"stop"}
		if len(message) > 0 && message[0] == '{' {
			var ctrl map[string]interface{}
			if err := json.Unmarshal(message, &ctrl); err == nil {
				if t, ok := ctrl["type"].(string); ok && t == "stop" {
					h.stopFlags.Store(connKey(conn), true)
					h.writeNotification(conn, "stop", "响应已停止")
					continue
				}
			}
		}

		// 普通消息按问题处理，清除上一轮的停止标志
		h.stopFlags.Delete(connKey(conn))
		h.streamAnswer(c.Request.Context(), conn, sessionID, string(message))
	}
}

// streamAnswer 执行一轮检索问答并把答案流式写回连接。
func (h *ChatHandler) streamAnswer(ctx context.Context, conn *websocket.Conn, sessionID, question string) {
	retrieval, err := h.assistant.Retrieve(ctx, sessionID, question)
	if err != nil {
		log.Warnf("[ChatHandler] 检索失败, session: %s, error: %v", sessionID, err)
		h.writeError(conn, retrieveErrorMessage(err))
		h.writeCompletion(conn, 0, []model.AnswerSource{})
		return
	}

	// 无有效上下文时直接返回固定回答，不调用模型
	if retrieval.Empty() {
		record := h.generator.Generate(ctx, retrieval)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(record.Answer))
		h.writeCompletion(conn, record.Confidence, record.Sources)
		return
	}

	confidence := h.generator.Confidence(retrieval)
	sources := h.generator.Sources(retrieval)
	writer := &stopAwareWriter{
		conn: conn,
		shouldStop: func() bool {
			v, ok := h.stopFlags.Load(connKey(conn))
			return ok && v.(bool)
		},
	}

	messages := h.generator.BuildMessages(retrieval)
	if err := h.llmClient.StreamChatMessages(ctx, messages, nil, writer); err != nil {
		if errors.Is(err, errStreamStopped) {
			log.Infof("[ChatHandler] 流式响应被中断, session: %s", sessionID)
			h.writeCompletion(conn, confidence, sources)
			return
		}
		// 模型不可达时退化为抽取式答案，一次性写回
		log.Warnf("[ChatHandler] 流式调用失败, 降级为演示模式, session: %s, error: %v", sessionID, err)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(h.generator.DemoAnswer(retrieval)))
		h.writeCompletion(conn, confidence*0.5, sources)
		return
	}

	h.writeCompletion(conn, confidence, sources)
}

// writeCompletion 发送回答结束通知，附带置信度与来源。
func (h *ChatHandler) writeCompletion(conn *websocket.Conn, confidence float64, sources []model.AnswerSource) {
	resp := map[string]interface{}{
		"type":       "completion",
		"status":     "finished",
		"message":    "响应已完成",
		"confidence": confidence,
		"sources":    sources,
		"timestamp":  time.Now().UnixMilli(),
		"date":       time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// writeNotification 发送一条类型化的通知消息。
func (h *ChatHandler) writeNotification(conn *websocket.Conn, msgType, message string) {
	resp := map[string]interface{}{
		"type":      msgType,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(resp)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// writeError 发送统一格式的错误消息。
func (h *ChatHandler) writeError(conn *websocket.Conn, message string) {
	b, _ := json.Marshal(map[string]string{"error": message})
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// retrieveErrorMessage 把检索错误翻译为面向用户的提示。
func retrieveErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return "问题太短，请输入更完整的问题"
	case errors.Is(err, model.ErrEmptySession):
		return "当前会话还没有任何资料，请先上传文档"
	default:
		return "检索失败，请稍后重试"
	}
}

func connKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
