// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"studymate-go/internal/middleware"
	"studymate-go/internal/model"
	"studymate-go/internal/service"
	"studymate-go/pkg/log"
	"studymate-go/pkg/token"
)

// AssistantHandler 结构体定义了问答助手相关的处理器。
type AssistantHandler struct {
	assistant  service.AssistantService
	jwtManager *token.JWTManager
}

// NewAssistantHandler 创建一个新的 AssistantHandler 实例。
func NewAssistantHandler(assistant service.AssistantService, jwtManager *token.JWTManager) *AssistantHandler {
	return &AssistantHandler{
		assistant:  assistant,
		jwtManager: jwtManager,
	}
}

// CreateSession 创建一个匿名会话并签发会话令牌。
func (h *AssistantHandler) CreateSession(c *gin.Context) {
	sessionID := token.NewSessionID()
	tokenString, err := h.jwtManager.GenerateToken(sessionID)
	if err != nil {
		log.Errorf("[AssistantHandler] 签发会话令牌失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建会话失败", "data": nil})
		return
	}

	log.Infof("[AssistantHandler] 新会话已创建, session: %s", sessionID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"session_id": sessionID,
		"token":      tokenString,
	}})
}

// Upload 处理 multipart 批量文件上传。
func (h *AssistantHandler) Upload(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionKey)

	form, err := c.MultipartForm()
	if err != nil {
		log.Warnf("[AssistantHandler] 解析 multipart 表单失败, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的上传表单", "data": nil})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "没有收到任何文件", "data": nil})
		return
	}
	log.Infof("[AssistantHandler] 收到上传请求, session: %s, files: %d", sessionID, len(fileHeaders))

	files := make([]*model.UploadedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "读取上传文件失败", "data": nil})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "读取上传文件失败", "data": nil})
			return
		}
		files = append(files, &model.UploadedFile{
			FileName: fh.Filename,
			Data:     data,
			Size:     fh.Size,
		})
	}

	result := h.assistant.UploadDocuments(c.Request.Context(), sessionID, files)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// askRequest 是提问接口的请求体。
type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask 处理一次检索问答请求。
func (h *AssistantHandler) Ask(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionKey)

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}
	log.Infof("[AssistantHandler] 收到提问, session: %s, question_len: %d", sessionID, len(req.Question))

	record := h.assistant.AskQuestion(c.Request.Context(), sessionID, req.Question)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": record})
}

// Status 返回当前会话的状态快照。
func (h *AssistantHandler) Status(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionKey)
	status := h.assistant.GetSystemStatus(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": status})
}

// Clear 清空当前会话的全部资料与历史。
func (h *AssistantHandler) Clear(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionKey)
	if err := h.assistant.ClearSession(c.Request.Context(), sessionID); err != nil {
		log.Errorf("[AssistantHandler] 清空会话失败, session: %s, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// Conversation 返回当前会话的问答历史。
func (h *AssistantHandler) Conversation(c *gin.Context) {
	sessionID := c.GetString(middleware.SessionKey)
	messages, err := h.assistant.GetConversation(c.Request.Context(), sessionID)
	if err != nil {
		log.Errorf("[AssistantHandler] 读取会话历史失败, session: %s, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取会话历史失败", "data": nil})
		return
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}
