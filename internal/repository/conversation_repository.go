package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"studymate-go/internal/model"
	"studymate-go/pkg/database"
	"studymate-go/pkg/log"
)

// 每个会话最多保留的历史消息条数。
const maxHistoryLength = 50

// 会话历史的过期时间。
const historyTTL = 24 * time.Hour

// ConversationRepository 定义了会话问答历史的持久化接口。
// 历史只是旁路审计数据，Redis 未配置时所有方法都是空操作。
type ConversationRepository interface {
	AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

type conversationRepository struct{}

// NewConversationRepository 创建一个基于 Redis 的会话历史仓库实例。
func NewConversationRepository() ConversationRepository {
	return &conversationRepository{}
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("studymate:history:%s", sessionID)
}

// AppendMessage 将一条消息追加到会话历史，并裁剪到最大长度。
func (r *conversationRepository) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) error {
	if database.RDB == nil {
		return nil
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化会话消息失败: %w", err)
	}

	key := historyKey(sessionID)
	pipe := database.RDB.Pipeline()
	pipe.RPush(ctx, key, msgBytes)
	pipe.LTrim(ctx, key, -maxHistoryLength, -1)
	pipe.Expire(ctx, key, historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// GetHistory 返回会话的全部历史消息，按时间升序。
func (r *conversationRepository) GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if database.RDB == nil {
		return nil, nil
	}

	raw, err := database.RDB.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}

	messages := make([]model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			// 跳过无法解析的脏数据，不让单条损坏阻断整段历史。
			log.Errorf("解析会话历史消息失败: %v", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ClearHistory 删除会话的全部历史。幂等。
func (r *conversationRepository) ClearHistory(ctx context.Context, sessionID string) error {
	if database.RDB == nil {
		return nil
	}
	if err := database.RDB.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("清空会话历史失败: %w", err)
	}
	return nil
}
