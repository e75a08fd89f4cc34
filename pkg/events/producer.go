// Package events 提供了向 Kafka 发布入库事件的功能。
// 事件流供下游的统计或审计消费，核心流程不依赖它。
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"studymate-go/internal/config"
	"studymate-go/pkg/log"
)

// DocumentIndexed 描述一份文档完成向量化入库的事件。
type DocumentIndexed struct {
	SessionID string    `json:"session_id"`
	FileMD5   string    `json:"file_md5"`
	FileName  string    `json:"file_name"`
	Chunks    int       `json:"chunks"`
	IndexedAt time.Time `json:"indexed_at"`
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。Brokers 未配置时不应调用本函数。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// PublishDocumentIndexed 发布一条文档入库事件。
// 未初始化生产者时静默跳过；发布失败只记录日志，由调用方决定是否忽略。
func PublishDocumentIndexed(ctx context.Context, event DocumentIndexed) error {
	if producer == nil {
		return nil
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.FileMD5),
		Value: eventBytes,
	})
}

// Close 关闭 Kafka 生产者。
func Close() {
	if producer != nil {
		_ = producer.Close()
	}
}
