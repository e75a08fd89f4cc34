package service

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"

	"studymate-go/pkg/llm"
)

// fakeEmbedder 按关键词把文本映射到固定的单位向量，保证检索结果可预测。
type fakeEmbedder struct {
	err error
}

func keywordVector(text string) []float32 {
	switch {
	case strings.Contains(text, "光合作用"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "细胞"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return keywordVector(text), nil
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = keywordVector(t)
	}
	return vectors, nil
}

// fakeLLM 返回固定回答，或以固定错误模拟模型不可达。
type fakeLLM struct {
	answer  string
	chatErr error
	pingErr error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.answer, nil
}

func (f *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	return writer.WriteMessage(websocket.TextMessage, []byte(f.answer))
}

func (f *fakeLLM) Ping(ctx context.Context) error {
	return f.pingErr
}
