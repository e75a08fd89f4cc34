// Package service 实现了问答助手的核心业务逻辑。
package service

import (
	"context"
	"fmt"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
	"studymate-go/internal/session"
	"studymate-go/pkg/embedding"
	"studymate-go/pkg/log"
)

// RetrieverService 定义了语义检索的接口。
type RetrieverService interface {
	// Retrieve 对问题向量化并在会话索引中检索最相关的分块。
	// 低于相似度下限的命中被丢弃；没有文档或没有有效命中时返回空结果（不是错误）。
	Retrieve(ctx context.Context, state *session.State, question string) (*model.RetrievalResult, error)
}

type retrieverService struct {
	cfg      config.RetrievalConfig
	embedder embedding.Client
}

// NewRetrieverService 创建一个检索服务实例。
func NewRetrieverService(cfg config.RetrievalConfig, embedder embedding.Client) RetrieverService {
	return &retrieverService{cfg: cfg, embedder: embedder}
}

// Retrieve 执行一次 top-K 语义检索。
func (s *retrieverService) Retrieve(ctx context.Context, state *session.State, question string) (*model.RetrievalResult, error) {
	result := &model.RetrievalResult{Question: question}
	if state.Empty() {
		return result, nil
	}

	// 步骤 1: 将问题向量化
	vector, err := s.embedder.CreateEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("问题向量化失败: %w", err)
	}

	// 步骤 2: 在会话索引中检索
	hits, err := state.Query(ctx, vector, s.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	// 步骤 3: 过滤低于下限的命中。展示得分裁剪到 [0,1]，原始余弦值保留。
	for _, h := range hits {
		display := h.Score
		if display < 0 {
			display = 0
		}
		if display > 1 {
			display = 1
		}
		if display < s.cfg.MinSimilarity {
			continue
		}
		result.Hits = append(result.Hits, model.RetrievedChunk{
			Chunk:        h.Chunk,
			Score:        h.Score,
			DisplayScore: display,
		})
	}

	log.Infof("[RetrieverService] 检索完成, question_len: %d, candidates: %d, hits: %d",
		len([]rune(question)), len(hits), len(result.Hits))
	return result, nil
}
