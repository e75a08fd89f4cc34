package service

import (
	"context"
	"fmt"
	"strings"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
	"studymate-go/pkg/llm"
	"studymate-go/pkg/log"
)

// 答案引用的来源条数上限。
const maxSources = 3

// 演示模式下置信度的折减系数。
const demoConfidenceFactor = 0.5

// 演示模式下单个片段的最大展示长度（按 rune 计）。
const demoExcerptLen = 300

// 默认的系统提示规则，可被配置覆盖。
const defaultRules = `你是一个学习辅导助手。请严格根据参考资料回答用户的问题：
1. 回答必须基于参考资料的内容，不要编造资料中不存在的信息。
2. 如果参考资料不足以回答问题，请明确说明。
3. 回答使用与问题相同的语言，表述清晰、有条理。`

// 检索无有效上下文时的固定回答，可被配置覆盖。
const defaultNoResultText = "未能在已上传的资料中找到与这个问题相关的内容，请尝试换个问法，或上传更多资料。"

// GeneratorService 定义了基于检索上下文生成答案的接口。
type GeneratorService interface {
	// Generate 根据检索结果生成一条完整的结构化答案。
	// 语言模型不可达时降级为演示模式（抽取式答案），而不是返回错误。
	Generate(ctx context.Context, retrieval *model.RetrievalResult) *model.AnswerRecord
	// BuildMessages 构造发给语言模型的完整消息序列，供流式接口复用。
	BuildMessages(retrieval *model.RetrievalResult) []llm.Message
	// Confidence 根据检索得分计算答案置信度，范围 [0,1]。
	Confidence(retrieval *model.RetrievalResult) float64
	// Sources 提取答案引用的来源文件列表（按文件去重，取最高得分）。
	Sources(retrieval *model.RetrievalResult) []model.AnswerSource
	// DemoAnswer 生成演示模式的抽取式答案。
	DemoAnswer(retrieval *model.RetrievalResult) string
}

type generatorService struct {
	cfg config.LLMConfig
	llm llm.Client
}

// NewGeneratorService 创建一个答案生成服务实例。
func NewGeneratorService(cfg config.LLMConfig, client llm.Client) GeneratorService {
	return &generatorService{cfg: cfg, llm: client}
}

// Generate 生成一条结构化答案。无上下文与模型不可达都按成功的降级结果返回。
func (s *generatorService) Generate(ctx context.Context, retrieval *model.RetrievalResult) *model.AnswerRecord {
	if retrieval.Empty() {
		return &model.AnswerRecord{
			Success:    true,
			Answer:     s.noResultText(),
			Confidence: 0,
			Sources:    []model.AnswerSource{},
		}
	}

	messages := s.BuildMessages(retrieval)
	answer, err := s.llm.Chat(ctx, messages, nil)
	if err != nil {
		// 模型不可达时退化为抽取式答案，置信度按比例折减。
		log.Warnf("[GeneratorService] 调用语言模型失败, 降级为演示模式: %v", err)
		return &model.AnswerRecord{
			Success:    true,
			Answer:     s.DemoAnswer(retrieval),
			Confidence: s.Confidence(retrieval) * demoConfidenceFactor,
			Sources:    s.Sources(retrieval),
		}
	}

	return &model.AnswerRecord{
		Success:    true,
		Answer:     answer,
		Confidence: s.Confidence(retrieval),
		Sources:    s.Sources(retrieval),
	}
}

// BuildMessages 把检索到的分块包装为参考资料，与系统规则一起构成消息序列。
func (s *generatorService) BuildMessages(retrieval *model.RetrievalResult) []llm.Message {
	refStart := s.cfg.Prompt.RefStart
	if refStart == "" {
		refStart = "<参考资料>"
	}
	refEnd := s.cfg.Prompt.RefEnd
	if refEnd == "" {
		refEnd = "</参考资料>"
	}
	rules := s.cfg.Prompt.Rules
	if rules == "" {
		rules = defaultRules
	}

	var sb strings.Builder
	sb.WriteString(refStart)
	sb.WriteString("\n")
	for i, hit := range retrieval.Hits {
		sb.WriteString(fmt.Sprintf("[片段 %d] 来源: %s\n%s\n\n", i+1, hit.Chunk.FileName, hit.Chunk.Text))
	}
	sb.WriteString(refEnd)

	return []llm.Message{
		{Role: "system", Content: rules + "\n\n" + sb.String()},
		{Role: "user", Content: retrieval.Question},
	}
}

// Confidence 计算置信度：0.7 * 最高得分 + 0.3 * 前三名均分，裁剪到 [0,1]。
func (s *generatorService) Confidence(retrieval *model.RetrievalResult) float64 {
	if retrieval.Empty() {
		return 0
	}

	top := retrieval.TopScore()
	n := len(retrieval.Hits)
	if n > 3 {
		n = 3
	}
	var sum float64
	for _, hit := range retrieval.Hits[:n] {
		sum += hit.DisplayScore
	}
	mean := sum / float64(n)

	confidence := 0.7*top + 0.3*mean
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// Sources 按文件去重后返回前几个来源，得分取该文件命中分块中的最高值。
func (s *generatorService) Sources(retrieval *model.RetrievalResult) []model.AnswerSource {
	sources := make([]model.AnswerSource, 0, maxSources)
	seen := make(map[string]bool)
	for _, hit := range retrieval.Hits {
		if seen[hit.Chunk.FileName] {
			continue
		}
		seen[hit.Chunk.FileName] = true
		sources = append(sources, model.AnswerSource{
			FileName:       hit.Chunk.FileName,
			RelevanceScore: hit.DisplayScore,
		})
		if len(sources) >= maxSources {
			break
		}
	}
	return sources
}

// DemoAnswer 不调用模型，直接拼接最相关的原文片段作为答案。
func (s *generatorService) DemoAnswer(retrieval *model.RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("【演示模式】语言模型暂不可用，以下是资料中与问题最相关的内容：\n")
	n := len(retrieval.Hits)
	if n > maxSources {
		n = maxSources
	}
	for i, hit := range retrieval.Hits[:n] {
		excerpt := []rune(strings.TrimSpace(hit.Chunk.Text))
		if len(excerpt) > demoExcerptLen {
			excerpt = append(excerpt[:demoExcerptLen], []rune("……")...)
		}
		sb.WriteString(fmt.Sprintf("\n%d. （%s）%s\n", i+1, hit.Chunk.FileName, string(excerpt)))
	}
	return sb.String()
}

func (s *generatorService) noResultText() string {
	if s.cfg.Prompt.NoResultText != "" {
		return s.cfg.Prompt.NoResultText
	}
	return defaultNoResultText
}
