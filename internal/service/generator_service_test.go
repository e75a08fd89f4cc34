package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
)

func retrievalWithScores(question string, scores map[string][]float64) *model.RetrievalResult {
	result := &model.RetrievalResult{Question: question}
	for fileName, fileScores := range scores {
		for i, score := range fileScores {
			result.Hits = append(result.Hits, model.RetrievedChunk{
				Chunk: &model.Chunk{
					FileMD5:  "md5-" + fileName,
					FileName: fileName,
					Index:    i,
					Text:     "分块内容 " + fileName,
				},
				Score:        score,
				DisplayScore: score,
			})
		}
	}
	return result
}

func simpleRetrieval(question string, scores ...float64) *model.RetrievalResult {
	result := &model.RetrievalResult{Question: question}
	for i, score := range scores {
		result.Hits = append(result.Hits, model.RetrievedChunk{
			Chunk: &model.Chunk{
				FileMD5:  "md5-bio",
				FileName: "bio.pdf",
				Index:    i,
				Text:     "光合作用的相关内容",
			},
			Score:        score,
			DisplayScore: score,
		})
	}
	return result
}

func TestGenerateWithLLM(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{answer: "光合作用是植物合成有机物的过程。"})
	retrieval := simpleRetrieval("什么是光合作用", 0.9, 0.8)

	record := generator.Generate(context.Background(), retrieval)
	require.True(t, record.Success)
	assert.Equal(t, "光合作用是植物合成有机物的过程。", record.Answer)
	assert.Empty(t, record.Error)

	// confidence = 0.7*0.9 + 0.3*mean(0.9, 0.8)
	assert.InDelta(t, 0.7*0.9+0.3*0.85, record.Confidence, 1e-9)
	require.Len(t, record.Sources, 1)
	assert.Equal(t, "bio.pdf", record.Sources[0].FileName)
	assert.InDelta(t, 0.9, record.Sources[0].RelevanceScore, 1e-9)
}

func TestGenerateEmptyRetrieval(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{answer: "不应被调用"})
	record := generator.Generate(context.Background(), &model.RetrievalResult{Question: "什么是光合作用"})

	require.True(t, record.Success)
	assert.Equal(t, defaultNoResultText, record.Answer)
	assert.Zero(t, record.Confidence)
	assert.Empty(t, record.Sources)
}

func TestGenerateDemoModeOnLLMFailure(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{chatErr: errors.New("connection refused")})
	retrieval := simpleRetrieval("什么是光合作用", 1.0)

	record := generator.Generate(context.Background(), retrieval)
	require.True(t, record.Success)
	assert.Contains(t, record.Answer, "演示模式")
	assert.Contains(t, record.Answer, "光合作用的相关内容")

	// 演示模式置信度折半：正常 1.0 -> 0.5
	assert.InDelta(t, 0.5, record.Confidence, 1e-9)
	require.Len(t, record.Sources, 1)
}

func TestConfidenceBounds(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{})

	assert.Zero(t, generator.Confidence(&model.RetrievalResult{}))

	// 全满分时恰好为 1，不会越界
	assert.InDelta(t, 1.0, generator.Confidence(simpleRetrieval("q", 1.0, 1.0, 1.0)), 1e-9)

	// 只取前三名参与均值
	withFour := simpleRetrieval("q", 0.9, 0.9, 0.9, 0.1)
	assert.InDelta(t, 0.7*0.9+0.3*0.9, generator.Confidence(withFour), 1e-9)

	for _, scores := range [][]float64{{0.2}, {0.5, 0.3}, {1.0, 0.0, 0.0}} {
		c := generator.Confidence(simpleRetrieval("q", scores...))
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestSourcesDeduplicatedByFile(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{})
	retrieval := &model.RetrievalResult{Question: "q"}
	// bio.pdf 命中两次，应只出现一次并取首个（最高）得分
	for i, hit := range []struct {
		file  string
		score float64
	}{
		{"bio.pdf", 0.9},
		{"bio.pdf", 0.7},
		{"chem.pdf", 0.6},
		{"math.pdf", 0.5},
		{"phys.pdf", 0.4},
	} {
		retrieval.Hits = append(retrieval.Hits, model.RetrievedChunk{
			Chunk:        &model.Chunk{FileMD5: "md5", FileName: hit.file, Index: i, Text: "内容"},
			Score:        hit.score,
			DisplayScore: hit.score,
		})
	}

	sources := generator.Sources(retrieval)
	require.Len(t, sources, maxSources)
	assert.Equal(t, "bio.pdf", sources[0].FileName)
	assert.InDelta(t, 0.9, sources[0].RelevanceScore, 1e-9)
	assert.Equal(t, "chem.pdf", sources[1].FileName)
	assert.Equal(t, "math.pdf", sources[2].FileName)
}

func TestBuildMessagesIncludesContextAndQuestion(t *testing.T) {
	generator := NewGeneratorService(config.LLMConfig{}, &fakeLLM{})
	retrieval := retrievalWithScores("什么是光合作用", map[string][]float64{"bio.pdf": {0.9}})

	messages := generator.BuildMessages(retrieval)
	require.Len(t, messages, 2)

	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "参考资料")
	assert.Contains(t, messages[0].Content, "bio.pdf")
	assert.Contains(t, messages[0].Content, "分块内容 bio.pdf")

	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "什么是光合作用", messages[1].Content)
}

func TestBuildMessagesCustomPromptConfig(t *testing.T) {
	cfg := config.LLMConfig{
		Prompt: config.LLMPromptConfig{
			Rules:    "只用英文回答。",
			RefStart: "<context>",
			RefEnd:   "</context>",
		},
	}
	generator := NewGeneratorService(cfg, &fakeLLM{})
	retrieval := simpleRetrieval("什么是光合作用", 0.9)

	messages := generator.BuildMessages(retrieval)
	require.Len(t, messages, 2)
	assert.True(t, strings.HasPrefix(messages[0].Content, "只用英文回答。"))
	assert.Contains(t, messages[0].Content, "<context>")
	assert.Contains(t, messages[0].Content, "</context>")
}
