package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate-go/internal/chunker"
	"studymate-go/internal/config"
	"studymate-go/internal/model"
	"studymate-go/internal/pipeline"
	"studymate-go/internal/repository"
	"studymate-go/internal/session"
	"studymate-go/pkg/extract"
	"studymate-go/pkg/llm"
	"studymate-go/pkg/vectorstore"
)

// newTestAssistant 组装一套使用内存索引与假客户端的完整问答链路。
// 上传文件一律用 .txt，文本直接解码，不经过 Tika。
func newTestAssistant(t *testing.T, llmClient llm.Client) AssistantService {
	t.Helper()

	embedder := &fakeEmbedder{}
	processor := pipeline.NewProcessor(
		config.UploadConfig{
			MaxFileSize:       1024 * 1024,
			AllowedExtensions: []string{".txt", ".pdf"},
		},
		extract.NewClient(config.TikaConfig{ServerURL: "http://127.0.0.1:1"}),
		embedder,
		chunker.New(config.ChunkingConfig{ChunkSize: 200, ChunkOverlap: 20, MinChunkSize: 10}),
		repository.NewUploadRepository(),
	)
	retriever := NewRetrieverService(config.RetrievalConfig{TopK: 5, MinSimilarity: 0.1}, embedder)
	generator := NewGeneratorService(config.LLMConfig{}, llmClient)
	sessions := session.NewStore(vectorstore.NewMemoryFactory())

	return NewAssistantService(sessions, processor, retriever, generator, llmClient, repository.NewConversationRepository())
}

func txtFile(name, content string) *model.UploadedFile {
	return &model.UploadedFile{
		FileName: name,
		Data:     []byte(content),
		Size:     int64(len(content)),
	}
}

const bioText = "光合作用是绿色植物利用光能，把二氧化碳和水合成有机物并释放氧气的过程。"

func TestUploadAndAsk(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{answer: "光合作用把光能转化为化学能。"})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{
		txtFile("bio.txt", bioText),
	})
	require.True(t, upload.Success)
	require.Len(t, upload.ProcessedFiles, 1)
	assert.Equal(t, "bio.txt", upload.ProcessedFiles[0].FileName)
	assert.Equal(t, upload.TotalChunks, upload.ProcessedFiles[0].Chunks)
	assert.Greater(t, upload.TotalChunks, 0)
	assert.Empty(t, upload.Errors)

	record := assistant.AskQuestion(ctx, "session-1", "什么是光合作用？")
	require.True(t, record.Success)
	assert.Equal(t, "光合作用把光能转化为化学能。", record.Answer)
	assert.Greater(t, record.Confidence, 0.0)
	assert.LessOrEqual(t, record.Confidence, 1.0)
	require.NotEmpty(t, record.Sources)
	assert.Equal(t, "bio.txt", record.Sources[0].FileName)
}

func TestUploadCollectsPerFileErrors(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{
		txtFile("bio.txt", bioText),
		txtFile("evil.exe", "binary"),
		txtFile("blank.txt", "   \n  "),
	})

	// 只要有一个文件成功整体即为成功，失败的文件逐个列入 errors
	require.True(t, upload.Success)
	assert.Len(t, upload.ProcessedFiles, 1)
	assert.Len(t, upload.Errors, 2)
}

func TestUploadAllFilesFail(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{
		txtFile("evil.exe", "binary"),
	})
	assert.False(t, upload.Success)
	assert.Empty(t, upload.ProcessedFiles)
	assert.Len(t, upload.Errors, 1)
}

func TestDuplicateUploadReplacesDocument(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	first := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, first.Success)

	second := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, second.Success)
	assert.Equal(t, first.TotalChunks, second.TotalChunks)

	// 重复上传按替换处理，文档数与分块数不翻倍
	status := assistant.GetSystemStatus(ctx, "session-1")
	assert.Equal(t, 1, status.VectorStoreStats.TotalDocuments)
	assert.Equal(t, first.TotalChunks, status.VectorStoreStats.TotalChunks)
	assert.Equal(t, []string{"bio.txt"}, status.UploadedFiles)
}

func TestAskQuestionTooShort(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	for _, q := range []string{"", "嗯", "a b", "  啊？ "} {
		record := assistant.AskQuestion(ctx, "session-1", q)
		assert.False(t, record.Success, "问题 %q 应被拒绝", q)
		assert.Contains(t, record.Error, "问题太短")
		assert.Empty(t, record.Answer)
	}
}

func TestAskQuestionEmptySession(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	record := assistant.AskQuestion(ctx, "session-1", "什么是光合作用？")
	require.False(t, record.Success)
	assert.Contains(t, record.Error, "请先上传文档")
}

func TestAskQuestionNoRelevantContext(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{answer: "不应被调用"})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{
		txtFile("cell.txt", "细胞是生物体结构和功能的基本单位。"),
	})
	require.True(t, upload.Success)

	// 问题与资料内容正交，检索无有效命中，返回固定回答
	record := assistant.AskQuestion(ctx, "session-1", "今天晚饭吃什么")
	require.True(t, record.Success)
	assert.Equal(t, defaultNoResultText, record.Answer)
	assert.Zero(t, record.Confidence)
	assert.Empty(t, record.Sources)
}

func TestAskQuestionDemoMode(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{chatErr: errors.New("connection refused")})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, upload.Success)

	record := assistant.AskQuestion(ctx, "session-1", "什么是光合作用？")
	require.True(t, record.Success)
	assert.Contains(t, record.Answer, "演示模式")
	assert.Greater(t, record.Confidence, 0.0)
	assert.NotEmpty(t, record.Sources)
}

func TestGetSystemStatus(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{})

	status := assistant.GetSystemStatus(ctx, "session-1")
	assert.False(t, status.Initialized)
	assert.Empty(t, status.UploadedFiles)
	assert.Zero(t, status.VectorStoreStats.TotalChunks)
	assert.True(t, status.LLMConnection)

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, upload.Success)

	status = assistant.GetSystemStatus(ctx, "session-1")
	assert.True(t, status.Initialized)
	assert.Equal(t, []string{"bio.txt"}, status.UploadedFiles)
	assert.Equal(t, upload.TotalChunks, status.VectorStoreStats.TotalChunks)
}

func TestGetSystemStatusLLMUnavailable(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{pingErr: model.ErrGenerationUnavailable})

	status := assistant.GetSystemStatus(ctx, "session-1")
	assert.False(t, status.LLMConnection)
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{answer: "回答"})

	upload := assistant.UploadDocuments(ctx, "session-1", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, upload.Success)

	require.NoError(t, assistant.ClearSession(ctx, "session-1"))

	status := assistant.GetSystemStatus(ctx, "session-1")
	assert.False(t, status.Initialized)
	assert.Empty(t, status.UploadedFiles)
	assert.Zero(t, status.VectorStoreStats.TotalDocuments)

	// 清空后提问回到"无资料"状态
	record := assistant.AskQuestion(ctx, "session-1", "什么是光合作用？")
	assert.False(t, record.Success)

	// 重复清空与清空未知会话都是空操作
	require.NoError(t, assistant.ClearSession(ctx, "session-1"))
	require.NoError(t, assistant.ClearSession(ctx, "unknown-session"))
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	assistant := newTestAssistant(t, &fakeLLM{answer: "回答"})

	upload := assistant.UploadDocuments(ctx, "session-a", []*model.UploadedFile{txtFile("bio.txt", bioText)})
	require.True(t, upload.Success)

	// 另一个会话看不到 session-a 的资料
	record := assistant.AskQuestion(ctx, "session-b", "什么是光合作用？")
	assert.False(t, record.Success)

	status := assistant.GetSystemStatus(ctx, "session-b")
	assert.False(t, status.Initialized)
}
