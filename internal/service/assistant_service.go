package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"studymate-go/internal/model"
	"studymate-go/internal/pipeline"
	"studymate-go/internal/repository"
	"studymate-go/internal/session"
	"studymate-go/pkg/llm"
	"studymate-go/pkg/log"
)

// 问题的最小有效长度（按非空白字符计）。
const minQuestionRunes = 3

// AssistantService 是面向表现层的问答助手门面。
// 除 ClearSession 外的方法都不返回 error：失败以结构化结果的形式返回，
// 表现层不需要区分失败原因，只负责透传。
type AssistantService interface {
	// UploadDocuments 处理一批上传文件。文件间互不影响，
	// 只要至少一个文件成功整体即视为成功。
	UploadDocuments(ctx context.Context, sessionID string, files []*model.UploadedFile) *model.UploadResult
	// AskQuestion 执行一次完整的检索问答。
	AskQuestion(ctx context.Context, sessionID string, question string) *model.AnswerRecord
	// Retrieve 校验问题并执行检索，供流式接口复用。
	// 校验失败返回 model.ErrEmptyInput / model.ErrEmptySession。
	Retrieve(ctx context.Context, sessionID string, question string) (*model.RetrievalResult, error)
	// GetSystemStatus 返回会话状态快照，任何情况下都不会失败。
	GetSystemStatus(ctx context.Context, sessionID string) *model.SystemStatus
	// GetConversation 返回会话的问答历史（未启用 Redis 时恒为空）。
	GetConversation(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	// ClearSession 清空会话的全部文档、索引与历史。幂等。
	ClearSession(ctx context.Context, sessionID string) error
}

type assistantService struct {
	sessions  *session.Store
	processor *pipeline.Processor
	retriever RetrieverService
	generator GeneratorService
	llm       llm.Client
	convRepo  repository.ConversationRepository
}

// NewAssistantService 创建问答助手门面实例。
func NewAssistantService(
	sessions *session.Store,
	processor *pipeline.Processor,
	retriever RetrieverService,
	generator GeneratorService,
	llmClient llm.Client,
	convRepo repository.ConversationRepository,
) AssistantService {
	return &assistantService{
		sessions:  sessions,
		processor: processor,
		retriever: retriever,
		generator: generator,
		llm:       llmClient,
		convRepo:  convRepo,
	}
}

// UploadDocuments 逐个处理上传文件并汇总结果。
func (s *assistantService) UploadDocuments(ctx context.Context, sessionID string, files []*model.UploadedFile) *model.UploadResult {
	result := &model.UploadResult{
		ProcessedFiles: []model.ProcessedFile{},
		Errors:         []string{},
	}

	state, err := s.sessions.Get(sessionID)
	if err != nil {
		log.Errorf("[AssistantService] 获取会话状态失败, session: %s, error: %v", sessionID, err)
		result.Errors = append(result.Errors, "会话初始化失败，请稍后重试")
		return result
	}

	for _, file := range files {
		doc, err := s.processor.ProcessFile(ctx, sessionID, state, file)
		if err != nil {
			log.Errorf("[AssistantService] 处理文件失败, file: %s, error: %v", file.FileName, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.FileName, err))
			continue
		}
		result.ProcessedFiles = append(result.ProcessedFiles, model.ProcessedFile{
			FileName: doc.FileName,
			Chunks:   len(doc.Chunks),
			Size:     doc.Size,
		})
		result.TotalChunks += len(doc.Chunks)
	}

	result.Success = len(result.ProcessedFiles) > 0
	log.Infof("[AssistantService] 上传处理完成, session: %s, ok: %d, failed: %d",
		sessionID, len(result.ProcessedFiles), len(result.Errors))
	return result
}

// Retrieve 校验问题后执行检索。
func (s *assistantService) Retrieve(ctx context.Context, sessionID string, question string) (*model.RetrievalResult, error) {
	if countNonSpace(question) < minQuestionRunes {
		return nil, fmt.Errorf("%w: 问题至少需要 %d 个有效字符", model.ErrEmptyInput, minQuestionRunes)
	}

	state, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if state.Empty() {
		return nil, model.ErrEmptySession
	}

	return s.retriever.Retrieve(ctx, state, strings.TrimSpace(question))
}

// AskQuestion 执行一次完整的问答，任何失败都转化为结构化的失败记录。
func (s *assistantService) AskQuestion(ctx context.Context, sessionID string, question string) (record *model.AnswerRecord) {
	// 问答是最复杂的链路，panic 在此兜底转化为失败记录，不让单次请求拖垮进程。
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[AssistantService] 问答流程 panic, session: %s, recover: %v", sessionID, r)
			record = failureRecord("服务内部错误，请稍后重试")
		}
	}()

	retrieval, err := s.Retrieve(ctx, sessionID, question)
	if err != nil {
		log.Warnf("[AssistantService] 检索失败, session: %s, error: %v", sessionID, err)
		return failureRecord(askErrorMessage(err))
	}

	record = s.generator.Generate(ctx, retrieval)

	if record.Success {
		s.appendHistory(ctx, sessionID, strings.TrimSpace(question), record.Answer)
	}
	return record
}

// GetSystemStatus 返回会话状态快照。
func (s *assistantService) GetSystemStatus(ctx context.Context, sessionID string) *model.SystemStatus {
	status := &model.SystemStatus{
		UploadedFiles: []string{},
	}

	state, err := s.sessions.Get(sessionID)
	if err != nil {
		log.Errorf("[AssistantService] 获取会话状态失败, session: %s, error: %v", sessionID, err)
		return status
	}

	status.Initialized = !state.Empty()
	if names := state.FileNames(); len(names) > 0 {
		status.UploadedFiles = names
	}
	status.VectorStoreStats = state.Stats()
	status.LLMConnection = s.llm.Ping(ctx) == nil
	return status
}

// GetConversation 返回会话的问答历史。
func (s *assistantService) GetConversation(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	return s.convRepo.GetHistory(ctx, sessionID)
}

// ClearSession 清空会话。对不存在的会话是空操作。
func (s *assistantService) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("清空会话索引失败: %w", err)
	}
	if err := s.convRepo.ClearHistory(ctx, sessionID); err != nil {
		// 历史是旁路数据，清理失败不影响会话本身已被清空的事实。
		log.Warnf("[AssistantService] 清空会话历史失败, session: %s, error: %v", sessionID, err)
	}
	log.Infof("[AssistantService] 会话已清空, session: %s", sessionID)
	return nil
}

// appendHistory 把一轮问答写入历史，失败只记录日志。
func (s *assistantService) appendHistory(ctx context.Context, sessionID, question, answer string) {
	now := time.Now()
	if err := s.convRepo.AppendMessage(ctx, sessionID, model.ChatMessage{
		Role: "user", Content: question, Timestamp: now,
	}); err != nil {
		log.Warnf("[AssistantService] 写入问答历史失败, session: %s, error: %v", sessionID, err)
		return
	}
	if err := s.convRepo.AppendMessage(ctx, sessionID, model.ChatMessage{
		Role: "assistant", Content: answer, Timestamp: now,
	}); err != nil {
		log.Warnf("[AssistantService] 写入问答历史失败, session: %s, error: %v", sessionID, err)
	}
}

// askErrorMessage 把检索链路的错误翻译为面向用户的提示。
func askErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrEmptyInput):
		return fmt.Sprintf("问题太短，至少需要 %d 个有效字符", minQuestionRunes)
	case errors.Is(err, model.ErrEmptySession):
		return "当前会话还没有任何资料，请先上传文档"
	case errors.Is(err, model.ErrEmbeddingFailure):
		return "向量化服务暂时不可用，请稍后重试"
	default:
		return "检索失败，请稍后重试"
	}
}

func failureRecord(message string) *model.AnswerRecord {
	return &model.AnswerRecord{
		Success:    false,
		Answer:     "",
		Confidence: 0,
		Sources:    []model.AnswerSource{},
		Error:      message,
	}
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
