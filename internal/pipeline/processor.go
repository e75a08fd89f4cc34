// Package pipeline 实现了文档从上传到入库的处理流水线。
package pipeline

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"studymate-go/internal/chunker"
	"studymate-go/internal/config"
	"studymate-go/internal/model"
	"studymate-go/internal/repository"
	"studymate-go/internal/session"
	"studymate-go/pkg/embedding"
	"studymate-go/pkg/events"
	"studymate-go/pkg/extract"
	"studymate-go/pkg/log"
	"studymate-go/pkg/storage"
)

// Processor 负责把单个上传文件转换为可检索的向量化文档。
// 流程：校验 -> 提取 -> 分块 -> 向量化 -> 入库，任一步失败即整个文件失败。
type Processor struct {
	uploadCfg  config.UploadConfig
	extractor  *extract.Client
	embedder   embedding.Client
	chunker    *chunker.Chunker
	uploadRepo repository.UploadRepository
}

// NewProcessor 创建一个文档处理流水线实例。
func NewProcessor(
	uploadCfg config.UploadConfig,
	extractor *extract.Client,
	embedder embedding.Client,
	ch *chunker.Chunker,
	uploadRepo repository.UploadRepository,
) *Processor {
	return &Processor{
		uploadCfg:  uploadCfg,
		extractor:  extractor,
		embedder:   embedder,
		chunker:    ch,
		uploadRepo: uploadRepo,
	}
}

// ProcessFile 处理一个上传文件并将其写入会话状态。
// 返回入库后的文档。文件间互不影响，单个文件失败由上层汇总到 errors 列表。
func (p *Processor) ProcessFile(ctx context.Context, sessionID string, state *session.State, file *model.UploadedFile) (*model.Document, error) {
	log.Infof("[Processor] 开始处理文件, session: %s, file: %s, size: %d", sessionID, file.FileName, file.Size)

	// 步骤 1: 校验文件类型与大小
	if err := p.validate(file); err != nil {
		return nil, err
	}

	sum := md5.Sum(file.Data)
	fileMD5 := hex.EncodeToString(sum[:])

	// 步骤 2: 提取文本
	text, err := p.extractText(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("提取文本失败: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: 文件 '%s' 中没有可提取的文本", model.ErrInvalidFile, file.FileName)
	}
	log.Infof("[Processor] 文本提取完成, file: %s, chars: %d", file.FileName, utf8.RuneCountInString(text))

	// 步骤 3: 文本分块
	chunks := p.chunker.Chunk(text, fileMD5, file.FileName)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: 文件 '%s' 分块后没有有效内容", model.ErrInvalidFile, file.FileName)
	}
	log.Infof("[Processor] 文本分块完成, file: %s, chunks: %d", file.FileName, len(chunks))

	// 步骤 4: 批量向量化
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("向量化失败: %w", err)
	}
	for i, c := range chunks {
		c.Embedding = vectors[i]
	}

	// 步骤 5: 写入会话（同内容重复上传按替换处理）
	doc := &model.Document{
		FileMD5:    fileMD5,
		FileName:   file.FileName,
		Size:       file.Size,
		Text:       text,
		Chunks:     chunks,
		UploadedAt: time.Now(),
	}
	if err := state.ReplaceDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("写入向量索引失败: %w", err)
	}
	log.Infof("[Processor] 文件入库完成, file: %s, md5: %s, chunks: %d", file.FileName, fileMD5, len(chunks))

	// 旁路：原始文件归档、审计记录与入库事件。失败只记录日志，不影响主流程。
	if err := storage.ArchiveUpload(ctx, fileMD5, file.FileName, file.Data); err != nil {
		log.Warnf("[Processor] 归档原始文件失败, file: %s, error: %v", file.FileName, err)
	}
	if err := p.uploadRepo.Create(&model.UploadRecord{
		SessionID: sessionID,
		FileMD5:   fileMD5,
		FileName:  file.FileName,
		TotalSize: file.Size,
		Chunks:    len(chunks),
	}); err != nil {
		log.Warnf("[Processor] 写入上传审计记录失败, file: %s, error: %v", file.FileName, err)
	}
	if err := events.PublishDocumentIndexed(ctx, events.DocumentIndexed{
		SessionID: sessionID,
		FileMD5:   fileMD5,
		FileName:  file.FileName,
		Chunks:    len(chunks),
		IndexedAt: time.Now(),
	}); err != nil {
		log.Warnf("[Processor] 发布入库事件失败, file: %s, error: %v", file.FileName, err)
	}

	return doc, nil
}

// validate 校验文件扩展名与大小。
func (p *Processor) validate(file *model.UploadedFile) error {
	ext := strings.ToLower(filepath.Ext(file.FileName))
	allowed := false
	for _, e := range p.uploadCfg.AllowedExtensions {
		if ext == strings.ToLower(e) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: 不支持的文件类型 '%s'", model.ErrInvalidFile, ext)
	}
	if file.Size > p.uploadCfg.MaxFileSize {
		return fmt.Errorf("%w: 文件 '%s' 大小 %d 超过上限 %d", model.ErrInvalidFile, file.FileName, file.Size, p.uploadCfg.MaxFileSize)
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: 文件 '%s' 内容为空", model.ErrInvalidFile, file.FileName)
	}
	return nil
}

// extractText 提取文件的纯文本内容。
// 纯文本文件直接解码，其余类型交给 Tika。
func (p *Processor) extractText(ctx context.Context, file *model.UploadedFile) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.FileName))
	if ext == ".txt" || ext == ".md" {
		return string(file.Data), nil
	}
	return p.extractor.ExtractText(ctx, bytes.NewReader(file.Data), file.FileName)
}
