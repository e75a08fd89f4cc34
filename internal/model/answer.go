package model

import "fmt"

// RetrievedChunk 代表一次检索命中的分块及其相似度得分。
type RetrievedChunk struct {
	Chunk *Chunk
	// Score 原始余弦相似度，向下不截断。
	Score float64
	// DisplayScore 裁剪到 [0,1] 后用于展示的相似度。
	DisplayScore float64
}

// RetrievalResult 是一次检索的有序结果，得分单调不增，长度不超过 K。
type RetrievalResult struct {
	Question string
	Hits     []RetrievedChunk
}

// Empty 报告检索是否没有任何命中。
func (r *RetrievalResult) Empty() bool {
	return len(r.Hits) == 0
}

// TopScore 返回最高的展示得分，空结果返回 0。
func (r *RetrievalResult) TopScore() float64 {
	if len(r.Hits) == 0 {
		return 0
	}
	return r.Hits[0].DisplayScore
}

// AnswerSource 描述答案引用的一个来源文件及其相关度。
type AnswerSource struct {
	FileName       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AnswerRecord 是 ask_question 返回给调用方的结构化结果。
// 核心本身不持久化该记录，对话历史由表现层（或可选的 Redis 旁路）负责。
type AnswerRecord struct {
	Success    bool           `json:"success"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Sources    []AnswerSource `json:"sources"`
	Error      string         `json:"error,omitempty"`
}

// ProcessedFile 描述一次上传中单个文件的处理结果。
type ProcessedFile struct {
	FileName string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Size     int64  `json:"size"`
}

// UploadResult 是 upload_documents 返回给调用方的汇总结果。
// Success 为 true 当且仅当至少有一个文件处理成功。
type UploadResult struct {
	Success        bool            `json:"success"`
	ProcessedFiles []ProcessedFile `json:"processed_files"`
	TotalChunks    int             `json:"total_chunks"`
	Errors         []string        `json:"errors"`
}

// VectorStoreStats 描述向量索引的规模快照。
type VectorStoreStats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
}

// SystemStatus 是 get_system_status 返回的快照，任何情况下都不应失败。
type SystemStatus struct {
	Initialized      bool             `json:"initialized"`
	UploadedFiles    []string         `json:"uploaded_files"`
	VectorStoreStats VectorStoreStats `json:"vector_store_stats"`
	LLMConnection    bool             `json:"llm_connection"`
}

// UploadedFile 是上传接口接收的单个文件的内存表示。
type UploadedFile struct {
	FileName string
	Data     []byte
	Size     int64
}

func chunkKey(fileMD5 string, index int) string {
	return fmt.Sprintf("%s_%d", fileMD5, index)
}
