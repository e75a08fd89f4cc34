// Package model 包含了应用的数据模型定义。
package model

import "time"

// Document 代表一份已成功入库的学习材料。
// 身份由文件名 + 内容 MD5 共同确定；内容相同的重复上传会整体替换旧文档。
type Document struct {
	// FileMD5 原始字节内容的 MD5，作为文档的内容哈希身份。
	FileMD5 string
	// FileName 上传时的原始文件名。
	FileName string
	// Size 原始字节大小。
	Size int64
	// Text 提取出的全文。
	Text string
	// Chunks 按文档内顺序排列的分块，嵌入向量写入后不再变更。
	Chunks []*Chunk
	// UploadedAt 入库时间。
	UploadedAt time.Time
}

// Chunk 代表文档中一段有界的连续文本，是检索的原子单位。
type Chunk struct {
	// FileMD5 所属文档的内容哈希（非拥有型反向引用）。
	FileMD5 string
	// FileName 所属文档的文件名，用于来源标注。
	FileName string
	// Index 分块在文档内的顺序号，从 0 开始。
	Index int
	// Text 分块文本。
	Text string
	// StartOffset 与 EndOffset 是分块在全文中的字符（rune）偏移，左闭右开。
	StartOffset int
	EndOffset   int
	// Embedding 分块的嵌入向量，赋值一次后不可变。
	Embedding []float32
}

// ChunkKey 返回分块在向量索引中的唯一标识，例如 fileMd5_chunkIndex。
func (c *Chunk) ChunkKey() string {
	return chunkKey(c.FileMD5, c.Index)
}
