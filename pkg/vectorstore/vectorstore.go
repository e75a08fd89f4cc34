// Package vectorstore 提供了向量索引的抽象与实现。
// 默认实现是进程内的暴力余弦索引；可选的 Elasticsearch 后端用于外置部署。
package vectorstore

import (
	"context"
	"math"

	"studymate-go/internal/model"
)

// Hit 是一次近邻查询的单个命中。
type Hit struct {
	Chunk *model.Chunk
	// Score 余弦相似度，降序排列，相同分数按插入顺序排列。
	Score float64
}

// Index 定义了向量索引的操作。
// 实现必须支持增量插入（新文档加入无需重建），并在 k 超过存量时返回全部结果。
type Index interface {
	// Insert 插入一批分块。向量会在插入时做 L2 归一化。
	Insert(ctx context.Context, chunks []*model.Chunk) error
	// Remove 删除指定文档（按内容 MD5）的全部条目，用于同内容重复上传的替换。
	Remove(ctx context.Context, fileMD5 string) error
	// Query 返回与查询向量最相似的前 k 个分块，按相似度降序。
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Size 返回索引中的条目总数。
	Size(ctx context.Context) (int, error)
	// Clear 清空索引中的全部条目。
	Clear(ctx context.Context) error
}

// Factory 为给定会话构造一个独立的向量索引实例。
type Factory func(sessionID string) (Index, error)

// normalize 返回 L2 归一化后的副本；零向量原样返回。
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot 计算两个向量的点积。向量已归一化时等价于余弦相似度。
func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
