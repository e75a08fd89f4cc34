package vectorstore

import (
	"context"
	"sort"
	"sync"

	"studymate-go/internal/model"
)

// memoryEntry 是内存索引中的一条记录。归一化后的向量与分块引用一起保存，
// seq 记录全局插入顺序，用于相同相似度时的稳定排序。
type memoryEntry struct {
	vector []float32
	chunk  *model.Chunk
	seq    int
}

// MemoryIndex 是基于暴力余弦相似度的进程内向量索引。
type MemoryIndex struct {
	mu      sync.RWMutex
	entries []memoryEntry
	nextSeq int
}

// NewMemoryIndex 创建一个空的内存索引。
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// NewMemoryFactory 返回内存后端的索引工厂。
func NewMemoryFactory() Factory {
	return func(string) (Index, error) {
		return NewMemoryIndex(), nil
	}
}

// Insert 插入一批分块，向量在此处做一次性归一化。
func (s *MemoryIndex) Insert(ctx context.Context, chunks []*model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.entries = append(s.entries, memoryEntry{
			vector: normalize(c.Embedding),
			chunk:  c,
			seq:    s.nextSeq,
		})
		s.nextSeq++
	}
	return nil
}

// Remove 删除指定文档的全部条目。
func (s *MemoryIndex) Remove(ctx context.Context, fileMD5 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.chunk.FileMD5 != fileMD5 {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Query 返回前 k 个命中，按相似度降序，相同分数按插入顺序。
// k 超过存量时返回全部条目，不补齐也不报错。
func (s *MemoryIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.entries) == 0 {
		return nil, nil
	}

	q := normalize(vector)

	type scored struct {
		score float64
		seq   int
		chunk *model.Chunk
	}
	results := make([]scored, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, scored{score: dot(e.vector, q), seq: e.seq, chunk: e.chunk})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].seq < results[j].seq
	})

	if k > len(results) {
		k = len(results)
	}
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = Hit{Chunk: results[i].chunk, Score: results[i].score}
	}
	return hits, nil
}

// Size 返回索引中的条目总数。
func (s *MemoryIndex) Size(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Clear 清空索引。
func (s *MemoryIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.nextSeq = 0
	return nil
}
