package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate-go/internal/model"
)

func chunkWithVector(fileMD5 string, index int, text string, vector []float32) *model.Chunk {
	return &model.Chunk{
		FileMD5:   fileMD5,
		FileName:  fileMD5 + ".pdf",
		Index:     index,
		Text:      text,
		Embedding: vector,
	}
}

func TestMemoryIndexQueryOrdering(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Insert(ctx, []*model.Chunk{
		chunkWithVector("doc1", 0, "正交", []float32{0, 1}),
		chunkWithVector("doc1", 1, "最相关", []float32{1, 0}),
		chunkWithVector("doc1", 2, "较相关", []float32{0.8, 0.6}),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "最相关", hits[0].Chunk.Text)
	assert.Equal(t, "较相关", hits[1].Chunk.Text)
	assert.Equal(t, "正交", hits[2].Chunk.Text)

	// 得分单调不增
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestMemoryIndexTieBreakByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	// 完全相同的向量，得分相同，应按插入顺序返回
	require.NoError(t, idx.Insert(ctx, []*model.Chunk{
		chunkWithVector("doc1", 0, "第一条", []float32{1, 0}),
		chunkWithVector("doc1", 1, "第二条", []float32{1, 0}),
		chunkWithVector("doc1", 2, "第三条", []float32{1, 0}),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "第一条", hits[0].Chunk.Text)
	assert.Equal(t, "第二条", hits[1].Chunk.Text)
	assert.Equal(t, "第三条", hits[2].Chunk.Text)
}

func TestMemoryIndexKLargerThanSize(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Insert(ctx, []*model.Chunk{
		chunkWithVector("doc1", 0, "a", []float32{1, 0}),
		chunkWithVector("doc1", 1, "b", []float32{0, 1}),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Query(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Insert(ctx, []*model.Chunk{
		chunkWithVector("doc1", 0, "a", []float32{1, 0}),
		chunkWithVector("doc2", 0, "b", []float32{0, 1}),
	}))
	require.NoError(t, idx.Remove(ctx, "doc1"))

	size, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	hits, err := idx.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc2", hits[0].Chunk.FileMD5)
}

func TestMemoryIndexClear(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Insert(ctx, []*model.Chunk{
		chunkWithVector("doc1", 0, "a", []float32{1, 0}),
	}))
	require.NoError(t, idx.Clear(ctx))

	size, err := idx.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	hits, err := idx.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNormalizeZeroVector(t *testing.T) {
	// 零向量不做归一化，与任何向量的点积为 0
	v := normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
	assert.InDelta(t, 0.0, dot(v, normalize([]float32{1, 0, 0})), 1e-6)
}
