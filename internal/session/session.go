// Package session 管理每个用户会话的内存状态：已上传的文档与活跃的向量索引。
// 会话状态只存在于进程内，进程重启等价于一次隐式清空。
package session

import (
	"context"
	"sync"

	"studymate-go/internal/model"
	"studymate-go/pkg/vectorstore"
)

// State 是单个会话的状态：零或多份文档与一个向量索引。
// upload/clear 是仅有的两个写路径，持有写锁以避免读者看到入库中途的半成品；
// ask/status 只读，持有读锁。
type State struct {
	mu    sync.RWMutex
	docs  map[string]*model.Document // 按内容 MD5 索引
	order []string                   // 上传顺序，用于稳定的文件列表
	index vectorstore.Index
}

func newState(index vectorstore.Index) *State {
	return &State{
		docs:  make(map[string]*model.Document),
		index: index,
	}
}

// ReplaceDocument 以内容哈希为准将文档写入会话。
// 相同内容的重复上传会先移除旧条目再插入，保证分块计数不变（替换策略）。
func (s *State) ReplaceDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[doc.FileMD5]; exists {
		if err := s.index.Remove(ctx, doc.FileMD5); err != nil {
			return err
		}
	} else {
		s.order = append(s.order, doc.FileMD5)
	}

	if err := s.index.Insert(ctx, doc.Chunks); err != nil {
		// 插入失败时回滚文档登记，索引大小必须与分块总数一致。
		if _, exists := s.docs[doc.FileMD5]; !exists {
			s.order = s.order[:len(s.order)-1]
		}
		_ = s.index.Remove(ctx, doc.FileMD5)
		delete(s.docs, doc.FileMD5)
		return err
	}

	s.docs[doc.FileMD5] = doc
	return nil
}

// Query 在会话索引中检索前 k 个分块。
func (s *State) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Query(ctx, vector, k)
}

// Empty 报告会话中是否没有任何文档。
func (s *State) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs) == 0
}

// FileNames 返回按上传顺序排列的文件名快照。
func (s *State) FileNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.order))
	for _, md5 := range s.order {
		if doc, ok := s.docs[md5]; ok {
			names = append(names, doc.FileName)
		}
	}
	return names
}

// Stats 返回文档数与分块总数的快照。
func (s *State) Stats() model.VectorStoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, doc := range s.docs {
		total += len(doc.Chunks)
	}
	return model.VectorStoreStats{
		TotalDocuments: len(s.docs),
		TotalChunks:    total,
	}
}

// Clear 丢弃会话中的全部文档、分块与索引内容。幂等。
func (s *State) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Clear(ctx); err != nil {
		return err
	}
	s.docs = make(map[string]*model.Document)
	s.order = nil
	return nil
}

// Store 是进程级的会话注册表，按会话标识首次访问时创建。
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	factory  vectorstore.Factory
}

// NewStore 创建会话注册表。factory 决定每个会话使用的向量索引后端。
func NewStore(factory vectorstore.Factory) *Store {
	return &Store{
		sessions: make(map[string]*State),
		factory:  factory,
	}
}

// Get 返回指定会话的状态，不存在时创建（含其向量索引）。
func (st *Store) Get(sessionID string) (*State, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[sessionID]; ok {
		return s, nil
	}
	index, err := st.factory(sessionID)
	if err != nil {
		return nil, err
	}
	s := newState(index)
	st.sessions[sessionID] = s
	return s, nil
}

// Clear 清空指定会话。会话不存在时为空操作（幂等）。
func (st *Store) Clear(ctx context.Context, sessionID string) error {
	st.mu.Lock()
	s, ok := st.sessions[sessionID]
	st.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Clear(ctx)
}
