package persistence

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/lifesim/internal/errors"
)

// Persister 存储文档持久化接口
type Persister interface {
	Save(ctx context.Context, key string, doc *Document) error
	Load(ctx context.Context, key string) (*Document, error)
	Delete(ctx context.Context, key string) error
	// SaveBatch 全部成功或全部不写
	SaveBatch(ctx context.Context, docs map[string]*Document) error
}

// ErrDocumentNotFound 文档不存在
func ErrDocumentNotFound(key string) error {
	return apperrors.New(apperrors.ErrNotFound, key)
}

// IsNotFound 是否为文档不存在错误
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

// MemoryPersister 内存持久化（用于测试）
type MemoryPersister struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryPersister 创建内存持久化器
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{docs: make(map[string]*Document)}
}

// Save 保存文档
func (p *MemoryPersister) Save(ctx context.Context, key string, doc *Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[key] = doc.Clone()
	return nil
}

// Load 加载文档
func (p *MemoryPersister) Load(ctx context.Context, key string) (*Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.docs[key]
	if !ok {
		return nil, ErrDocumentNotFound(key)
	}
	return doc.Clone(), nil
}

// Delete 删除文档
func (p *MemoryPersister) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, key)
	return nil
}

// SaveBatch 批量保存
func (p *MemoryPersister) SaveBatch(ctx context.Context, docs map[string]*Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, doc := range docs {
		p.docs[key] = doc.Clone()
	}
	return nil
}

// Len 文档数量
func (p *MemoryPersister) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

// CachePersister 带缓存的持久化器（装饰器模式）
type CachePersister struct {
	cache   Persister // 缓存层
	storage Persister // 存储层
}

// NewCachePersister 创建带缓存的持久化器
func NewCachePersister(cache, storage Persister) *CachePersister {
	return &CachePersister{cache: cache, storage: storage}
}

// Save 先写存储再写缓存
func (p *CachePersister) Save(ctx context.Context, key string, doc *Document) error {
	if err := p.storage.Save(ctx, key, doc); err != nil {
		return err
	}
	// 缓存失败不影响主流程
	_ = p.cache.Save(ctx, key, doc)
	return nil
}

// Load 优先读缓存
func (p *CachePersister) Load(ctx context.Context, key string) (*Document, error) {
	if doc, err := p.cache.Load(ctx, key); err == nil {
		return doc, nil
	}

	doc, err := p.storage.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Save(ctx, key, doc)
	return doc, nil
}

// Delete 同时删除缓存和存储
func (p *CachePersister) Delete(ctx context.Context, key string) error {
	_ = p.cache.Delete(ctx, key)
	return p.storage.Delete(ctx, key)
}

// SaveBatch 先批量写存储，成功后刷新缓存
func (p *CachePersister) SaveBatch(ctx context.Context, docs map[string]*Document) error {
	if err := p.storage.SaveBatch(ctx, docs); err != nil {
		// 存储失败时丢弃可能过期的缓存
		for key := range docs {
			_ = p.cache.Delete(ctx, key)
		}
		return err
	}
	_ = p.cache.SaveBatch(ctx, docs)
	return nil
}
