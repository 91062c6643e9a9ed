package persistence

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/logger"
	"github.com/wfunc/lifesim/internal/models"
	"github.com/wfunc/lifesim/internal/observability"
	"github.com/wfunc/lifesim/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabasePersister 基于gorm的持久化，每个存储键一行
type DatabasePersister struct {
	repo   repository.StoreDocumentRepository
	tracer trace.Tracer
}

// NewDatabasePersister 创建数据库持久化器
func NewDatabasePersister(db *gorm.DB) *DatabasePersister {
	return &DatabasePersister{
		repo:   repository.NewStoreDocumentRepository(db),
		tracer: observability.Tracer("lifesim/persistence"),
	}
}

func toModel(key string, doc *Document) *models.StoreDocument {
	return &models.StoreDocument{
		StoreKey: key,
		Version:  doc.Version,
		State:    datatypes.JSON(doc.State),
	}
}

// Save 保存文档
func (p *DatabasePersister) Save(ctx context.Context, key string, doc *Document) (err error) {
	ctx, span := p.tracer.Start(ctx, "persistence.save", trace.WithAttributes(observability.StoreAttributes(key)...))
	start := time.Now()
	defer func() {
		logger.LogDatabaseOperation("upsert", "store_documents", time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	if err = p.repo.Upsert(ctx, toModel(key, doc)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, key)
	}
	return nil
}

// Load 加载文档
func (p *DatabasePersister) Load(ctx context.Context, key string) (_ *Document, err error) {
	ctx, span := p.tracer.Start(ctx, "persistence.load", trace.WithAttributes(observability.StoreAttributes(key)...))
	start := time.Now()
	defer func() {
		logger.LogDatabaseOperation("select", "store_documents", time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	row, err := p.repo.FindByKey(ctx, key)
	if err != nil {
		if repository.IsNotFound(err) {
			err = ErrDocumentNotFound(key)
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, key)
	}
	return &Document{Version: row.Version, State: []byte(row.State)}, nil
}

// Delete 删除文档
func (p *DatabasePersister) Delete(ctx context.Context, key string) (err error) {
	ctx, span := p.tracer.Start(ctx, "persistence.delete", trace.WithAttributes(observability.StoreAttributes(key)...))
	defer func() { observability.EndSpan(span, err) }()

	if err = p.repo.DeleteByKey(ctx, key); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseDelete, key)
	}
	return nil
}

// SaveBatch 在一个事务内写入全部文档
func (p *DatabasePersister) SaveBatch(ctx context.Context, docs map[string]*Document) (err error) {
	ctx, span := p.tracer.Start(ctx, "persistence.save_batch",
		trace.WithAttributes(attribute.Int("lifesim.documents", len(docs))))
	start := time.Now()
	defer func() {
		logger.LogDatabaseOperation("upsert_batch", "store_documents", time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	keys := make([]string, 0, len(docs))
	for key := range docs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]*models.StoreDocument, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, toModel(key, docs[key]))
	}

	if err = p.repo.UpsertBatch(ctx, rows); err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransaction, "批量保存文档失败")
	}
	return nil
}
