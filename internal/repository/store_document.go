package repository

import (
	"context"

	"github.com/wfunc/lifesim/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreDocumentRepository 存储文档仓储接口
type StoreDocumentRepository interface {
	BaseRepository
	Upsert(ctx context.Context, doc *models.StoreDocument) error
	UpsertBatch(ctx context.Context, docs []*models.StoreDocument) error
	FindByKey(ctx context.Context, key string) (*models.StoreDocument, error)
	DeleteByKey(ctx context.Context, key string) error
}

type storeDocumentRepo struct {
	*BaseRepo
}

// NewStoreDocumentRepository 创建存储文档仓储
func NewStoreDocumentRepository(db *gorm.DB) StoreDocumentRepository {
	return &storeDocumentRepo{BaseRepo: NewBaseRepo(db)}
}

func upsertDocument(db *gorm.DB, doc *models.StoreDocument) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "state", "updated_at"}),
	}).Create(doc).Error
}

// Upsert 按存储键写入或覆盖
func (r *storeDocumentRepo) Upsert(ctx context.Context, doc *models.StoreDocument) error {
	return upsertDocument(r.conn(ctx), doc)
}

// UpsertBatch 在一个事务内写入多个文档
func (r *storeDocumentRepo) UpsertBatch(ctx context.Context, docs []*models.StoreDocument) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		for _, doc := range docs {
			if err := upsertDocument(tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByKey 按存储键查询，不存在时返回 gorm.ErrRecordNotFound
func (r *storeDocumentRepo) FindByKey(ctx context.Context, key string) (*models.StoreDocument, error) {
	var doc models.StoreDocument
	if err := r.conn(ctx).Where("store_key = ?", key).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteByKey 删除文档，不存在时不报错
func (r *storeDocumentRepo) DeleteByKey(ctx context.Context, key string) error {
	err := r.conn(ctx).Where("store_key = ?", key).Delete(&models.StoreDocument{}).Error
	if IsNotFound(err) {
		return nil
	}
	return err
}
