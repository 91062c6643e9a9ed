package repository

import (
	"context"

	"github.com/wfunc/lifesim/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveArchiveRepository 存档归档仓储接口
type SaveArchiveRepository interface {
	BaseRepository
	Upsert(ctx context.Context, archive *models.SaveArchive) error
	FindBySaveID(ctx context.Context, saveID string) (*models.SaveArchive, error)
	List(ctx context.Context, p *Pagination) ([]*models.SaveArchive, error)
	DeleteBySaveID(ctx context.Context, saveID string) error
}

type saveArchiveRepo struct {
	*BaseRepo
}

// NewSaveArchiveRepository 创建存档归档仓储
func NewSaveArchiveRepository(db *gorm.DB) SaveArchiveRepository {
	return &saveArchiveRepo{BaseRepo: NewBaseRepo(db)}
}

// Upsert 按存档ID写入或覆盖
func (r *saveArchiveRepo) Upsert(ctx context.Context, archive *models.SaveArchive) error {
	return r.conn(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "save_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "character_name", "game_day", "player_level", "snapshot", "updated_at",
			}),
		}).
		Create(archive).Error
}

// FindBySaveID 按存档ID查询
func (r *saveArchiveRepo) FindBySaveID(ctx context.Context, saveID string) (*models.SaveArchive, error) {
	var archive models.SaveArchive
	if err := r.conn(ctx).Where("save_id = ?", saveID).First(&archive).Error; err != nil {
		return nil, err
	}
	return &archive, nil
}

// List 按更新时间倒序分页，回填 p.Total 与 p.Pages
func (r *saveArchiveRepo) List(ctx context.Context, p *Pagination) ([]*models.SaveArchive, error) {
	var archives []*models.SaveArchive

	var total int64
	if err := r.conn(ctx).Model(&models.SaveArchive{}).Count(&total).Error; err != nil {
		return nil, err
	}
	p.SetTotal(total)

	err := r.conn(ctx).Order("updated_at DESC").Order("id DESC").
		Scopes(Paginate(p)).
		Find(&archives).Error
	return archives, err
}

// DeleteBySaveID 删除归档
func (r *saveArchiveRepo) DeleteBySaveID(ctx context.Context, saveID string) error {
	return r.conn(ctx).Where("save_id = ?", saveID).Delete(&models.SaveArchive{}).Error
}
