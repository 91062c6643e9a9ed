package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// BaseRepository 仓储公共接口
type BaseRepository interface {
	GetDB() *gorm.DB
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Pagination 分页参数，Total/Pages 由 List 类查询回填
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int   `json:"pages"`
}

// NewPagination 规范化页码与页大小
func NewPagination(page, pageSize int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize}
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize <= 0:
		p.PageSize = defaultPageSize
	case p.PageSize > maxPageSize:
		p.PageSize = maxPageSize
	}
	return p
}

// Offset 当前页起始行
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// SetTotal 回填总数并计算总页数
func (p *Pagination) SetTotal(total int64) {
	p.Total = total
	p.Pages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// Paginate 分页作用域
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// BaseRepo 嵌入到具体仓储中
type BaseRepo struct {
	db *gorm.DB
}

func NewBaseRepo(db *gorm.DB) *BaseRepo {
	return &BaseRepo{db: db}
}

func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// conn 绑定请求上下文的会话
func (r *BaseRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Transaction 在事务内执行 fn，fn 返回错误时回滚
func (r *BaseRepo) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.conn(ctx).Transaction(fn)
}
