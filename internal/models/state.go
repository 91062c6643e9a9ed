package models

import (
	"time"

	"gorm.io/datatypes"
)

// StoreDocument 单个存储的持久化文档 {version, state}
type StoreDocument struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	StoreKey  string         `gorm:"uniqueIndex;size:64;not null" json:"store_key"`
	Version   int            `gorm:"not null;default:1" json:"version"`
	State     datatypes.JSON `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (StoreDocument) TableName() string {
	return "store_documents"
}

// SaveArchive 存档槽的持久副本
type SaveArchive struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SaveID        string         `gorm:"uniqueIndex;size:64;not null" json:"save_id"`
	Name          string         `gorm:"size:100" json:"name"`
	CharacterName string         `gorm:"size:50;index" json:"character_name"`
	GameDay       int            `json:"game_day"`
	PlayerLevel   int            `json:"player_level"`
	Snapshot      datatypes.JSON `json:"snapshot"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName 指定表名
func (SaveArchive) TableName() string {
	return "save_archives"
}

// AllModels 需要自动迁移的模型
func AllModels() []interface{} {
	return []interface{}{
		&StoreDocument{},
		&SaveArchive{},
	}
}
