//go:build cgo

package repository

// sqliteAvailable gorm sqlite驱动依赖cgo
const sqliteAvailable = true
