//go:build !cgo

package repository

const sqliteAvailable = false
