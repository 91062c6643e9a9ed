package persistence

import (
	"encoding/json"

	apperrors "github.com/wfunc/lifesim/internal/errors"
)

// CurrentVersion 当前快照格式版本
const CurrentVersion = 1

// Document 单个存储的持久化文档
type Document struct {
	Version int             `json:"version"`
	State   json.RawMessage `json:"state"`
}

// Clone 复制文档
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{Version: d.Version, State: append(json.RawMessage(nil), d.State...)}
}

// Encode 将存储状态编码为当前版本的文档
func Encode(state any) (*Document, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidSnapshot, "序列化状态失败")
	}
	return &Document{Version: CurrentVersion, State: raw}, nil
}

// Decode 校验版本并解码状态
func Decode(doc *Document, dest any) error {
	if doc == nil {
		return apperrors.New(apperrors.ErrInvalidSnapshot, "文档为空")
	}
	if doc.Version != CurrentVersion {
		return apperrors.Newf(apperrors.ErrSnapshotVersion, "version=%d", doc.Version)
	}
	if err := json.Unmarshal(doc.State, dest); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidSnapshot, "反序列化状态失败")
	}
	return nil
}
