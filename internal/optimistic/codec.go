package optimistic

import (
	"encoding/json"

	apperrors "github.com/wfunc/lifesim/internal/errors"
)

// RawOperation 批量操作的传输格式 {"store": "...", "op": "...", "args": {...}}
// store 可省略，填写时必须与操作所属存储一致
type RawOperation struct {
	Store string          `json:"store,omitempty"`
	Op    string          `json:"op"`
	Args  json.RawMessage `json:"args"`
}

var decoders = map[string]func() Operation{
	"update_player":       func() Operation { return &UpdatePlayer{} },
	"update_character":    func() Operation { return &UpdateCharacter{} },
	"update_skills":       func() Operation { return &UpdateSkills{} },
	"update_world":        func() Operation { return &UpdateWorld{} },
	"add_active_storylet": func() Operation { return &AddActiveStorylet{} },
	"complete_storylet":   func() Operation { return &CompleteStorylet{} },
	"set_storylet_flag":   func() Operation { return &SetStoryletFlag{} },
	"update_concerns":     func() Operation { return &UpdateConcerns{} },
	"update_arc_progress": func() Operation { return &UpdateArcProgress{} },
	"update_relationship": func() Operation { return &UpdateRelationship{} },
	"set_npc_flag":        func() Operation { return &SetNPCFlag{} },
	"discover_clue":       func() Operation { return &DiscoverClue{} },
	"create_save_slot":    func() Operation { return &CreateSaveSlot{} },
	"update_save_slot":    func() Operation { return &UpdateSaveSlot{} },
	"delete_save_slot":    func() Operation { return &DeleteSaveSlot{} },
	"set_current_save":    func() Operation { return &SetCurrentSave{} },
}

// DecodeOperation 按操作名解码为具体操作类型
func DecodeOperation(raw RawOperation) (Operation, error) {
	newOp, ok := decoders[raw.Op]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownOperation, "%q", raw.Op)
	}
	ptr := newOp()
	if len(raw.Args) > 0 {
		if err := json.Unmarshal(raw.Args, ptr); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrInvalidParam, "args of %s", raw.Op)
		}
	}
	op := deref(ptr)
	if raw.Store != "" && raw.Store != op.Store() {
		return nil, apperrors.Newf(apperrors.ErrUnknownStore, "%s does not belong to %q", raw.Op, raw.Store)
	}
	return op, nil
}

// DecodeOperations 解码整个批次，任一失败即返回
func DecodeOperations(raws []RawOperation) ([]Operation, error) {
	ops := make([]Operation, 0, len(raws))
	for _, raw := range raws {
		op, err := DecodeOperation(raw)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// deref 执行器按值匹配操作类型
func deref(op Operation) Operation {
	switch o := op.(type) {
	case *UpdatePlayer:
		return *o
	case *UpdateCharacter:
		return *o
	case *UpdateSkills:
		return *o
	case *UpdateWorld:
		return *o
	case *AddActiveStorylet:
		return *o
	case *CompleteStorylet:
		return *o
	case *SetStoryletFlag:
		return *o
	case *UpdateConcerns:
		return *o
	case *UpdateArcProgress:
		return *o
	case *UpdateRelationship:
		return *o
	case *SetNPCFlag:
		return *o
	case *DiscoverClue:
		return *o
	case *CreateSaveSlot:
		return *o
	case *UpdateSaveSlot:
		return *o
	case *DeleteSaveSlot:
		return *o
	case *SetCurrentSave:
		return *o
	}
	return op
}
