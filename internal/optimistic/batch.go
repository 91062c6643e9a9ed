package optimistic

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/store"
	"go.uber.org/zap"
)

// Operation 批量操作，只能是本包定义的类型
type Operation interface {
	Store() string
	Name() string
	isOperation()
}

type coreOp struct{}

func (coreOp) Store() string { return store.CoreGameKey }
func (coreOp) isOperation()  {}

type narrativeOp struct{}

func (narrativeOp) Store() string { return store.NarrativeKey }
func (narrativeOp) isOperation()  {}

type socialOp struct{}

func (socialOp) Store() string { return store.SocialKey }
func (socialOp) isOperation()  {}

// UpdatePlayer 合并玩家字段
type UpdatePlayer struct {
	coreOp
	Patch store.PlayerPatch `json:"patch"`
}

// UpdateCharacter 合并角色字段
type UpdateCharacter struct {
	coreOp
	Patch store.CharacterPatch `json:"patch"`
}

// UpdateSkills 合并技能字段
type UpdateSkills struct {
	coreOp
	Patch store.SkillsPatch `json:"patch"`
}

// UpdateWorld 合并世界字段
type UpdateWorld struct {
	coreOp
	Patch store.WorldPatch `json:"patch"`
}

// AddActiveStorylet 激活剧情，NPCRef可选
type AddActiveStorylet struct {
	narrativeOp
	ID     string `json:"id"`
	NPCRef string `json:"npcRef,omitempty"`
}

// CompleteStorylet 完成剧情
type CompleteStorylet struct {
	narrativeOp
	ID string `json:"id"`
}

// SetStoryletFlag 设置剧情标志
type SetStoryletFlag struct {
	narrativeOp
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// UpdateConcerns 合并或替换关注点
type UpdateConcerns struct {
	narrativeOp
	Concerns map[string]float64 `json:"concerns"`
	Replace  bool               `json:"replace"`
	Action   string             `json:"action,omitempty"`
}

// UpdateArcProgress 更新故事线进度
type UpdateArcProgress struct {
	narrativeOp
	ArcID   string  `json:"arcId"`
	Percent float64 `json:"percent"`
}

// UpdateRelationship 关系值增量
type UpdateRelationship struct {
	socialOp
	NPCID string `json:"npcId"`
	Delta int    `json:"delta"`
}

// SetNPCFlag 设置NPC标志
type SetNPCFlag struct {
	socialOp
	NPCID string `json:"npcId"`
	Flag  string `json:"flag"`
	Value bool   `json:"value"`
}

// DiscoverClue 发现线索
type DiscoverClue struct {
	socialOp
	Clue store.Clue `json:"clue"`
}

// CreateSaveSlot 新建存档槽
type CreateSaveSlot struct {
	socialOp
	ID   string         `json:"id"`
	Slot store.SaveSlot `json:"slot"`
}

// UpdateSaveSlot 部分更新存档槽
type UpdateSaveSlot struct {
	socialOp
	ID    string              `json:"id"`
	Patch store.SaveSlotPatch `json:"patch"`
}

// DeleteSaveSlot 删除存档槽
type DeleteSaveSlot struct {
	socialOp
	ID string `json:"id"`
}

// SetCurrentSave 设置当前存档
type SetCurrentSave struct {
	socialOp
	ID string `json:"id"`
}

func (UpdatePlayer) Name() string       { return "update_player" }
func (UpdateCharacter) Name() string    { return "update_character" }
func (UpdateSkills) Name() string       { return "update_skills" }
func (UpdateWorld) Name() string        { return "update_world" }
func (AddActiveStorylet) Name() string  { return "add_active_storylet" }
func (CompleteStorylet) Name() string   { return "complete_storylet" }
func (SetStoryletFlag) Name() string    { return "set_storylet_flag" }
func (UpdateConcerns) Name() string     { return "update_concerns" }
func (UpdateArcProgress) Name() string  { return "update_arc_progress" }
func (UpdateRelationship) Name() string { return "update_relationship" }
func (SetNPCFlag) Name() string         { return "set_npc_flag" }
func (DiscoverClue) Name() string       { return "discover_clue" }
func (CreateSaveSlot) Name() string     { return "create_save_slot" }
func (UpdateSaveSlot) Name() string     { return "update_save_slot" }
func (DeleteSaveSlot) Name() string     { return "delete_save_slot" }
func (SetCurrentSave) Name() string     { return "set_current_save" }

// BatchOptions 批量执行选项
type BatchOptions struct {
	Atomic            bool `json:"atomic"`
	RollbackOnFailure bool `json:"rollbackOnFailure"`
}

// BatchStatus 批量结果概况
type BatchStatus string

const (
	BatchAll     BatchStatus = "all"
	BatchPartial BatchStatus = "partial"
	BatchNone    BatchStatus = "none"
)

// OpResult 单个操作结果
type OpResult struct {
	Index   int    `json:"index"`
	Store   string `json:"store"`
	Op      string `json:"op"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BatchResult 批量执行报告
type BatchResult struct {
	Success    bool        `json:"success"`
	Status     BatchStatus `json:"status"`
	Results    []OpResult  `json:"results"`
	RolledBack bool        `json:"rolledBack"`
}

// Batch 批量执行器
type Batch struct {
	stores *store.Set
	logger *zap.Logger
}

// NewBatch 创建批量执行器
func NewBatch(stores *store.Set, logger *zap.Logger) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{stores: stores, logger: logger}
}

// errBatchAborted 放弃本次提交
var errBatchAborted = errors.New("batch aborted")

// BatchStateUpdates 在三个存储的写锁下按顺序执行操作，一次性提交
// Atomic且RollbackOnFailure时，任一操作失败即放弃全部修改并停止；
// 仅Atomic时失败即停止，之前的修改照常提交；否则记录失败并继续
func (b *Batch) BatchStateUpdates(ops []Operation, opts BatchOptions) BatchResult {
	result := BatchResult{Results: make([]OpResult, 0, len(ops))}
	succeeded := 0

	err := b.stores.Update("batch", func(view store.View) (store.View, error) {
		now := b.stores.Now()
		for i, op := range ops {
			res := OpResult{Index: i, Store: op.Store(), Op: op.Name()}
			if err := apply(&view, op, now); err != nil {
				res.Error = err.Error()
				result.Results = append(result.Results, res)
				b.logger.Warn("批量操作失败", zap.Int("index", i), zap.String("op", op.Name()), zap.Error(err))

				if opts.Atomic && opts.RollbackOnFailure {
					result.RolledBack = true
					succeeded = 0
					return view, errBatchAborted
				}
				if opts.Atomic {
					break
				}
				continue
			}
			res.Success = true
			result.Results = append(result.Results, res)
			succeeded++
		}
		if succeeded == 0 {
			return view, errBatchAborted
		}
		return view, nil
	})
	if err != nil && !errors.Is(err, errBatchAborted) {
		b.logger.Error("批量提交失败", zap.Error(err))
	}

	switch {
	case succeeded == len(ops):
		result.Status = BatchAll
	case succeeded == 0:
		result.Status = BatchNone
	default:
		result.Status = BatchPartial
	}
	result.Success = result.Status == BatchAll
	return result
}

// apply 在视图副本上执行单个操作
func apply(view *store.View, op Operation, now time.Time) error {
	core, narrative, social := &view.Core, &view.Narrative, &view.Social

	switch o := op.(type) {
	case UpdatePlayer:
		o.Patch.Apply(&core.Player)
	case UpdateCharacter:
		o.Patch.Apply(&core.Character)
	case UpdateSkills:
		o.Patch.Apply(&core.Skills)
	case UpdateWorld:
		o.Patch.Apply(&core.World)
	case AddActiveStorylet:
		if o.ID == "" {
			return apperrors.New(apperrors.ErrInvalidParam, "剧情ID不能为空")
		}
		narrative.AddActiveStorylet(o.ID, o.NPCRef)
	case CompleteStorylet:
		if o.ID == "" {
			return apperrors.New(apperrors.ErrInvalidParam, "剧情ID不能为空")
		}
		narrative.CompleteStorylet(o.ID)
	case SetStoryletFlag:
		narrative.Flags.Storylet.Set(o.Key, o.Value)
	case UpdateConcerns:
		narrative.UpdateConcerns(o.Concerns, o.Replace, o.Action, now)
	case UpdateArcProgress:
		narrative.UpdateArcProgress(o.ArcID, o.Percent)
	case UpdateRelationship:
		social.UpdateRelationship(o.NPCID, o.Delta)
	case SetNPCFlag:
		social.SetNPCFlag(o.NPCID, o.Flag, o.Value)
	case DiscoverClue:
		social.DiscoverClue(o.Clue)
	case CreateSaveSlot:
		return social.CreateSaveSlot(o.ID, o.Slot, now)
	case UpdateSaveSlot:
		return social.UpdateSaveSlot(o.ID, o.Patch, now)
	case DeleteSaveSlot:
		if !social.DeleteSaveSlot(o.ID, now) {
			return apperrors.New(apperrors.ErrSaveSlotNotFound, o.ID)
		}
	case SetCurrentSave:
		return social.SetCurrentSave(o.ID, now)
	default:
		return apperrors.New(apperrors.ErrUnknownOperation, fmt.Sprintf("%T", op))
	}
	return nil
}
