package game

import (
	"context"
	"encoding/json"

	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/logger"
	"github.com/wfunc/lifesim/internal/models"
	"github.com/wfunc/lifesim/internal/observability"
	"github.com/wfunc/lifesim/internal/persistence"
	"github.com/wfunc/lifesim/internal/repository"
	"github.com/wfunc/lifesim/internal/store"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SaveGame 以当前状态创建或覆盖存档并设为当前存档
func (o *Orchestrator) SaveGame(ctx context.Context, slotID, name string) (slot store.SaveSlot, err error) {
	ctx, span := o.tracer.Start(ctx, "game.save", trace.WithAttributes(observability.SaveAttributes(slotID)...))
	defer func() {
		observability.EndSpan(span, err)
		logger.LogSaveOperation("save", slotID, err)
	}()

	if slotID == "" {
		return store.SaveSlot{}, apperrors.New(apperrors.ErrInvalidParam, "存档ID不能为空")
	}
	if name == "" {
		name = slotID
	}

	view := o.stores.View()
	snapshot := snapshotOf(view)
	slot = store.SaveSlot{
		Name:          name,
		CharacterName: view.Core.Character.Name,
		GameDay:       view.Core.World.Day,
		PlayerLevel:   view.Core.Player.Level,
		Snapshot:      &snapshot,
	}

	if err = o.stores.Social.PutSaveSlot(slotID, slot); err != nil {
		return store.SaveSlot{}, err
	}
	if err = o.stores.Social.SetCurrentSave(slotID); err != nil {
		return store.SaveSlot{}, err
	}

	saved, _ := o.stores.Social.SaveSlot(slotID)
	o.archive(ctx, saved)
	return saved, nil
}

func snapshotOf(view store.View) store.GameSnapshot {
	return store.GameSnapshot{
		Core:      view.Core,
		Narrative: view.Narrative,
		NPCs:      view.Social.NPCs,
		Clues:     view.Social.Clues,
	}.Clone()
}

// archive 写入数据库归档，失败只记录日志
func (o *Orchestrator) archive(ctx context.Context, slot store.SaveSlot) {
	if o.archives == nil {
		return
	}
	raw, err := json.Marshal(slot.Snapshot)
	if err != nil {
		o.logger.Warn("存档快照序列化失败", zap.String("save_id", slot.ID), zap.Error(err))
		return
	}
	err = o.archives.Upsert(ctx, &models.SaveArchive{
		SaveID:        slot.ID,
		Name:          slot.Name,
		CharacterName: slot.CharacterName,
		GameDay:       slot.GameDay,
		PlayerLevel:   slot.PlayerLevel,
		Snapshot:      datatypes.JSON(raw),
	})
	if err != nil {
		o.logger.Warn("存档归档失败", zap.String("save_id", slot.ID), zap.Error(err))
	}
}

// LoadGame 加载存档
// 存档不存在时返回 ErrSaveSlotNotFound，所有存储保持不变
func (o *Orchestrator) LoadGame(ctx context.Context, slotID string) (err error) {
	_, span := o.tracer.Start(ctx, "game.load", trace.WithAttributes(observability.SaveAttributes(slotID)...))
	defer func() {
		observability.EndSpan(span, err)
		logger.LogSaveOperation("load", slotID, err)
	}()

	slot, ok := o.stores.Social.SaveSlot(slotID)
	if !ok {
		return apperrors.New(apperrors.ErrSaveSlotNotFound, slotID)
	}
	if slot.Snapshot == nil {
		// 只有元数据的存档，仅切换当前存档
		if _, ok := o.stores.Social.LoadSaveSlot(slotID); !ok {
			return apperrors.New(apperrors.ErrSaveSlotNotFound, slotID)
		}
		return nil
	}

	at := o.now()
	return o.stores.Update("load_game", func(current store.View) (store.View, error) {
		slot, ok := current.Social.Saves.SaveSlots[slotID]
		if !ok || slot.Snapshot == nil {
			return current, apperrors.New(apperrors.ErrSaveSlotNotFound, slotID)
		}
		snap := slot.Snapshot.Clone()
		snap.Core.Normalize()
		snap.Narrative.Normalize()

		next := current
		next.Core = snap.Core
		next.Narrative = snap.Narrative
		next.Social.NPCs = snap.NPCs
		next.Social.Clues = snap.Clues
		id := slotID
		next.Social.Saves.CurrentSaveID = &id
		next.Social.Saves.SaveHistory = append(next.Social.Saves.SaveHistory,
			store.SaveEvent{Action: "load", SaveID: slotID, Timestamp: at})
		next.Social.Normalize()
		return next, nil
	})
}

// DeleteSave 删除存档，同时删除归档
func (o *Orchestrator) DeleteSave(ctx context.Context, slotID string) (err error) {
	ctx, span := o.tracer.Start(ctx, "game.delete_save", trace.WithAttributes(observability.SaveAttributes(slotID)...))
	defer func() {
		observability.EndSpan(span, err)
		logger.LogSaveOperation("delete", slotID, err)
	}()

	if !o.stores.Social.DeleteSaveSlot(slotID) {
		return apperrors.New(apperrors.ErrSaveSlotNotFound, slotID)
	}
	if o.archives != nil {
		if err := o.archives.DeleteBySaveID(ctx, slotID); err != nil {
			o.logger.Warn("删除存档归档失败", zap.String("save_id", slotID), zap.Error(err))
		}
	}
	return nil
}

// ListArchives 分页列出数据库归档，未配置归档时返回空列表
func (o *Orchestrator) ListArchives(ctx context.Context, p *repository.Pagination) ([]*models.SaveArchive, error) {
	if o.archives == nil {
		return []*models.SaveArchive{}, nil
	}
	list, err := o.archives.List(ctx, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery, "list save archives")
	}
	return list, nil
}

// RestoreArchive 把数据库归档恢复为存档槽，不切换当前存档
func (o *Orchestrator) RestoreArchive(ctx context.Context, slotID string) (store.SaveSlot, error) {
	if o.archives == nil {
		return store.SaveSlot{}, apperrors.New(apperrors.ErrNotImplemented, "save archives disabled")
	}
	archive, err := o.archives.FindBySaveID(ctx, slotID)
	if err != nil {
		return store.SaveSlot{}, apperrors.Wrap(err, apperrors.ErrSaveSlotNotFound, slotID)
	}

	var snapshot store.GameSnapshot
	if err := json.Unmarshal(archive.Snapshot, &snapshot); err != nil {
		return store.SaveSlot{}, apperrors.Wrap(err, apperrors.ErrInvalidSnapshot, slotID)
	}
	slot := store.SaveSlot{
		Name:          archive.Name,
		CharacterName: archive.CharacterName,
		GameDay:       archive.GameDay,
		PlayerLevel:   archive.PlayerLevel,
		CreatedAt:     archive.CreatedAt,
		Snapshot:      &snapshot,
	}
	if err := o.stores.Social.PutSaveSlot(slotID, slot); err != nil {
		return store.SaveSlot{}, err
	}
	restored, _ := o.stores.Social.SaveSlot(slotID)
	return restored, nil
}

// PersistAll 在一个批次内写入三个存储文档
func (o *Orchestrator) PersistAll(ctx context.Context) (err error) {
	ctx, span := o.tracer.Start(ctx, "game.persist_all")
	start := o.now()
	defer func() {
		observability.EndSpan(span, err)
		logger.LogTransaction("persist_all", o.now().Sub(start), err)
	}()

	view := o.stores.View()
	states := map[string]any{
		store.CoreGameKey:  view.Core,
		store.NarrativeKey: view.Narrative,
		store.SocialKey:    view.Social,
	}
	docs := make(map[string]*persistence.Document, len(states))
	for key, state := range states {
		doc, err := persistence.Encode(state)
		if err != nil {
			return err
		}
		docs[key] = doc
	}
	return o.persister.SaveBatch(ctx, docs)
}

// HydrateAll 读取三个存储文档并一次性提交
// 缺失的文档保持初始状态，版本不支持时不做任何修改
func (o *Orchestrator) HydrateAll(ctx context.Context) (err error) {
	ctx, span := o.tracer.Start(ctx, "game.hydrate_all")
	start := o.now()
	defer func() {
		observability.EndSpan(span, err)
		logger.LogTransaction("hydrate_all", o.now().Sub(start), err)
	}()

	next := store.InitialView()
	targets := map[string]any{
		store.CoreGameKey:  &next.Core,
		store.NarrativeKey: &next.Narrative,
		store.SocialKey:    &next.Social,
	}
	loaded := 0
	for key, dest := range targets {
		doc, err := o.persister.Load(ctx, key)
		if persistence.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := persistence.Decode(doc, dest); err != nil {
			return err
		}
		loaded++
	}
	if loaded == 0 {
		o.logger.Info("没有已保存的存储文档，使用初始状态")
		return nil
	}

	next.Core.Normalize()
	next.Narrative.Normalize()
	next.Social.Normalize()
	o.stores.Commit("hydrate", next)
	o.logger.Info("存储状态已恢复", zap.Int("documents", loaded))
	return nil
}
