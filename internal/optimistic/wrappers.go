package optimistic

import (
	apperrors "github.com/wfunc/lifesim/internal/errors"
	"github.com/wfunc/lifesim/internal/store"
)

// StoryletAction 剧情乐观操作
type StoryletAction string

const (
	StoryletActivate StoryletAction = "activate"
	StoryletComplete StoryletAction = "complete"
	StoryletRemove   StoryletAction = "remove"
)

// OptimisticCharacterUpdate 乐观地合并角色字段
func (m *Manager) OptimisticCharacterUpdate(core *store.CoreGameStore, patch store.CharacterPatch, opts Options) (string, error) {
	return m.Apply(core, func() error {
		core.UpdateCharacter(patch)
		return nil
	}, opts)
}

// OptimisticStoryletUpdate 乐观地变更剧情状态
func (m *Manager) OptimisticStoryletUpdate(narrative *store.NarrativeStore, storyletID string, action StoryletAction, opts Options) (string, error) {
	if storyletID == "" {
		return "", apperrors.New(apperrors.ErrInvalidParam, "剧情ID不能为空")
	}
	return m.Apply(narrative, func() error {
		switch action {
		case StoryletActivate:
			if narrative.IsStoryletCompleted(storyletID) {
				return apperrors.Newf(apperrors.ErrStoryletState, "storylet %s already completed", storyletID)
			}
			narrative.AddActiveStorylet(storyletID)
		case StoryletComplete:
			narrative.CompleteStorylet(storyletID)
		case StoryletRemove:
			narrative.RemoveActiveStorylet(storyletID)
		default:
			return apperrors.Newf(apperrors.ErrUnknownOperation, "storylet action %q", action)
		}
		return nil
	}, opts)
}

// OptimisticSocialUpdate 乐观地执行任意社交存储变更
func (m *Manager) OptimisticSocialUpdate(social *store.SocialStore, mutate func(s *store.SocialStore) error, opts Options) (string, error) {
	return m.Apply(social, func() error { return mutate(social) }, opts)
}
