// Package consistency 跨存储一致性检查，所有函数只读取传入的状态切片
package consistency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wfunc/lifesim/internal/store"
)

// 检查名称
const (
	CheckCharacterConcernsName = "character_concerns"
	CheckStoryletNPCName       = "storylet_npc"
	CheckSaveCoreName          = "save_core"
)

// Result 单项检查结果
type Result struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r Result) finish() Result {
	r.Passed = len(r.Errors) == 0
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r
}

// CheckCharacterConcerns 已创建角色时关注点不能为空，且每项在 [0,1]
func CheckCharacterConcerns(character store.Character, concerns store.Concerns) Result {
	var r Result
	if character.Name != "" && len(concerns.Current) == 0 {
		r.errorf("character %q exists but concerns are not initialized", character.Name)
	}
	for _, key := range sortedKeys(concerns.Current) {
		v := concerns.Current[key]
		if v < 0 || v > 1 {
			r.errorf("concern %s out of range [0,1]: %v", key, v)
		}
	}
	return r.finish()
}

// 旧版剧情ID中的NPC命名约定
var legacyNPCPatterns = []struct {
	marker string
	keep   bool // NPC ID 是否保留前缀
}{
	{marker: "_npc_"},
	{marker: "lord_", keep: true},
	{marker: "lady_", keep: true},
}

// ReferencedNPC 剧情引用的NPC，优先使用显式引用，否则按旧版命名约定推断
func ReferencedNPC(storyletID string, refs map[string]string) (string, bool) {
	if npc, ok := refs[storyletID]; ok && npc != "" {
		return npc, true
	}
	for _, p := range legacyNPCPatterns {
		idx := strings.Index(storyletID, p.marker)
		if idx < 0 {
			continue
		}
		rest := storyletID[idx+len(p.marker):]
		if rest == "" {
			continue
		}
		if p.keep {
			return p.marker + rest, true
		}
		return rest, true
	}
	return "", false
}

// CheckStoryletNPC 激活剧情引用的NPC必须存在于关系表
func CheckStoryletNPC(storylets store.Storylets, npcs store.NPCs) Result {
	var r Result
	for _, id := range storylets.Active {
		npc, ok := ReferencedNPC(id, storylets.NPCRefs)
		if !ok {
			continue
		}
		if _, exists := npcs.Relationships[npc]; !exists {
			r.errorf("storylet %s references unknown npc %s", id, npc)
		}
	}
	return r.finish()
}

// CheckSaveCore 当前存档必须存在；存档元数据与当前状态不一致只产生警告
func CheckSaveCore(saves store.Saves, core store.CoreState) Result {
	var r Result
	if saves.CurrentSaveID == nil {
		return r.finish()
	}
	id := *saves.CurrentSaveID
	slot, ok := saves.SaveSlots[id]
	if !ok {
		r.errorf("current save %s does not exist", id)
		return r.finish()
	}
	if slot.CharacterName != core.Character.Name {
		r.warnf("save %s character %q differs from live character %q", id, slot.CharacterName, core.Character.Name)
	}
	if slot.GameDay != core.World.Day {
		r.warnf("save %s game day %d differs from live day %d", id, slot.GameDay, core.World.Day)
	}
	if slot.PlayerLevel != core.Player.Level {
		r.warnf("save %s player level %d differs from live level %d", id, slot.PlayerLevel, core.Player.Level)
	}
	return r.finish()
}

// Report 全部检查汇总
type Report struct {
	Passed   bool              `json:"passed"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
	Checks   map[string]Result `json:"checks"`
}

// Validate 对一致视图运行全部检查
// 剧情NPC引用失败记为警告，其他失败记为错误
func Validate(view store.View) Report {
	checks := map[string]Result{
		CheckCharacterConcernsName: CheckCharacterConcerns(view.Core.Character, view.Narrative.Concerns),
		CheckStoryletNPCName:       CheckStoryletNPC(view.Narrative.Storylets, view.Social.NPCs),
		CheckSaveCoreName:          CheckSaveCore(view.Social.Saves, view.Core),
	}

	report := Report{Errors: []string{}, Warnings: []string{}, Checks: checks}
	for _, name := range []string{CheckCharacterConcernsName, CheckStoryletNPCName, CheckSaveCoreName} {
		res := checks[name]
		report.Warnings = append(report.Warnings, prefixed(name, res.Warnings)...)
		if name == CheckStoryletNPCName {
			report.Warnings = append(report.Warnings, prefixed(name, res.Errors)...)
			continue
		}
		report.Errors = append(report.Errors, prefixed(name, res.Errors)...)
	}
	report.Passed = len(report.Errors) == 0
	return report
}

func prefixed(name string, msgs []string) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = name + ": " + m
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
