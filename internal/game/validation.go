package game

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength     = 50
	AdjustmentBudget  = 40
	MinAttributeInput = 0
	MaxAttributeInput = 100
)

// CharacterCreationData 角色创建输入
type CharacterCreationData struct {
	Name              string         `json:"name"`
	Background        string         `json:"background"`
	Attributes        map[string]int `json:"attributes"`
	DomainAdjustments map[string]int `json:"domainAdjustments"`
}

// ValidationResult 校验结果，校验失败不是错误
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidateCharacterCreationData 校验角色创建输入，不修改任何存储
func ValidateCharacterCreationData(data CharacterCreationData) ValidationResult {
	var errs []string

	name := strings.TrimSpace(data.Name)
	switch {
	case name == "":
		errs = append(errs, "name is required")
	case utf8.RuneCountInString(name) > MaxNameLength:
		errs = append(errs, fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}

	if !IsKnownBackground(data.Background) {
		errs = append(errs, fmt.Sprintf("unknown background %q", data.Background))
	}

	for _, attr := range sortedKeys(data.Attributes) {
		v := data.Attributes[attr]
		if v < MinAttributeInput || v > MaxAttributeInput {
			errs = append(errs, fmt.Sprintf("attribute %s must be between %d and %d, got %d",
				attr, MinAttributeInput, MaxAttributeInput, v))
		}
	}

	// 单项超出预算即判定失败，累加不会溢出
	spent, over := 0, false
	for _, attr := range sortedKeys(data.DomainAdjustments) {
		v := data.DomainAdjustments[attr]
		if v < -AdjustmentBudget || v > AdjustmentBudget {
			over = true
			errs = append(errs, fmt.Sprintf("domain adjustment %s exceeds budget %d", attr, AdjustmentBudget))
			continue
		}
		if v < 0 {
			v = -v
		}
		spent += v
	}
	if !over && spent > AdjustmentBudget {
		errs = append(errs, fmt.Sprintf("domain adjustments use %d points, budget is %d", spent, AdjustmentBudget))
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// FinalAttributes 基础属性与输入合并后叠加调整值，结果限制在 [5,100]
func FinalAttributes(attributes, adjustments map[string]int) map[string]int {
	out := make(map[string]int, len(BaseAttributes))
	for _, attr := range BaseAttributes {
		out[attr] = BaseAttributeValue
	}
	for attr, v := range attributes {
		out[attr] = v
	}
	for attr, delta := range adjustments {
		v, ok := out[attr]
		if !ok {
			v = BaseAttributeValue
		}
		out[attr] = v + delta
	}
	for attr, v := range out {
		out[attr] = clamp(v, MinAttribute, MaxAttribute)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
