package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FlagMap 叙事标志的唯一内存表示
//
// 序列化为按键排序的 [key, value] 数组；反序列化同时接受数组和普通对象，
// 结果始终是 FlagMap，调用方无需区分两种形态。
type FlagMap[V any] map[string]V

// NewFlagMap 创建空标志表
func NewFlagMap[V any]() FlagMap[V] {
	return make(FlagMap[V])
}

// Get 获取标志值，不存在时返回零值
func (m FlagMap[V]) Get(key string) V {
	return m[key]
}

// Lookup 获取标志值及是否存在
func (m FlagMap[V]) Lookup(key string) (V, bool) {
	v, ok := m[key]
	return v, ok
}

// Has 标志是否存在
func (m FlagMap[V]) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Set 设置标志
func (m FlagMap[V]) Set(key string, value V) {
	m[key] = value
}

// Delete 删除标志
func (m FlagMap[V]) Delete(key string) {
	delete(m, key)
}

// Len 标志数量
func (m FlagMap[V]) Len() int {
	return len(m)
}

// Keys 按字典序返回所有键
func (m FlagMap[V]) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone 复制标志表（值为标量，浅拷贝即可）
func (m FlagMap[V]) Clone() FlagMap[V] {
	out := make(FlagMap[V], len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalJSON 编码为 [[key, value], ...]
func (m FlagMap[V]) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, 0, len(m))
	for _, k := range m.Keys() {
		pairs = append(pairs, [2]any{k, m[k]})
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON 解码数组或对象形态
func (m *FlagMap[V]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	out := make(FlagMap[V])

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		// 空值同样还原为空表
	case trimmed[0] == '[':
		var pairs []json.RawMessage
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return fmt.Errorf("解析标志数组失败: %w", err)
		}
		for i, raw := range pairs {
			var pair []json.RawMessage
			if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
				return fmt.Errorf("标志数组第%d项不是[key, value]形式", i)
			}
			var key string
			if err := json.Unmarshal(pair[0], &key); err != nil {
				return fmt.Errorf("标志数组第%d项键无效: %w", i, err)
			}
			var value V
			if err := json.Unmarshal(pair[1], &value); err != nil {
				return fmt.Errorf("标志 %s 值无效: %w", key, err)
			}
			out[key] = value
		}
	case trimmed[0] == '{':
		var obj map[string]V
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("解析标志对象失败: %w", err)
		}
		for k, v := range obj {
			out[k] = v
		}
	default:
		return fmt.Errorf("无法识别的标志格式: %s", string(trimmed))
	}

	*m = out
	return nil
}
