package model

import "strings"

// ProviderID 上游曲库标识，封闭枚举
type ProviderID string

const (
	ProviderGD      ProviderID = "gd"
	ProviderKuwo    ProviderID = "kuwo"
	ProviderJamendo ProviderID = "jamendo"
	ProviderIA      ProviderID = "ia"
	ProviderAudius  ProviderID = "audius"
	ProviderNetease ProviderID = "netease"
)

// AllProviders 按默认优先顺序列出全部 Provider
var AllProviders = []ProviderID{
	ProviderGD,
	ProviderKuwo,
	ProviderJamendo,
	ProviderIA,
	ProviderAudius,
	ProviderNetease,
}

// ParseProviderID 解析 Provider 标识，大小写与首尾空白不敏感
func ParseProviderID(raw string) (ProviderID, bool) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllProviders {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// FilterProviders 解析逗号分隔的 Provider 列表。
// 未知标识被静默丢弃，重复项保留第一次出现的位置；
// 过滤后为空时返回 known 的完整副本。
func FilterProviders(raw string, known []ProviderID) []ProviderID {
	allowed := make(map[ProviderID]bool, len(known))
	for _, id := range known {
		allowed[id] = true
	}

	seen := make(map[ProviderID]bool)
	selected := make([]ProviderID, 0, len(known))
	for _, part := range strings.Split(raw, ",") {
		id, ok := ParseProviderID(part)
		if !ok || !allowed[id] || seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}

	if len(selected) == 0 {
		return append([]ProviderID(nil), known...)
	}
	return selected
}

// JoinProviders 以 "+" 连接，用于缓存键
func JoinProviders(ids []ProviderID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, "+")
}

// ProviderNames 转为字符串切片，便于日志与输出
func ProviderNames(ids []ProviderID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
