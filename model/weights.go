package model

// ScoreWeight 单个 Provider 的评分参数
type ScoreWeight struct {
	DefaultQuality float64 `yaml:"defaultQuality" json:"defaultQuality"` // 码率未知时使用的质量比
	Stability      float64 `yaml:"stability" json:"stability"`
	Base           float64 `yaml:"base" json:"base"`
}

// WeightTable Provider 到评分参数的映射
type WeightTable map[ProviderID]ScoreWeight

// FallbackWeight 表中没有的 Provider 使用的参数
var FallbackWeight = ScoreWeight{DefaultQuality: 0.6, Stability: 0.6, Base: 0.6}

// DefaultWeights 返回默认评分表的副本
func DefaultWeights() WeightTable {
	return WeightTable{
		ProviderJamendo: {DefaultQuality: 0.75, Stability: 0.85, Base: 0.85},
		ProviderIA:      {DefaultQuality: 0.55, Stability: 0.60, Base: 0.60},
		ProviderAudius:  {DefaultQuality: 0.82, Stability: 0.90, Base: 0.88},
		ProviderGD:      {DefaultQuality: 0.78, Stability: 0.70, Base: 0.75},
		ProviderKuwo:    {DefaultQuality: 0.70, Stability: 0.80, Base: 0.70},
		ProviderNetease: {DefaultQuality: 0.78, Stability: 0.75, Base: 0.75},
	}
}

// Lookup 查找评分参数，缺失时返回 FallbackWeight
func (t WeightTable) Lookup(id ProviderID) ScoreWeight {
	if w, ok := t[id]; ok {
		return w
	}
	return FallbackWeight
}

// Merge 用 overrides 覆盖当前表，返回新表
func (t WeightTable) Merge(overrides WeightTable) WeightTable {
	out := make(WeightTable, len(t)+len(overrides))
	for id, w := range t {
		out[id] = w
	}
	for id, w := range overrides {
		out[id] = w
	}
	return out
}
