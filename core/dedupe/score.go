package dedupe

import (
	"math"

	"FMEdge/model"
)

// 质量评分各项权重
const (
	bitrateWeight   = 0.5
	stabilityWeight = 0.3
	baseWeight      = 0.2

	referenceBitrate = 320.0
)

// BitrateRatio 返回 min(bitrate/320, 1)，码率未知时使用 Provider 的默认质量比
func BitrateRatio(t model.Track, w model.ScoreWeight) float64 {
	if t.BitrateKbps > 0 {
		return math.Min(float64(t.BitrateKbps)/referenceBitrate, 1)
	}
	return w.DefaultQuality
}

// Score 计算曲目质量分
func Score(t model.Track, table model.WeightTable) float64 {
	w := table.Lookup(t.SourceID)
	return bitrateWeight*BitrateRatio(t, w) + stabilityWeight*w.Stability + baseWeight*w.Base
}
