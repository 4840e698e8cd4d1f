package dedupe

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"FMEdge/model"
)

type scored struct {
	track model.Track
	score float64
}

// better 判断 a 是否应替换 b。分数相同时按 (来源, ID) 取较小者，
// 保证结果与输入顺序无关。
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.track.SourceID != b.track.SourceID {
		return a.track.SourceID < b.track.SourceID
	}
	return a.track.ID < b.track.ID
}

// Merge 按指纹去重并排序：质量分降序，分数相同按标题（不区分大小写）升序。
// 空输入返回空切片。返回的曲目是输入的副本。
func Merge(tracks []model.Track, table model.WeightTable) []model.Track {
	best := make(map[string]scored, len(tracks))
	for _, t := range tracks {
		cand := scored{track: t, score: Score(t, table)}
		key := Fingerprint(t)
		if cur, ok := best[key]; !ok || better(cand, cur) {
			best[key] = cand
		}
	}

	merged := make([]scored, 0, len(best))
	for _, s := range best {
		merged = append(merged, s)
	}
	slices.SortFunc(merged, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.track.Title), strings.ToLower(b.track.Title)); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.track.SourceID), string(b.track.SourceID)); c != 0 {
			return c
		}
		return strings.Compare(a.track.ID, b.track.ID)
	})

	out := make([]model.Track, len(merged))
	for i, s := range merged {
		t := s.track
		t.Extra = maps.Clone(t.Extra)
		out[i] = t
	}
	return out
}
