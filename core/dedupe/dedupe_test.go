package dedupe

import (
	"testing"

	"FMEdge/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func track(src model.ProviderID, id, title, artist string, dur float64, kbps int) model.Track {
	return model.Track{ID: id, SourceID: src, Title: title, Artist: artist, DurationSeconds: dur, BitrateKbps: kbps}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  love   song!":     "love song",
		"Love Song":          "love song",
		"Café del Mar":       "cafe del mar",
		"AC/DC":              "ac dc",
		"(Remastered) Track": "remastered track",
		"ＬＯＶＥ":               "love",
		"":                   "",
		"!!!":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeKeepsNonLatinMarks(t *testing.T) {
	assert.NotEqual(t, Normalize("か"), Normalize("が"))
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "201", Bucket(200))
	assert.Equal(t, "201", Bucket(201))
	assert.Equal(t, "204", Bucket(203))
	assert.Equal(t, UnknownBucket, Bucket(0))
	assert.Equal(t, UnknownBucket, Bucket(-5))
}

func TestFingerprintInsensitive(t *testing.T) {
	a := track(model.ProviderGD, "1", "Love Song", "X", 200, 0)
	b := track(model.ProviderKuwo, "2", "  love   song!", "x", 201, 0)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := track(model.ProviderKuwo, "3", "Love Song", "X", 0, 0)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Equal(t, "love song|x|?", Fingerprint(c))
}

func TestScore(t *testing.T) {
	table := model.WeightTable{
		model.ProviderGD: {DefaultQuality: 0.5, Stability: 1, Base: 1},
	}

	// 0.5*1 + 0.3 + 0.2
	assert.InDelta(t, 1.0, Score(track(model.ProviderGD, "1", "a", "b", 0, 320), table), 1e-9)
	// 码率超过 320 时封顶
	assert.InDelta(t, 1.0, Score(track(model.ProviderGD, "1", "a", "b", 0, 999), table), 1e-9)
	// 码率未知时使用默认质量比
	assert.InDelta(t, 0.75, Score(track(model.ProviderGD, "1", "a", "b", 0, 0), table), 1e-9)
	// 不在表中的 Provider 使用兜底参数
	assert.InDelta(t, 0.6, Score(track(model.ProviderIA, "1", "a", "b", 0, 0), table), 1e-9)
}

func TestMergeEmpty(t *testing.T) {
	out := Merge(nil, model.DefaultWeights())
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMergeKeepsHigherScore(t *testing.T) {
	low := track(model.ProviderGD, "a1", "Love Song", "X", 200, 128)
	high := track(model.ProviderKuwo, "b1", "love song", "x", 201, 320)
	table := model.DefaultWeights()

	out := Merge([]model.Track{low, high}, table)
	require.Len(t, out, 1)
	assert.Equal(t, 320, out[0].BitrateKbps)
	assert.Equal(t, "b1", out[0].ID)

	// 输入顺序不影响结果
	out = Merge([]model.Track{high, low}, table)
	require.Len(t, out, 1)
	assert.Equal(t, "b1", out[0].ID)
	assert.GreaterOrEqual(t, Score(out[0], table), Score(low, table))
}

func TestMergeEqualScoreIsDeterministic(t *testing.T) {
	a := track(model.ProviderGD, "2", "Same", "Artist", 100, 320)
	b := track(model.ProviderGD, "1", "same", "artist", 100, 320)
	table := model.DefaultWeights()

	first := Merge([]model.Track{a, b}, table)
	second := Merge([]model.Track{b, a}, table)
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, "1", first[0].ID)
}

func TestMergeOrdering(t *testing.T) {
	table := model.WeightTable{
		model.ProviderGD:   {DefaultQuality: 0.5, Stability: 0.5, Base: 0.5},
		model.ProviderKuwo: {DefaultQuality: 0.5, Stability: 0.5, Base: 0.5},
	}
	in := []model.Track{
		track(model.ProviderGD, "1", "beta", "a", 100, 128),
		track(model.ProviderGD, "2", "Alpha", "a", 100, 128),
		track(model.ProviderKuwo, "3", "zeta", "a", 100, 320),
	}

	out := Merge(in, table)
	require.Len(t, out, 3)
	assert.Equal(t, "zeta", out[0].Title)
	assert.Equal(t, "Alpha", out[1].Title)
	assert.Equal(t, "beta", out[2].Title)
}

func TestMergeIdempotent(t *testing.T) {
	table := model.DefaultWeights()
	in := []model.Track{
		track(model.ProviderGD, "1", "One", "A", 180, 128),
		track(model.ProviderKuwo, "2", "one", "a", 181, 320),
		track(model.ProviderJamendo, "3", "Two", "B", 0, 0),
		track(model.ProviderIA, "4", "Three", "C", 240, 0),
	}

	once := Merge(in, table)
	doubled := Merge(append(append([]model.Track{}, in...), in...), table)
	assert.Equal(t, once, doubled)
	assert.Equal(t, once, Merge(once, table))
}

func TestMergeDoesNotAliasExtra(t *testing.T) {
	in := []model.Track{{ID: "1", SourceID: model.ProviderGD, Title: "t", Extra: map[string]string{"k": "v"}}}
	out := Merge(in, model.DefaultWeights())
	out[0].Extra["k"] = "changed"
	assert.Equal(t, "v", in[0].Extra["k"])
}

func TestEngineSetTable(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, model.DefaultWeights(), e.Table())

	custom := model.WeightTable{model.ProviderGD: {DefaultQuality: 1, Stability: 1, Base: 1}}
	e.SetTable(custom)
	assert.Equal(t, custom, e.Table())

	out := e.Merge([]model.Track{track(model.ProviderGD, "1", "x", "y", 0, 0)})
	require.Len(t, out, 1)
}
