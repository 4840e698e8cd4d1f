package model

// Track 归一化后的曲目信息，由各个 Provider 的响应映射而来。
// 创建后不再修改，合并去重时产生新的值而不是原地编辑。
type Track struct {
	ID              string            `json:"id"`       // 在来源 Provider 内唯一
	SourceID        ProviderID        `json:"sourceId"` // 产生该曲目的 Provider
	Title           string            `json:"title"`
	Artist          string            `json:"artist"` // 多个艺术家以 " / " 连接
	Album           string            `json:"album,omitempty"`
	DurationSeconds float64           `json:"durationSeconds,omitempty"` // 0 表示未知
	CoverURL        string            `json:"coverUrl,omitempty"`
	BitrateKbps     int               `json:"bitrateKbps,omitempty"` // 0 表示未知
	PopularityScore float64           `json:"popularityScore,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"` // 解析播放地址时需要的 Provider 私有字段
}

// HasDuration 时长是否已知
func (t Track) HasDuration() bool {
	return t.DurationSeconds > 0
}

// StreamLocation 一次性的播放地址解析结果，只在单次转发中使用，不做缓存。
type StreamLocation struct {
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers,omitempty"` // 上游鉴权需要的额外请求头，例如 Referer
	Format   string            `json:"format,omitempty"`
	Provider ProviderID        `json:"provider"`
}
