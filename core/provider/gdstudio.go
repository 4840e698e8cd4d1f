package provider

import (
	"context"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"FMEdge/model"
)

const gdStudioAPI = "https://music-api.gdstudio.xyz/api.php"

// gdSong 聚合接口的搜索结果条目
type gdSong struct {
	ID       flexString  `json:"id"`
	URLID    flexString  `json:"url_id"`
	Name     string      `json:"name"`
	Artist   flexStrings `json:"artist"`
	Album    flexString  `json:"album"`
	PicID    flexString  `json:"pic_id"`
	Source   string      `json:"source"`
	Duration flexFloat   `json:"duration"` // 毫秒，部分来源没有
}

type gdURLResult struct {
	URL  string    `json:"url"`
	BR   flexFloat `json:"br"`
	Size flexFloat `json:"size"`
}

// GDStudio 通过 gdstudio 聚合接口访问国内曲库，source 决定实际来源
type GDStudio struct {
	id     model.ProviderID
	source string
	opts   Options
	http   *httpClient
}

// NewGD 聚合接口的网易云来源
func NewGD(opts Options) *GDStudio {
	return newGDStudio(model.ProviderGD, "netease", opts)
}

// NewKuwo 聚合接口的酷我来源
func NewKuwo(opts Options) *GDStudio {
	return newGDStudio(model.ProviderKuwo, "kuwo", opts)
}

func newGDStudio(id model.ProviderID, source string, opts Options) *GDStudio {
	opts = opts.withDefaults(gdStudioAPI, 5*time.Second)
	return &GDStudio{
		id:     id,
		source: source,
		opts:   opts,
		http:   newHTTPClient(id, opts),
	}
}

func (g *GDStudio) ID() model.ProviderID   { return g.id }
func (g *GDStudio) Timeout() time.Duration { return g.opts.Timeout }

func (g *GDStudio) endpoint(params url.Values) string {
	return g.opts.BaseURL + "?" + params.Encode()
}

// Search 搜索曲目
func (g *GDStudio) Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error) {
	params := url.Values{}
	params.Set("types", "search")
	params.Set("source", g.source)
	params.Set("name", query)
	params.Set("count", strconv.Itoa(pageSize))
	params.Set("pages", strconv.Itoa(page))

	var songs []gdSong
	if err := g.http.getJSON(ctx, g.endpoint(params), &songs); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(songs))
	for _, s := range songs {
		if t, ok := g.mapSong(s); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func (g *GDStudio) mapSong(s gdSong) (model.Track, bool) {
	id := s.ID.String()
	if id == "" {
		id = s.URLID.String()
	}
	if id == "" || strings.TrimSpace(s.Name) == "" {
		return model.Track{}, false
	}
	t := model.Track{
		ID:       id,
		SourceID: g.id,
		Title:    strings.TrimSpace(s.Name),
		Artist:   s.Artist.Join(),
		Album:    s.Album.String(),
	}
	if s.Duration > 0 {
		t.DurationSeconds = float64(s.Duration) / 1000
	}
	if pic := s.PicID.String(); pic != "" {
		t.CoverURL = g.coverURL(pic, s.Source)
		t.Extra = map[string]string{"picId": pic}
	}
	return t, true
}

func (g *GDStudio) coverURL(picID, source string) string {
	if source == "" {
		source = g.source
	}
	params := url.Values{}
	params.Set("types", "pic")
	params.Set("id", picID)
	params.Set("source", source)
	params.Set("size", "300")
	return g.endpoint(params)
}

// FetchByID 聚合接口没有单曲详情，通过解析播放地址确认曲目存在
func (g *GDStudio) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	if _, err := g.ResolveStream(ctx, id, "320"); err != nil {
		return nil, err
	}
	return &model.Track{ID: id, SourceID: g.id, Title: id}, nil
}

// ResolveStream 解析播放地址
func (g *GDStudio) ResolveStream(ctx context.Context, id, quality string) (*model.StreamLocation, error) {
	if quality == "" {
		quality = "320"
	}
	params := url.Values{}
	params.Set("types", "url")
	params.Set("id", id)
	params.Set("source", g.source)
	params.Set("br", quality)

	var res gdURLResult
	if err := g.http.getJSON(ctx, g.endpoint(params), &res); err != nil {
		return nil, err
	}
	if res.URL == "" {
		return nil, notFound(g.id, "no stream for %s", id)
	}
	return &model.StreamLocation{
		URL:      res.URL,
		Format:   formatFromURL(res.URL),
		Provider: g.id,
	}, nil
}

// formatFromURL 从 URL 路径的扩展名推断音频格式
func formatFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	switch ext {
	case "mp3", "flac", "ogg", "m4a", "aac", "wav":
		return ext
	default:
		return ""
	}
}
