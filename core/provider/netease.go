package provider

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FMEdge/errs"
	"FMEdge/model"
)

// neteaseLevels 码率提示到 song/url/v1 level 参数的映射
var neteaseLevels = map[string]string{
	"128":  "standard",
	"192":  "higher",
	"320":  "exhigh",
	"999":  "lossless",
	"flac": "lossless",
}

// Netease 自建的网易云音乐 API 服务
type Netease struct {
	opts Options
	http *httpClient
}

// NewNetease 创建网易云适配器，opts.BaseURL 为自建服务地址
func NewNetease(opts Options) *Netease {
	opts = opts.withDefaults("http://localhost:3000", 5*time.Second)
	c := newHTTPClient(model.ProviderNetease, opts)
	// 设置cookie确保返回正常码率的url
	c.cookies = []*http.Cookie{{Name: "os", Value: "pc"}}
	return &Netease{opts: opts, http: c}
}

func (n *Netease) ID() model.ProviderID   { return model.ProviderNetease }
func (n *Netease) Timeout() time.Duration { return n.opts.Timeout }

func (n *Netease) endpoint(p string, params url.Values) string {
	return strings.TrimSuffix(n.opts.BaseURL, "/") + p + "?" + params.Encode()
}

// Search 搜索歌曲
func (n *Netease) Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error) {
	params := url.Values{}
	params.Set("keywords", query)
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa((page-1)*pageSize))

	var result struct {
		Result model.NeteaseSearchResult `json:"result"`
		Code   int                       `json:"code"`
	}
	if err := n.http.getJSON(ctx, n.endpoint("/search", params), &result); err != nil {
		return nil, err
	}
	if err := n.checkCode(result.Code); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(result.Result.Songs))
	for _, s := range result.Result.Songs {
		tracks = append(tracks, mapNetease(s))
	}
	return tracks, nil
}

// FetchByID 获取歌曲详情
func (n *Netease) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	params := url.Values{}
	params.Set("ids", id)

	var result struct {
		Songs []model.NeteaseSong `json:"songs"`
		Code  int                 `json:"code"`
	}
	if err := n.http.getJSON(ctx, n.endpoint("/song/detail", params), &result); err != nil {
		return nil, err
	}
	if err := n.checkCode(result.Code); err != nil {
		return nil, err
	}
	if len(result.Songs) == 0 {
		return nil, notFound(model.ProviderNetease, "song %s not found", id)
	}
	t := mapNetease(result.Songs[0])
	return &t, nil
}

// ResolveStream 获取播放地址。地址为空通常是版权限制，按不存在处理。
func (n *Netease) ResolveStream(ctx context.Context, id, quality string) (*model.StreamLocation, error) {
	level, ok := neteaseLevels[quality]
	if !ok {
		level = "exhigh"
	}
	params := url.Values{}
	params.Set("id", id)
	params.Set("level", level)

	var result struct {
		Data []model.NeteaseSongURL `json:"data"`
		Code int                    `json:"code"`
		Msg  string                 `json:"msg,omitempty"`
	}
	if err := n.http.getJSON(ctx, n.endpoint("/song/url/v1", params), &result); err != nil {
		return nil, err
	}
	if err := n.checkCode(result.Code); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return nil, notFound(model.ProviderNetease, "no stream for %s", id)
	}
	d := result.Data[0]
	format := strings.ToLower(d.Type)
	if format == "" {
		format = formatFromURL(d.URL)
	}
	return &model.StreamLocation{
		URL:      d.URL,
		Headers:  map[string]string{"Referer": "https://music.163.com/"},
		Format:   format,
		Provider: model.ProviderNetease,
	}, nil
}

// checkCode 接口在 HTTP 200 中返回业务码，非 200 视为上游故障
func (n *Netease) checkCode(code int) error {
	if code == 0 || code == http.StatusOK {
		return nil
	}
	if code == http.StatusNotFound {
		return notFound(model.ProviderNetease, "upstream code %d", code)
	}
	return errs.New(errs.CodeUpstreamFailure,
		errs.WithProvider(string(model.ProviderNetease)),
		errs.WithMessage("upstream code "+strconv.Itoa(code)))
}

func mapNetease(s model.NeteaseSong) model.Track {
	album := s.AlbumInfo()
	return model.Track{
		ID:              strconv.FormatInt(s.ID, 10),
		SourceID:        model.ProviderNetease,
		Title:           strings.TrimSpace(s.Name),
		Artist:          s.ArtistNames(),
		Album:           album.Name,
		DurationSeconds: float64(s.DurationMs()) / 1000,
		CoverURL:        album.PicURL,
	}
}
