package provider

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FMEdge/model"

	json "github.com/goccy/go-json"
)

const audiusAPI = "https://discoveryprovider.audius.co"

// audiusBitrate Audius 不返回码率，按其转码规格估计
const audiusBitrate = 256

// audiusArtwork 兼容对象和字符串两种写法
type audiusArtwork string

func (a *audiusArtwork) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = audiusArtwork(s)
		return nil
	}
	var sizes map[string]string
	if err := json.Unmarshal(data, &sizes); err != nil {
		return nil
	}
	for _, k := range []string{"480x480", "1000x1000", "150x150"} {
		if v := sizes[k]; v != "" {
			*a = audiusArtwork(v)
			return nil
		}
	}
	return nil
}

type audiusTrack struct {
	ID        flexString    `json:"id"`
	Title     string        `json:"title"`
	Duration  flexFloat     `json:"duration"`
	Artwork   audiusArtwork `json:"artwork"`
	PlayCount flexFloat     `json:"play_count"`
	User      struct {
		Name   string `json:"name"`
		Handle string `json:"handle"`
	} `json:"user"`
}

// Audius 去中心化音乐平台的公开发现节点
type Audius struct {
	appName string
	opts    Options
	http    *httpClient
}

// NewAudius 创建 Audius 适配器，appName 为接口要求的应用标识
func NewAudius(opts Options, appName string) *Audius {
	opts = opts.withDefaults(audiusAPI, 4500*time.Millisecond)
	if appName == "" {
		appName = "fmedge"
	}
	return &Audius{appName: appName, opts: opts, http: newHTTPClient(model.ProviderAudius, opts)}
}

func (a *Audius) ID() model.ProviderID   { return model.ProviderAudius }
func (a *Audius) Timeout() time.Duration { return a.opts.Timeout }

func (a *Audius) endpoint(p string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("app_name", a.appName)
	return strings.TrimSuffix(a.opts.BaseURL, "/") + "/v1" + p + "?" + params.Encode()
}

// Search 搜索曲目
func (a *Audius) Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("offset", strconv.Itoa((page-1)*pageSize))

	var resp struct {
		Data []audiusTrack `json:"data"`
	}
	if err := a.http.getJSON(ctx, a.endpoint("/tracks/search", params), &resp); err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(resp.Data))
	for _, it := range resp.Data {
		if it.ID == "" {
			continue
		}
		tracks = append(tracks, mapAudius(it))
	}
	return tracks, nil
}

// FetchByID 获取单曲
func (a *Audius) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	var resp struct {
		Data *audiusTrack `json:"data"`
	}
	if err := a.http.getJSON(ctx, a.endpoint("/tracks/"+url.PathEscape(id), nil), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, notFound(model.ProviderAudius, "track %s not found", id)
	}
	t := mapAudius(*resp.Data)
	return &t, nil
}

// ResolveStream Audius 提供固定的流地址，无需请求上游
func (a *Audius) ResolveStream(_ context.Context, id, _ string) (*model.StreamLocation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, notFound(model.ProviderAudius, "empty id")
	}
	return &model.StreamLocation{
		URL:      a.endpoint("/tracks/"+url.PathEscape(id)+"/stream", nil),
		Format:   "mp3",
		Provider: model.ProviderAudius,
	}, nil
}

func mapAudius(it audiusTrack) model.Track {
	artist := it.User.Name
	if artist == "" {
		artist = it.User.Handle
	}
	return model.Track{
		ID:              it.ID.String(),
		SourceID:        model.ProviderAudius,
		Title:           strings.TrimSpace(it.Title),
		Artist:          artist,
		DurationSeconds: float64(it.Duration),
		CoverURL:        string(it.Artwork),
		BitrateKbps:     audiusBitrate,
		PopularityScore: float64(it.PlayCount),
	}
}
