package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FMEdge/model"
)

const jamendoAPI = "https://api.jamendo.com/v3.0"

type jamendoTrack struct {
	ID            flexString `json:"id"`
	Name          string     `json:"name"`
	ArtistName    string     `json:"artist_name"`
	AlbumName     string     `json:"album_name"`
	AlbumID       flexString `json:"album_id"`
	Duration      flexFloat  `json:"duration"`
	Image         string     `json:"image"`
	AlbumImage    string     `json:"album_image"`
	Audio         string     `json:"audio"`
	AudioDownload string     `json:"audiodownload"`
	Stats         struct {
		ListenedTotal flexFloat `json:"rate_listened_total"`
	} `json:"stats"`
}

type jamendoResponse struct {
	Headers struct {
		Status       string `json:"status"`
		Code         int    `json:"code"`
		ErrorMessage string `json:"error_message"`
	} `json:"headers"`
	Results []jamendoTrack `json:"results"`
}

// Jamendo 知识共享授权曲库，需要 client_id
type Jamendo struct {
	clientID string
	opts     Options
	http     *httpClient
}

// NewJamendo 创建 Jamendo 适配器
func NewJamendo(opts Options, clientID string) *Jamendo {
	opts = opts.withDefaults(jamendoAPI, 7*time.Second)
	return &Jamendo{
		clientID: clientID,
		opts:     opts,
		http:     newHTTPClient(model.ProviderJamendo, opts),
	}
}

func (j *Jamendo) ID() model.ProviderID   { return model.ProviderJamendo }
func (j *Jamendo) Timeout() time.Duration { return j.opts.Timeout }

func (j *Jamendo) tracksURL(params url.Values) string {
	params.Set("client_id", j.clientID)
	params.Set("format", "json")
	return strings.TrimSuffix(j.opts.BaseURL, "/") + "/tracks/?" + params.Encode()
}

func (j *Jamendo) fetch(ctx context.Context, params url.Values) ([]jamendoTrack, error) {
	var resp jamendoResponse
	if err := j.http.getJSON(ctx, j.tracksURL(params), &resp); err != nil {
		return nil, err
	}
	if resp.Headers.Code != 0 {
		return nil, j.http.classify(ctx, &jamendoError{code: resp.Headers.Code, msg: resp.Headers.ErrorMessage})
	}
	return resp.Results, nil
}

// Search 搜索曲目，按总热度排序
func (j *Jamendo) Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error) {
	limit := pageSize
	if limit > 50 {
		limit = 50
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa((page-1)*pageSize))
	params.Set("search", query)
	params.Set("fuzzysearch", "true")
	params.Set("include", "musicinfo stats")
	params.Set("order", "popularity_total_desc")

	items, err := j.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	tracks := make([]model.Track, 0, len(items))
	for _, it := range items {
		if t, ok := mapJamendo(it); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

func (j *Jamendo) byID(ctx context.Context, id string) (jamendoTrack, error) {
	params := url.Values{}
	params.Set("id", id)
	items, err := j.fetch(ctx, params)
	if err != nil {
		return jamendoTrack{}, err
	}
	if len(items) == 0 {
		return jamendoTrack{}, notFound(model.ProviderJamendo, "track %s not found", id)
	}
	return items[0], nil
}

// FetchByID 获取单曲
func (j *Jamendo) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	it, err := j.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, ok := mapJamendo(it)
	if !ok {
		return nil, notFound(model.ProviderJamendo, "track %s not found", id)
	}
	return &t, nil
}

// ResolveStream 返回 mp3 播放地址，Jamendo 不区分码率
func (j *Jamendo) ResolveStream(ctx context.Context, id, _ string) (*model.StreamLocation, error) {
	it, err := j.byID(ctx, id)
	if err != nil {
		return nil, err
	}
	streamURL := it.Audio
	if streamURL == "" {
		streamURL = it.AudioDownload
	}
	if streamURL == "" {
		return nil, notFound(model.ProviderJamendo, "no stream for %s", id)
	}
	return &model.StreamLocation{URL: streamURL, Format: "mp3", Provider: model.ProviderJamendo}, nil
}

func mapJamendo(it jamendoTrack) (model.Track, bool) {
	id := it.ID.String()
	if id == "" {
		return model.Track{}, false
	}
	cover := it.Image
	if cover == "" {
		cover = it.AlbumImage
	}
	if cover == "" && it.AlbumID != "" {
		cover = "https://cf.jamendo.com/?type=album&id=" + url.QueryEscape(it.AlbumID.String()) + "&width=300"
	}
	return model.Track{
		ID:              id,
		SourceID:        model.ProviderJamendo,
		Title:           strings.TrimSpace(it.Name),
		Artist:          strings.TrimSpace(it.ArtistName),
		Album:           it.AlbumName,
		DurationSeconds: float64(it.Duration),
		CoverURL:        cover,
		PopularityScore: float64(it.Stats.ListenedTotal),
	}, true
}

// jamendoError 接口以 200 状态返回的业务错误，例如 client_id 无效
type jamendoError struct {
	code int
	msg  string
}

func (e *jamendoError) Error() string {
	return "jamendo error " + strconv.Itoa(e.code) + ": " + e.msg
}
