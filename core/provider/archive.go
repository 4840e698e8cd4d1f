package provider

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"FMEdge/model"
)

const archiveAPI = "https://archive.org"

type archiveDoc struct {
	Identifier string      `json:"identifier"`
	Title      flexStrings `json:"title"`
	Creator    flexStrings `json:"creator"`
	Format     flexStrings `json:"format"`
	Downloads  flexFloat   `json:"downloads"`
}

type archiveSearchResponse struct {
	Response struct {
		Docs []archiveDoc `json:"docs"`
	} `json:"response"`
}

type archiveFile struct {
	Name   string     `json:"name"`
	Format string     `json:"format"`
	Length flexString `json:"length"`
}

type archiveMetadata struct {
	Metadata struct {
		Title   flexStrings `json:"title"`
		Creator flexStrings `json:"creator"`
		Album   flexStrings `json:"album"`
	} `json:"metadata"`
	Files []archiveFile `json:"files"`
}

// Archive 互联网档案馆的音频条目，每个 identifier 视为一首曲目
type Archive struct {
	opts Options
	http *httpClient
}

// NewArchive 创建互联网档案馆适配器
func NewArchive(opts Options) *Archive {
	opts = opts.withDefaults(archiveAPI, 7*time.Second)
	return &Archive{opts: opts, http: newHTTPClient(model.ProviderIA, opts)}
}

func (a *Archive) ID() model.ProviderID   { return model.ProviderIA }
func (a *Archive) Timeout() time.Duration { return a.opts.Timeout }

func (a *Archive) base() string { return strings.TrimSuffix(a.opts.BaseURL, "/") }

func (a *Archive) coverURL(id string) string {
	return a.base() + "/services/img/" + url.PathEscape(id)
}

// Search 搜索音频条目，按下载量排序
func (a *Archive) Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error) {
	params := url.Values{}
	params.Set("q", "("+query+") AND mediatype:(audio)")
	for _, f := range []string{"identifier", "title", "creator", "format", "downloads"} {
		params.Add("fl[]", f)
	}
	params.Add("sort[]", "downloads desc")
	params.Set("rows", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("output", "json")

	var resp archiveSearchResponse
	if err := a.http.getJSON(ctx, a.base()+"/advancedsearch.php?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	tracks := make([]model.Track, 0, len(resp.Response.Docs))
	for _, d := range resp.Response.Docs {
		if d.Identifier == "" {
			continue
		}
		title := d.Title.First()
		if title == "" {
			title = d.Identifier
		}
		tracks = append(tracks, model.Track{
			ID:              d.Identifier,
			SourceID:        model.ProviderIA,
			Title:           title,
			Artist:          d.Creator.First(),
			CoverURL:        a.coverURL(d.Identifier),
			PopularityScore: float64(d.Downloads),
		})
	}
	return tracks, nil
}

func (a *Archive) metadata(ctx context.Context, id string) (*archiveMetadata, error) {
	var meta archiveMetadata
	if err := a.http.getJSON(ctx, a.base()+"/metadata/"+url.PathEscape(id), &meta); err != nil {
		return nil, err
	}
	// 不存在的条目返回 {}
	if len(meta.Files) == 0 && len(meta.Metadata.Title) == 0 {
		return nil, notFound(model.ProviderIA, "item %s not found", id)
	}
	return &meta, nil
}

// FetchByID 获取条目元数据
func (a *Archive) FetchByID(ctx context.Context, id string) (*model.Track, error) {
	meta, err := a.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	title := meta.Metadata.Title.First()
	if title == "" {
		title = id
	}
	t := &model.Track{
		ID:       id,
		SourceID: model.ProviderIA,
		Title:    title,
		Artist:   meta.Metadata.Creator.First(),
		Album:    meta.Metadata.Album.First(),
		CoverURL: a.coverURL(id),
	}
	if f, ok := pickArchiveFile(meta.Files); ok {
		t.DurationSeconds = parseLength(f.Length.String())
	}
	return t, nil
}

// ResolveStream 选择条目中的音频文件，优先 mp3，其次 ogg、flac
func (a *Archive) ResolveStream(ctx context.Context, id, _ string) (*model.StreamLocation, error) {
	meta, err := a.metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	f, ok := pickArchiveFile(meta.Files)
	if !ok {
		return nil, notFound(model.ProviderIA, "no audio file in %s", id)
	}
	return &model.StreamLocation{
		URL:      a.base() + "/download/" + url.PathEscape(id) + "/" + url.PathEscape(f.Name),
		Format:   strings.TrimPrefix(strings.ToLower(fileExt(f.Name)), "."),
		Provider: model.ProviderIA,
	}, nil
}

var archiveExtPreference = []string{".mp3", ".ogg", ".flac"}

func pickArchiveFile(files []archiveFile) (archiveFile, bool) {
	for _, ext := range archiveExtPreference {
		for _, f := range files {
			if strings.EqualFold(fileExt(f.Name), ext) {
				return f, true
			}
		}
	}
	return archiveFile{}, false
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

var lengthPattern = regexp.MustCompile(`^(\d+):(\d{1,2})(?::(\d{1,2}))?$`)

// parseLength 解析 "mm:ss"、"h:mm:ss" 或秒数，无法解析时返回 0
func parseLength(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if m := lengthPattern.FindStringSubmatch(raw); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if m[3] == "" {
			return float64(a*60 + b)
		}
		c, _ := strconv.Atoi(m[3])
		return float64(a*3600 + b*60 + c)
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
		return v
	}
	return 0
}
