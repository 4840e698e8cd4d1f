package model

import "strings"

// NeteaseAlbum 网易云音乐专辑信息
type NeteaseAlbum struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	PicURL string `json:"picUrl"`
}

// NeteaseArtist 网易云音乐艺术家信息
type NeteaseArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NeteaseSong 网易云音乐歌曲信息。
// 搜索接口使用 artists/album/duration，详情接口使用 ar/al/dt，两种写法都接受。
type NeteaseSong struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Artists  []NeteaseArtist `json:"artists"`
	Ar       []NeteaseArtist `json:"ar"`
	Album    NeteaseAlbum    `json:"album"`
	Al       NeteaseAlbum    `json:"al"`
	Duration int             `json:"duration"` // 毫秒
	Dt       int             `json:"dt"`       // 毫秒
}

// ArtistNames 以 " / " 连接艺术家名称
func (s NeteaseSong) ArtistNames() string {
	artists := s.Artists
	if len(artists) == 0 {
		artists = s.Ar
	}
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if n := strings.TrimSpace(a.Name); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, " / ")
}

// AlbumInfo 返回专辑信息
func (s NeteaseSong) AlbumInfo() NeteaseAlbum {
	if s.Album.Name != "" || s.Album.PicURL != "" {
		return s.Album
	}
	return s.Al
}

// DurationMs 返回时长毫秒数
func (s NeteaseSong) DurationMs() int {
	if s.Duration > 0 {
		return s.Duration
	}
	return s.Dt
}

// NeteaseSearchResult 搜索结果
type NeteaseSearchResult struct {
	Songs []NeteaseSong `json:"songs"`
	Total int           `json:"songCount"`
}

// NeteaseSongURL 播放地址，BR 单位为 bps
type NeteaseSongURL struct {
	ID    int64  `json:"id"`
	URL   string `json:"url"`
	BR    int    `json:"br"`
	Level string `json:"level"`
	Type  string `json:"type"`
}
