// Package dedupe 对多个 Provider 的搜索结果做指纹去重与排序。
// 包内函数均为纯函数，不做任何 I/O。
package dedupe

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"FMEdge/model"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DurationBucket 时长分桶粒度（秒）
const DurationBucket = 3

// UnknownBucket 时长未知时使用的桶
const UnknownBucket = "?"

// 只去掉拉丁组合附加符号，保留日文浊点等其他组合字符
var latinMarks = runes.Predicate(func(r rune) bool {
	return r >= 0x0300 && r <= 0x036f
})

// Normalize 小写化、NFKC 归一、去掉拉丁变音符号、标点替换为空格并压缩空白
func Normalize(s string) string {
	// transform.Chain 带状态，不能跨 goroutine 复用
	t := transform.Chain(norm.NFKD, runes.Remove(latinMarks), norm.NFKC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = norm.NFKC.String(s)
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Bucket 将时长四舍五入到最近的 DurationBucket 倍数
func Bucket(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return UnknownBucket
	}
	n := math.Round(seconds/DurationBucket) * DurationBucket
	return strconv.FormatInt(int64(n), 10)
}

// Fingerprint 返回 "标题|艺术家|时长桶"
func Fingerprint(t model.Track) string {
	return Normalize(t.Title) + "|" + Normalize(t.Artist) + "|" + Bucket(t.DurationSeconds)
}
