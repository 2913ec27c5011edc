package memory

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	exactContentWeight = 0.5
	exactSummaryWeight = 0.3
	wordContentWeight  = 0.1
	wordSummaryWeight  = 0.05

	// RecencyWindow 新近度加分线性衰减到 0 的窗口
	RecencyWindow = 168 * time.Hour
	// RecencyWeight 新近度加分上限
	RecencyWeight = 0.2
)

// Score 计算条目对查询的相关度：文本命中分加新近度分。
//
// 新近度分对所有条目都生效，一周内写入的条目即使文本未命中也会被召回。
// 空查询是浏览模式，只按新近度排序。
func Score(e *Entry, query string, now time.Time) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	recency := recencyBonus(e.CreatedAt, now)
	if q == "" {
		return recency
	}

	content := strings.ToLower(e.Content)
	summary := strings.ToLower(e.Summary)

	score := 0.0
	if strings.Contains(content, q) {
		score += exactContentWeight
	}
	if summary != "" && strings.Contains(summary, q) {
		score += exactSummaryWeight
	}
	for _, word := range strings.Fields(q) {
		if strings.Contains(content, word) {
			score += wordContentWeight
		}
		if summary != "" && strings.Contains(summary, word) {
			score += wordSummaryWeight
		}
	}
	return score + recency
}

func recencyBonus(created, now time.Time) float64 {
	if created.IsZero() {
		return 0
	}
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	r := 1 - float64(age)/float64(RecencyWindow)
	if r <= 0 {
		return 0
	}
	return r * RecencyWeight
}

// truncate 按 rune 截断
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
