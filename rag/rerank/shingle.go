package rerank

import (
	"strings"

	"golang.org/x/text/cases"
)

// Shingles 返回大小写折叠后的 n 字符 shingle 集合。
// 文本短于 n 时整体作为一个 shingle，空文本返回空集合。
func Shingles(text string, n int) map[string]struct{} {
	return shingles(cases.Fold(), text, n)
}

// Jaccard 计算两段文本 n 字符 shingle 的 Jaccard 相似度，任一为空时返回 0
func Jaccard(a, b string, n int) float64 {
	fold := cases.Fold()
	return jaccard(shingles(fold, a, n), shingles(fold, b, n))
}

// shingles 使用调用方持有的 Caser，Caser 不能跨 goroutine 共享
func shingles(fold cases.Caser, text string, n int) map[string]struct{} {
	if n <= 0 {
		n = 3
	}
	folded := fold.String(strings.TrimSpace(text))
	out := make(map[string]struct{})
	if folded == "" {
		return out
	}

	runes := []rune(folded)
	if len(runes) < n {
		out[folded] = struct{}{}
		return out
	}
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
