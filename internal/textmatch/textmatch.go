// Package textmatch 提供断言与原文之间的文本支持判定。
//
// 判定分三级：极短断言（<3 词）只做大小写不敏感的子串匹配；
// 其余先用词集合重叠率做快速预筛（阈值 0.5），
// 再与原文逐句计算序列相似度，任一句子相似度超过 0.7 即认定被支持。
// 0.5 与 0.7 两个阈值是行为约定的一部分，不可随意调整。
package textmatch

import (
	"strings"
	"unicode"
)

const (
	overlapThreshold    = 0.5
	similarityThreshold = 0.7
)

// Supported 判断 claim 是否被 document 的文本所支持。
func Supported(claim, document string) bool {
	claimLower := strings.ToLower(strings.TrimSpace(claim))
	docLower := strings.ToLower(document)
	if claimLower == "" {
		return false
	}

	words := strings.Fields(claimLower)
	if len(words) < 3 {
		return strings.Contains(docLower, claimLower)
	}

	if WordOverlap(claimLower, docLower) < overlapThreshold {
		return false
	}

	for _, sentence := range splitRoughSentences(docLower) {
		if Similarity(claimLower, strings.TrimSpace(sentence)) > similarityThreshold {
			return true
		}
	}
	return false
}

// WordOverlap 返回 claim 的词集合中出现在 document 词集合里的比例。
func WordOverlap(claim, document string) float64 {
	claimWords := strings.Fields(claim)
	if len(claimWords) == 0 {
		return 0
	}
	claimSet := make(map[string]struct{}, len(claimWords))
	for _, w := range claimWords {
		claimSet[w] = struct{}{}
	}
	docSet := make(map[string]struct{})
	for _, w := range strings.Fields(document) {
		docSet[w] = struct{}{}
	}
	hit := 0
	for w := range claimSet {
		if _, ok := docSet[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(claimSet))
}

// Similarity 返回两个字符串的序列相似度，区间 [0,1]。
// 实现为最长公共子序列比率：2*LCS(a,b) / (len(a)+len(b))，
// 与把两个字符串当作近重复文本比较的语义一致。
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	lcs := lcsLength(ra, rb)
	return 2 * float64(lcs) / float64(len(ra)+len(rb))
}

// lcsLength 计算最长公共子序列长度，滚动数组实现，空间 O(min(m,n))。
func lcsLength(a, b []rune) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := 1; i <= len(b); i++ {
		for j := 1; j <= len(a); j++ {
			if b[i-1] == a[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// splitRoughSentences 按句末标点与换行粗切原文，用于逐句相似度比较。
func splitRoughSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}

// NormalizeSpace 把连续空白折叠为单个空格并去除首尾空白。
func NormalizeSpace(s string) string {
	var sb strings.Builder
	inSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		inSpace = false
		sb.WriteRune(r)
	}
	return sb.String()
}
