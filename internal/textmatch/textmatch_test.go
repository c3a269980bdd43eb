package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eiffelDoc = "Paris is the capital of France. The Eiffel Tower was completed in 1889."

func TestSupportedVerbatimSubstring(t *testing.T) {
	assert.True(t, Supported("The Eiffel Tower was completed in 1889", eiffelDoc))
	assert.True(t, Supported("Paris is the capital of France", eiffelDoc))
}

func TestSupportedCaseInsensitive(t *testing.T) {
	assert.True(t, Supported("the eiffel tower was COMPLETED in 1889", eiffelDoc))
}

func TestSupportedShortClaimExactSubstring(t *testing.T) {
	// 少于 3 个词的断言只做子串匹配。
	assert.True(t, Supported("in 1889", eiffelDoc))
	assert.False(t, Supported("in 1890", eiffelDoc))
}

func TestNotSupportedDisjointWords(t *testing.T) {
	assert.False(t, Supported("Bananas grow quickly under tropical sunlight", eiffelDoc))
}

func TestNotSupportedLowOverlapRejectedEarly(t *testing.T) {
	// 词重叠率低于 0.5 时直接拒绝，无需逐句比较。
	assert.False(t, Supported("The Colosseum was built by Roman emperors", eiffelDoc))
}

func TestSupportedNearDuplicateSentence(t *testing.T) {
	// 与原文句子高度相似但不完全相同。
	assert.True(t, Supported("The Eiffel Tower was completed in 1889 indeed", eiffelDoc))
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, WordOverlap("paris is the capital", "paris is the capital of france"), 1e-9)
	assert.InDelta(t, 0.0, WordOverlap("banana mango", "paris france"), 1e-9)
	assert.InDelta(t, 0.5, WordOverlap("paris banana", "paris france"), 1e-9)
}

func TestSimilarityBounds(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("same text", "same text"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", ""), 1e-9)

	s := Similarity("the tower was completed in 1889", "the tower was completed in 1890")
	assert.Greater(t, s, 0.7)
	assert.LessOrEqual(t, s, 1.0)
}

func TestSimilarityDissimilar(t *testing.T) {
	assert.Less(t, Similarity("zzzz", "qqqq"), 0.3)
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeSpace("  a \n b\t\tc  "))
	assert.Equal(t, "", NormalizeSpace("   "))
}
