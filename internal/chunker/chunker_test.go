package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	text := "Paris is the capital of France. The Eiffel Tower was completed in 1889! Was it tall? Yes."
	sentences := SplitSentences(text)
	require.Len(t, sentences, 4)
	assert.Equal(t, "Paris is the capital of France.", sentences[0])
	assert.Equal(t, "The Eiffel Tower was completed in 1889!", sentences[1])
	assert.Equal(t, "Was it tall?", sentences[2])
	assert.Equal(t, "Yes.", sentences[3])
}

func TestSplitSentencesNoTrailingPunctuation(t *testing.T) {
	sentences := SplitSentences("First sentence. Trailing fragment without punctuation")
	require.Len(t, sentences, 2)
	assert.Equal(t, "Trailing fragment without punctuation", sentences[1])
}

func TestSplitSentencesDecimalNotBoundary(t *testing.T) {
	// 小数点后没有空白，不构成句子边界。
	sentences := SplitSentences("The price rose 3.5 percent. Demand stayed flat.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "The price rose 3.5 percent.", sentences[0])
}

func TestSplitRespectsWordBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString(fmt.Sprintf("Sentence number %d has exactly six words. ", i))
	}
	chunks := Split(sb.String(), 50, 12)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.WordCount, 50, "chunk %d exceeds word budget", c.SequenceIndex)
		assert.Equal(t, len(strings.Fields(c.Text)), c.WordCount)
	}
}

func TestSplitPreservesAllSentencesInOrder(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString(fmt.Sprintf("This is test sentence number %d in the source. ", i))
	}
	original := SplitSentences(sb.String())
	chunks := Split(sb.String(), 40, 10)

	// 依次在分块序列中消费原始句子：每个句子都要出现，且顺序保持。
	// 重叠区允许句子重复出现。
	pos := 0
	for _, sentence := range original {
		found := false
		for ; pos < len(chunks); pos++ {
			if strings.Contains(chunks[pos].Text, sentence) {
				found = true
				break
			}
		}
		require.True(t, found, "sentence %q missing or out of order", sentence)
	}
}

func TestSplitOverlapCarriesPreviousSentences(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf("Overlap check sentence number %d here. ", i))
	}
	chunks := Split(sb.String(), 30, 12)
	require.Greater(t, len(chunks), 1)

	// 每个后续分块都以上一分块末尾的句子开头。
	for i := 1; i < len(chunks); i++ {
		firstSentence := SplitSentences(chunks[i].Text)[0]
		assert.Contains(t, chunks[i-1].Text, firstSentence,
			"chunk %d should start with overlap from chunk %d", i, i-1)
	}
}

func TestSplitSingleLongSentenceKeptWhole(t *testing.T) {
	long := "word " + strings.Repeat("and word ", 120) + "end."
	chunks := Split("Short lead-in sentence here. "+long, 20, 5)
	require.NotEmpty(t, chunks)

	// 超长句子整句成块，不被截断。
	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Text, "end.") && strings.Count(c.Text, "and word") == 120 {
			found = true
		}
	}
	assert.True(t, found, "long sentence must be kept whole in its own chunk")
}

func TestSplitIdempotentIDs(t *testing.T) {
	text := "Alpha beta gamma delta. Epsilon zeta eta theta. Iota kappa lambda mu."
	first := Split(text, 8, 4)
	second := Split(text, 8, 4)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Len(t, first[i].ID, 8)
	}
}

func TestSplitSequenceIndexAndTotalChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 25; i++ {
		sb.WriteString(fmt.Sprintf("Position tracking sentence number %d goes here. ", i))
	}
	chunks := Split(sb.String(), 30, 8)
	require.Greater(t, len(chunks), 1)

	// 每个分块都携带自己的序号和文档总分块数。
	for i, c := range chunks {
		assert.Equal(t, i, c.SequenceIndex)
		assert.Equal(t, len(chunks), c.TotalChunks)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	assert.Nil(t, Split("", 100, 10))
	assert.Nil(t, Split("   \n\t  ", 100, 10))
}

func TestFingerprintStable(t *testing.T) {
	assert.Equal(t, Fingerprint("hello world"), Fingerprint("hello world"))
	assert.NotEqual(t, Fingerprint("hello world"), Fingerprint("hello worlds"))
}
