// Package chunker 将原始文档文本切分为带重叠衔接的、以句子为边界的分块。
//
// 切分以词数为预算：向缓冲区累加句子，超出 maxWords 时封闭当前分块，
// 并以上一分块末尾不超过 overlapWords 的若干完整句子作为下一分块的开头，
// 保证边界处的上下文不丢失。句子永远不会被从中间截断。
package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"
)

// Chunk 是一次切分产出的分块。
// SequenceIndex 与 TotalChunks 共同记录分块在原文档中的位置，供溯源使用。
type Chunk struct {
	ID            string // 分块文本的内容指纹（md5 前 8 位十六进制），对相同文本稳定
	Text          string
	SequenceIndex int
	TotalChunks   int
	WordCount     int
}

// Split 将文本按句子边界切分为词数不超过 maxWords 的分块，
// 相邻分块之间保留不超过 overlapWords 词的句子级重叠。
// 单个句子超过 maxWords 时整句独立成块，不做截断。
func Split(text string, maxWords, overlapWords int) []Chunk {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []Chunk
	var buffer []string
	bufferWords := 0

	flush := func() {
		chunkText := strings.Join(buffer, " ")
		chunks = append(chunks, Chunk{
			ID:            Fingerprint(chunkText),
			Text:          chunkText,
			SequenceIndex: len(chunks),
			WordCount:     bufferWords,
		})
	}

	for _, sentence := range sentences {
		sentenceWords := countWords(sentence)

		if bufferWords+sentenceWords > maxWords && len(buffer) > 0 {
			flush()

			// 从已封闭缓冲区的末尾取句子作为重叠，累计词数不超过 overlapWords。
			var overlap []string
			overlapCount := 0
			for i := len(buffer) - 1; i >= 0; i-- {
				w := countWords(buffer[i])
				if overlapCount+w > overlapWords {
					break
				}
				overlap = append([]string{buffer[i]}, overlap...)
				overlapCount += w
			}

			buffer = append(overlap, sentence)
			bufferWords = overlapCount + sentenceWords
		} else {
			buffer = append(buffer, sentence)
			bufferWords += sentenceWords
		}
	}

	if len(buffer) > 0 {
		flush()
	}

	// 总分块数在全部分块确定后回填。
	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}

	return chunks
}

// SplitSentences 按 . ! ? 后跟空白的启发式边界切分句子，标点保留在句尾。
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			// 边界条件：标点后是空白或文本结束。
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				s := strings.TrimSpace(string(runes[start : i+1]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

// Fingerprint 返回文本的稳定内容指纹：md5 十六进制摘要的前 8 位。
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:8]
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
