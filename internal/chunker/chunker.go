// Package chunker 实现了检索用的文本分块策略。
package chunker

import (
	"strings"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
)

// 切分时优先选择的句子结束符。
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
	'\n': true,
}

// Chunker 将长文本切分为带重叠的滑动窗口分块。
// 相同输入永远产生相同的分块边界（测试的可复现性依赖这一点）。
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
}

// New 创建一个 Chunker。配置非法时回退到默认值。
func New(cfg config.ChunkingConfig) *Chunker {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	minSize := cfg.MinChunkSize
	if minSize <= 0 || minSize > chunkSize {
		minSize = 50
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: overlap, minChunkSize: minSize}
}

// Chunk 将提取出的全文切分为有序分块。
// 退化输入（空或纯空白）返回零个分块，由上层按"无可提取文本"的软失败处理。
// 偏移量按 rune 计，相邻分块的区间有重叠但无空洞，按序拼接可还原全文的超集。
func (c *Chunker) Chunk(text, fileMD5, fileName string) []*model.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []*model.Chunk
	pos := 0
	idx := 0

	for pos < len(runes) {
		end := pos + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// 在窗口尾部回看，尽量在句子边界处断开，避免截断语义。
			end = c.breakPoint(runes, pos, end)
		}

		segment := string(runes[pos:end])
		if strings.TrimSpace(segment) != "" {
			chunks = append(chunks, &model.Chunk{
				FileMD5:     fileMD5,
				FileName:    fileName,
				Index:       idx,
				Text:        segment,
				StartOffset: pos,
				EndOffset:   end,
			})
			idx++
		}

		if end == len(runes) {
			break
		}
		next := end - c.chunkOverlap
		if next <= pos {
			// 保证窗口始终前进，避免重叠配置过大导致死循环。
			next = end
		}
		pos = next
	}

	// 过短的尾块并入前一块，保持 [min, max] 的长度窗口。
	if n := len(chunks); n >= 2 {
		last := chunks[n-1]
		if last.EndOffset-last.StartOffset < c.minChunkSize {
			prev := chunks[n-2]
			prev.Text = string(runes[prev.StartOffset:last.EndOffset])
			prev.EndOffset = last.EndOffset
			chunks = chunks[:n-1]
		}
	}

	return chunks
}

// breakPoint 在 [pos, limit) 的尾部寻找合适的断点。
// 优先句子结束符，其次空白字符，都找不到时按窗口上限硬切。
func (c *Chunker) breakPoint(runes []rune, pos, limit int) int {
	// 只在窗口最后 1/4 内回看，避免产生过短的分块。
	lookback := c.chunkSize / 4
	floor := limit - lookback
	if floor < pos+1 {
		floor = pos + 1
	}

	for i := limit - 1; i >= floor; i-- {
		if sentenceEnders[runes[i]] {
			return i + 1
		}
	}
	for i := limit - 1; i >= floor; i-- {
		if runes[i] == ' ' || runes[i] == '\t' {
			return i + 1
		}
	}
	return limit
}
