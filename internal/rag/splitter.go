// Package rag implements the knowledge index: chunking, embedding and
// retrieval over SQLite with the sqlite-vec extension.
package rag

import "strings"

// SplitText splits a document into fixed-size chunks with overlap. Chunk
// size and overlap are measured in runes. Boundaries prefer whitespace when
// one falls near the cut point.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}

		cut := end
		// Back up to the nearest space so words stay whole, but never give
		// up more than a tenth of the chunk.
		if end < len(runes) {
			for i := end; i > end-size/10 && i > start; i-- {
				if runes[i-1] == ' ' || runes[i-1] == '\n' {
					cut = i
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if cut >= len(runes) {
			break
		}
	}
	return chunks
}
