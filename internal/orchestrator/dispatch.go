// ABOUTME: Chunked response dispatch
// ABOUTME: Splits long responses into progress-prefixed messages that fit the gateway limit

package orchestrator

import "fmt"

// chunkResponse splits text into pieces no longer than limit characters. A
// text that fits in one message is returned unprefixed; otherwise every chunk
// carries a "**[i/N]** " progress header and the chunk bodies shrink to make
// room for it. The limit counts characters, not bytes, so chunks never split a
// multibyte rune. Concatenating the bodies reconstructs the original text
// exactly.
func chunkResponse(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	// The header length depends on N and N depends on how much body room the
	// header leaves, so grow N until it is self-consistent. Bodies are sized
	// for the widest header ("**[N/N]** ", all ASCII) so no chunk can overflow.
	n := 2
	body := 1
	for {
		body = limit - len(chunkHeader(n, n))
		if body <= 0 {
			body = 1
		}
		need := (len(runes) + body - 1) / body
		if need <= n {
			n = need
			break
		}
		n = need
	}

	chunks := make([]string, 0, n)
	for i, start := 1, 0; start < len(runes); i++ {
		end := start + body
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, chunkHeader(i, n)+string(runes[start:end]))
		start = end
	}
	return chunks
}

func chunkHeader(i, n int) string {
	return fmt.Sprintf("**[%d/%d]** ", i, n)
}
