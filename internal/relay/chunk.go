package relay

// MaxChunkLen is the longest reply segment the chat platform accepts, in characters.
const MaxChunkLen = 2000

// Chunk splits text into consecutive segments of at most max runes. Empty text yields no chunks.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	if max <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/max+1)
	for i := 0; i < len(runes); i += max {
		end := i + max
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
