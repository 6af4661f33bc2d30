// Package segment splits text into bounded chunks for synthesis.
//
// Chunks are built from fixed windows of whitespace-delimited words. Inside
// each window the split backtracks to the last word ending a sentence, then to
// the last word ending a clause, and otherwise takes the whole window.
package segment

import (
	"strings"
)

// DefaultMaxWords is the window size used when callers do not configure one.
const DefaultMaxWords = 15

// Chunk is one slice of input text handed to the engine as a unit.
type Chunk struct {
	// Index is the position of the chunk in the overall sequence.
	Index int
	// Text holds the words of the chunk joined by single spaces.
	Text string
	// Words is the number of input words the chunk covers.
	Words int
}

// Split segments text into chunks of at most maxWords words.
// A maxWords below one is treated as one. Blank text yields no chunks.
func Split(text string, maxWords int) []Chunk {
	if maxWords < 1 {
		maxWords = 1
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, len(words)/maxWords+1)
	for pos := 0; pos < len(words); {
		end := min(pos+maxWords, len(words))
		window := words[pos:end]

		n := boundary(window, '.')
		if n == 0 {
			n = boundary(window, ',')
		}

		advance := n
		if n == 0 {
			// no punctuation: the whole window is the chunk
			n = len(window)
			advance = maxWords
		}

		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  strings.Join(window[:n], " "),
			Words: n,
		})
		pos += advance
	}

	return chunks
}

// boundary returns the number of words up to and including the last word in
// window that ends with mark, or zero when no word does.
func boundary(window []string, mark byte) int {
	for i := len(window) - 1; i >= 0; i-- {
		w := window[i]
		if w[len(w)-1] == mark {
			return i + 1
		}
	}
	return 0
}

// Terminate returns chunk text that ends with a period, appending one if needed.
func Terminate(text string) string {
	if strings.HasSuffix(text, ".") {
		return text
	}
	return text + "."
}
