package scan

import "sync"

// watermark tracks which chunks completed. Chunks finish out of order when
// scanned concurrently, so the safe point to resume a failed run from is the
// end of the contiguous completed prefix, not the highest finished chunk.
type watermark struct {
	mu     sync.Mutex
	chunks []Chunk
	done   []bool
	next   int
}

func newWatermark(chunks []Chunk) *watermark {
	return &watermark{chunks: chunks, done: make([]bool, len(chunks))}
}

// complete marks chunk i as done and advances the contiguous prefix.
func (w *watermark) complete(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done[i] = true
	for w.next < len(w.done) && w.done[w.next] {
		w.next++
	}
}

// boundary returns the last block of the contiguous completed prefix. ok is
// false when the first chunk has not completed yet.
func (w *watermark) boundary() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.next == 0 {
		return 0, false
	}
	return w.chunks[w.next-1].To, true
}
