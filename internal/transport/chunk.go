package transport

// Chunk is one page of a finite result sequence. Every sequence
// terminates with a chunk whose Done flag is set, so consumers never
// wait on an ambiguous tail.
type Chunk[T any] struct {
	Items []T  `json:"items"`
	Seq   int  `json:"seq"`
	Done  bool `json:"done"`
}

// Paginate splits items into completion-terminated chunks of at most
// size elements. An empty input still yields one terminal chunk.
func Paginate[T any](items []T, size int) []Chunk[T] {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			size = 1
		}
	}

	var chunks []Chunk[T]
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, Chunk[T]{
			Items: items[start:end],
			Seq:   len(chunks),
		})
	}
	if len(chunks) == 0 {
		chunks = append(chunks, Chunk[T]{Items: []T{}})
	}
	chunks[len(chunks)-1].Done = true
	return chunks
}
