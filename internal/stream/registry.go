package stream

import "sort"

// DefaultBatchSize is the maximum number of tokens per subscribe frame.
const DefaultBatchSize = 50

// Registry is the single source of truth for which instruments, at which
// mode, the application currently wants streamed. At most one mode per token
// (last write wins). Entries survive reconnects; replay re-sends the full
// contents. Mutated only from the manager's event loop.
type Registry struct {
	entries map[int64]Mode
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]Mode)}
}

// Set adds tokens at the given mode, overwriting the mode for tokens already
// present.
func (r *Registry) Set(tokens []int64, mode Mode) {
	for _, t := range tokens {
		r.entries[t] = mode
	}
}

// Remove deletes tokens from the registry. Unknown tokens are ignored.
func (r *Registry) Remove(tokens []int64) {
	for _, t := range tokens {
		delete(r.entries, t)
	}
}

// Mode returns the registered mode for a token.
func (r *Registry) Mode(token int64) (Mode, bool) {
	m, ok := r.entries[token]
	return m, ok
}

// Len returns the number of registered instruments.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot returns a copy of the registry contents.
func (r *Registry) Snapshot() map[int64]Mode {
	cp := make(map[int64]Mode, len(r.entries))
	for t, m := range r.entries {
		cp[t] = m
	}
	return cp
}

// Batches groups the full registry by mode and chunks each group to at most
// batchSize tokens, in sorted token order so replay is deterministic.
func (r *Registry) Batches(batchSize int) []OutboundFrame {
	byMode := make(map[Mode][]int64)
	for t, m := range r.entries {
		byMode[m] = append(byMode[m], t)
	}

	modes := make([]Mode, 0, len(byMode))
	for m := range byMode {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })

	var frames []OutboundFrame
	for _, m := range modes {
		tokens := byMode[m]
		sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
		for _, chunk := range chunkTokens(tokens, batchSize) {
			frames = append(frames, OutboundFrame{
				Action: ActionSubscribe,
				Tokens: chunk,
				Mode:   m,
			})
		}
	}
	return frames
}

// chunkTokens splits tokens into slices of at most size entries.
func chunkTokens(tokens []int64, size int) [][]int64 {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var chunks [][]int64
	for len(tokens) > size {
		chunks = append(chunks, tokens[:size:size])
		tokens = tokens[size:]
	}
	if len(tokens) > 0 {
		chunks = append(chunks, tokens)
	}
	return chunks
}
