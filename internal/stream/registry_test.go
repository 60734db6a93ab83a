package stream

import (
	"reflect"
	"testing"
)

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Set([]int64{1, 2, 3}, ModeLTP)
	r.Set([]int64{2}, ModeFull)

	if mode, ok := r.Mode(2); !ok || mode != ModeFull {
		t.Errorf("token 2: got (%v, %v), want (full, true)", mode, ok)
	}
	if mode, ok := r.Mode(1); !ok || mode != ModeLTP {
		t.Errorf("token 1: got (%v, %v), want (ltp, true)", mode, ok)
	}
	if r.Len() != 3 {
		t.Errorf("len: got %d, want 3", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Set([]int64{1, 2}, ModeQuote)
	r.Remove([]int64{1, 99})

	if _, ok := r.Mode(1); ok {
		t.Error("token 1 still registered after remove")
	}
	if r.Len() != 1 {
		t.Errorf("len: got %d, want 1", r.Len())
	}
}

func TestRegistryBatchesCoverFinalSet(t *testing.T) {
	r := NewRegistry()
	r.Set([]int64{10, 11, 12}, ModeQuote)
	r.Set([]int64{20}, ModeFull)
	r.Remove([]int64{11})

	got := map[int64]Mode{}
	for _, f := range r.Batches(50) {
		if f.Action != ActionSubscribe {
			t.Fatalf("batch action: got %q, want subscribe", f.Action)
		}
		for _, tok := range f.Tokens {
			got[tok] = f.Mode
		}
	}

	want := map[int64]Mode{10: ModeQuote, 12: ModeQuote, 20: ModeFull}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("replay coverage: got %v, want %v", got, want)
	}
}

func TestRegistryBatchesChunking(t *testing.T) {
	r := NewRegistry()
	tokens := make([]int64, 120)
	for i := range tokens {
		tokens[i] = int64(i + 1)
	}
	r.Set(tokens, ModeLTP)

	batches := r.Batches(50)
	if len(batches) != 3 {
		t.Fatalf("batches: got %d, want 3", len(batches))
	}
	sizes := []int{len(batches[0].Tokens), len(batches[1].Tokens), len(batches[2].Tokens)}
	if sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 20 {
		t.Errorf("chunk sizes: got %v, want [50 50 20]", sizes)
	}
}

func TestRegistryBatchesEmpty(t *testing.T) {
	if got := NewRegistry().Batches(50); len(got) != 0 {
		t.Errorf("empty registry: got %d batches, want 0", len(got))
	}
}
