package chunk

import (
	"strings"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid defaults", DefaultSize, DefaultOverlap, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative size", -1, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplit_EmptyContent(t *testing.T) {
	c, _ := New(DefaultSize, DefaultOverlap)
	if _, err := c.Split("", "doc-1", nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestSplit_SingleChunk(t *testing.T) {
	c, _ := New(DefaultSize, DefaultOverlap)
	chunks, err := c.Split("short document", "doc-1", map[string]string{"title": "Short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "short document" {
		t.Errorf("content = %q", chunks[0].Content)
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("chunk index = %d", chunks[0].ChunkIndex)
	}
	if chunks[0].DocID != "doc-1" {
		t.Errorf("doc ID = %q", chunks[0].DocID)
	}
	if chunks[0].Metadata["title"] != "Short" {
		t.Errorf("metadata = %v", chunks[0].Metadata)
	}
	if len(chunks[0].ChunkID) != 16 {
		t.Errorf("chunk ID length = %d, want 16", len(chunks[0].ChunkID))
	}
}

func TestSplit_NoWhitespaceWindows(t *testing.T) {
	c, err := New(512, 128)
	if err != nil {
		t.Fatal(err)
	}

	content := strings.Repeat("a", 1200)
	chunks, err := c.Split(content, "doc-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Windows cannot trim back to whitespace, so they advance by exactly
	// size-overlap until the tail.
	wantLens := []int{512, 512, 432, 128}
	if len(chunks) != len(wantLens) {
		t.Fatalf("expected %d chunks, got %d", len(wantLens), len(chunks))
	}
	for i, want := range wantLens {
		if got := len(chunks[i].Content); got != want {
			t.Errorf("chunk %d length = %d, want %d", i, got, want)
		}
		if chunks[i].ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, chunks[i].ChunkIndex)
		}
	}
}

func TestSplit_WordBoundaries(t *testing.T) {
	c, err := New(50, 10)
	if err != nil {
		t.Fatal(err)
	}

	content := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 10))
	chunks, err := c.Split(content, "doc-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Window ends are pulled back to whitespace, so the last word of every
	// chunk except the final one must be complete. Starts may land mid-word
	// because the overlap offset is positional.
	words := map[string]bool{"alpha": true, "beta": true, "gamma": true, "delta": true}
	for i, ch := range chunks {
		if ch.Content == "" {
			t.Errorf("chunk %d is empty", i)
			continue
		}
		if i == len(chunks)-1 {
			continue
		}
		fields := strings.Fields(ch.Content)
		if last := fields[len(fields)-1]; !words[last] {
			t.Errorf("chunk %d ends mid-word: %q", i, last)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c, _ := New(100, 20)
	content := strings.Repeat("the quick brown fox jumps over the lazy dog ", 8)

	first, err := c.Split(content, "doc-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Split(content, "doc-1", nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ChunkID != second[i].ChunkID {
			t.Errorf("chunk %d IDs differ: %s vs %s", i, first[i].ChunkID, second[i].ChunkID)
		}
	}
}

func TestSplit_ChunkIDsVaryByDocument(t *testing.T) {
	c, _ := New(DefaultSize, DefaultOverlap)

	a, _ := c.Split("same content", "doc-a", nil)
	b, _ := c.Split("same content", "doc-b", nil)

	if a[0].ChunkID == b[0].ChunkID {
		t.Error("different documents produced the same chunk ID")
	}
}

func TestSplit_TerminatesOnHeavyTrim(t *testing.T) {
	// Overlap nearly as large as the window, with whitespace that trims the
	// window back to the start. Progress must still be made.
	c, err := New(10, 9)
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("aaaa aaaa aaaa aaaa", "doc-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
}
