//go:build faiss && cgo
// +build faiss,cgo

package vector

import (
	"context"
	"math/rand"
	"testing"
)

func TestFAISSIndex_MatchesMemoryOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	entries := randomEntries(r, 30, 4)
	entries = append(entries, entry("dup1", 1, 0, 0, 0), entry("dup2", 1, 0, 0, 0), entry("dup3", 2, 0, 0, 0))
	mem, err := Build(entries)
	if err != nil {
		t.Fatal(err)
	}
	fi, err := BuildFAISS(entries)
	if err != nil {
		t.Fatal(err)
	}
	defer fi.Close()

	results, err := fi.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(results); got[0] != "dup1" || got[1] != "dup2" {
		t.Errorf("tie order = %v, want [dup1 dup2]", got)
	}
	want, _ := mem.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	if ids(want)[0] != "dup1" {
		t.Errorf("memory tie order = %v", ids(want))
	}
}

func TestFAISSIndex_SearchEmpty(t *testing.T) {
	fi, err := BuildFAISS(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer fi.Close()
	results, err := fi.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}
