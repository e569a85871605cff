package extract

import (
	"testing"

	"reddit-etl/reddit"
)

func TestDepthDirectReplyToPost(t *testing.T) {
	parents := map[string]string{"c1": "t3_post"}
	if d := Depth("t3_post", parents); d != 0 {
		t.Errorf("Expected depth 0 for a direct reply, got %d", d)
	}
}

func TestDepthMatchesChainLength(t *testing.T) {
	// c4 -> c3 -> c2 -> c1 -> post
	parents := map[string]string{
		"c1": "t3_post",
		"c2": "t1_c1",
		"c3": "t1_c2",
		"c4": "t1_c3",
	}
	tests := []struct {
		parentID string
		want     int
	}{
		{"t3_post", 0},
		{"t1_c1", 1},
		{"t1_c2", 2},
		{"t1_c3", 3},
	}
	for _, tc := range tests {
		if d := Depth(tc.parentID, parents); d != tc.want {
			t.Errorf("Depth(%q) = %d, want %d", tc.parentID, d, tc.want)
		}
	}
}

func TestDepthMissingParentReturnsPartialDepth(t *testing.T) {
	// c2's chain ends at a parent absent from the table.
	parents := map[string]string{
		"c2": "t1_ghost",
	}
	if d := Depth("t1_c2", parents); d != 1 {
		t.Errorf("Expected partial depth 1 for a broken chain, got %d", d)
	}
}

func TestDepthUnknownDirectParentReturnsZero(t *testing.T) {
	if d := Depth("t1_ghost", map[string]string{}); d != 0 {
		t.Errorf("Expected depth 0 when the direct parent is unknown, got %d", d)
	}
}

func TestDepthCycleTerminates(t *testing.T) {
	parents := map[string]string{
		"a": "t1_b",
		"b": "t1_a",
	}
	d := Depth("t1_a", parents)
	if d != maxDepthIterations {
		t.Errorf("Expected cycle to stop at the iteration cap %d, got %d", maxDepthIterations, d)
	}
}

func TestDepthSelfReferenceTerminates(t *testing.T) {
	parents := map[string]string{"a": "t1_a"}
	d := Depth("t1_a", parents)
	if d != maxDepthIterations {
		t.Errorf("Expected self-reference to stop at the cap, got %d", d)
	}
}

func TestDepthIgnoresLinkPrefixParents(t *testing.T) {
	// Prefix constants must line up with the wire format.
	if reddit.PrefixComment != "t1_" || reddit.PrefixLink != "t3_" {
		t.Fatal("Fullname prefixes changed")
	}
	parents := map[string]string{"c1": "t3_post"}
	if d := Depth("t1_c1", parents); d != 1 {
		t.Errorf("Expected depth 1, got %d", d)
	}
}
