package seqdetect

import "testing"

func files(names ...string) []File {
	out := make([]File, 0, len(names))
	for i, n := range names {
		out = append(out, File{Name: n, Size: int64(100 + i), Mtime: int64(1000 + i)})
	}
	return out
}

func TestGroupBasicSequence(t *testing.T) {
	res := Group("/shots/010", files(
		"shot.001.exr", "shot.002.exr", "shot.003.exr",
	), 2, nil)

	if len(res.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(res.Sequences))
	}
	seq := res.Sequences[0]
	if seq.Base != "shot" || seq.Ext != "exr" || seq.Pad != 3 {
		t.Fatalf("unexpected group key: %+v", seq)
	}
	if seq.FrameMin != 1 || seq.FrameMax != 3 || seq.FrameCount != 3 {
		t.Fatalf("unexpected frame range: %+v", seq)
	}
	if seq.RangeCount != 1 || seq.Holes != 0 {
		t.Fatalf("expected one contiguous range with no holes, got %+v", seq)
	}
	if len(res.Singles) != 0 {
		t.Fatalf("expected no singles, got %v", res.Singles)
	}
}

func TestGroupBelowMinSeqBecomesSingles(t *testing.T) {
	res := Group("/shots/010", files("shot.001.exr"), 2, nil)
	if len(res.Sequences) != 0 {
		t.Fatalf("expected no sequences below min_seq, got %d", len(res.Sequences))
	}
	if len(res.Singles) != 1 {
		t.Fatalf("expected the lone frame to fall back to singles, got %d", len(res.Singles))
	}
}

func TestGroupHolesAndRanges(t *testing.T) {
	res := Group("/shots/010", files(
		"shot.001.exr", "shot.002.exr", "shot.005.exr",
	), 2, nil)
	if len(res.Sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(res.Sequences))
	}
	seq := res.Sequences[0]
	if seq.RangeCount != 2 {
		t.Fatalf("expected two contiguous ranges (1-2, 5), got %d", seq.RangeCount)
	}
	if seq.Holes != 2 {
		t.Fatalf("expected 2 holes (3,4), got %d", seq.Holes)
	}
}

func TestPaddingMismatchBreaksGroup(t *testing.T) {
	res := Group("/shots/010", files(
		"shot.001.exr", "shot.002.exr", "shot.0003.exr", "shot.0004.exr",
	), 2, nil)
	if len(res.Sequences) != 2 {
		t.Fatalf("expected padding mismatch to split into two sequences, got %d", len(res.Sequences))
	}
}

func TestSeparatorDistinguishesGroups(t *testing.T) {
	res := Group("/shots/010", files(
		"shot.001.exr", "shot.002.exr", "shot_001.exr", "shot_002.exr",
	), 2, nil)
	if len(res.Sequences) != 2 {
		t.Fatalf("expected separator mismatch to split into two sequences, got %d", len(res.Sequences))
	}
}

func TestUnacceptedExtensionFallsBackToSingle(t *testing.T) {
	res := Group("/shots/010", files("render.001.mov", "render.002.mov"), 2, nil)
	if len(res.Sequences) != 0 {
		t.Fatalf("expected mov files to be excluded from sequence detection, got %d", len(res.Sequences))
	}
	if len(res.Singles) != 2 {
		t.Fatalf("expected both mov files as singles, got %d", len(res.Singles))
	}
}

func TestNoSeparatorIsSingle(t *testing.T) {
	res := Group("/shots/010", files("shot001.exr"), 1, nil)
	if len(res.Sequences) != 0 {
		t.Fatalf("expected no separator before digits to disqualify grouping, got %d", len(res.Sequences))
	}
	if len(res.Singles) != 1 {
		t.Fatalf("expected fallback to single, got %d", len(res.Singles))
	}
}

func TestExtensionCaseInsensitive(t *testing.T) {
	res := Group("/shots/010", files("shot.001.EXR", "shot.002.Exr"), 2, nil)
	if len(res.Sequences) != 1 {
		t.Fatalf("expected case-insensitive extension match to group, got %d", len(res.Sequences))
	}
	if res.Sequences[0].Ext != "exr" {
		t.Fatalf("expected ext normalized to lowercase, got %q", res.Sequences[0].Ext)
	}
}
