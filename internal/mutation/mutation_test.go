package mutation

import "testing"

func TestDetectAddedFramesAlwaysMutate(t *testing.T) {
	cfg := Config{TreatAddedFramesAsMutation: true}
	res := Detect(
		map[string]string{"shot.0001.exr": "aa"},
		map[string]string{"shot.0001.exr": "aa", "shot.0002.exr": "bb"},
		cfg,
	)
	if !res.Mutated {
		t.Fatal("expected added frame to trigger mutation")
	}
	if len(res.AddedFrames) != 1 || res.AddedFrames[0] != "shot.0002.exr" {
		t.Fatalf("unexpected added frames: %v", res.AddedFrames)
	}
}

func TestDetectBelowThresholdDoesNotMutate(t *testing.T) {
	cfg := Config{ThresholdFrames: 3}
	res := Detect(
		map[string]string{"a": "1", "b": "2"},
		map[string]string{"a": "1x", "b": "2"},
		cfg,
	)
	if res.Mutated {
		t.Fatal("expected single changed frame below threshold to not mutate")
	}
	if len(res.ChangedFrames) != 1 {
		t.Fatalf("expected one changed frame, got %v", res.ChangedFrames)
	}
}

func TestDetectPercentThreshold(t *testing.T) {
	cfg := Config{ThresholdPercent: 50}
	res := Detect(
		map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"},
		map[string]string{"a": "1x", "b": "2x", "c": "3", "d": "4"},
		cfg,
	)
	if !res.Mutated {
		t.Fatal("expected 50% changed frames to meet the percent threshold")
	}
}

func TestDetectRemovedFramesCountedOnlyWhenConfigured(t *testing.T) {
	prev := map[string]string{"a": "1", "b": "2", "c": "3"}
	curr := map[string]string{"a": "1"}

	res := Detect(prev, curr, Config{ThresholdFrames: 2, CountRemovedFrames: false})
	if res.Mutated {
		t.Fatal("expected removed frames to be ignored when not configured")
	}

	res2 := Detect(prev, curr, Config{ThresholdFrames: 2, CountRemovedFrames: true})
	if !res2.Mutated {
		t.Fatal("expected removed frames counted toward threshold")
	}
}

func TestSummarizeFrameSpans(t *testing.T) {
	got := SummarizeFrameSpans([]string{"0001", "0002", "0003", "0010"})
	want := "0001-0003, 0010"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSummarizeFrameSpansEmpty(t *testing.T) {
	if got := SummarizeFrameSpans(nil); got != "" {
		t.Fatalf("expected empty string for no frames, got %q", got)
	}
}

func TestSummarizeFrameSpansNonNumeric(t *testing.T) {
	got := SummarizeFrameSpans([]string{"foo", "bar"})
	want := "foo, bar"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
