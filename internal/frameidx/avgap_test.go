package frameidx

import "testing"

func TestComputeAVGapSameTimeBaseNoDelay(t *testing.T) {
	video := []VideoFrameInfo{{PTS: 0}, {PTS: 1}}
	audio := []AudioFrameInfo{{PTS: 0, Length: 1024}, {PTS: 1024, Length: 1024}}
	tb := TimeBase{Num: 1, Den: 48000}
	gap := computeAVGap(video, tb, true, audio, tb, true, 48000)
	if gap != 0 {
		t.Fatalf("expected zero gap for synchronized streams, got %d", gap)
	}
}

func TestComputeAVGapSkipsLeadingUnknownLengthAudio(t *testing.T) {
	video := []VideoFrameInfo{{PTS: 0}}
	audio := []AudioFrameInfo{
		{PTS: UnsetTimestamp, Length: -1},
		{PTS: 2048, Length: 1024},
	}
	tb := TimeBase{Num: 1, Den: 48000}
	gap := computeAVGap(video, tb, true, audio, tb, true, 48000)
	if gap <= 0 {
		t.Fatalf("expected a positive gap once the first timestamped audio record is found, got %d", gap)
	}
}

func TestComputeAVGapDelayExtendsSubtractionWindow(t *testing.T) {
	// The indeterminate-length record before the first timestamped frame
	// defers its samples to a later record, so the subtraction window must
	// grow past that frame to cover the compensating record.
	video := []VideoFrameInfo{{PTS: 0}}
	audio := []AudioFrameInfo{
		{PTS: UnsetTimestamp, Length: -1},
		{PTS: 3072, Length: 1024},
		{PTS: 4096, Length: 1024},
	}
	tb := TimeBase{Num: 1, Den: 48000}
	gap := computeAVGap(video, tb, true, audio, tb, true, 48000)
	if gap != 2048 {
		t.Fatalf("expected the widened window to subtract the compensating record (gap 2048), got %d", gap)
	}
}

func TestComputeAVGapEmptyStreamsYieldsZero(t *testing.T) {
	if gap := computeAVGap(nil, TimeBase{}, true, nil, TimeBase{}, true, 48000); gap != 0 {
		t.Fatalf("expected zero gap with no frames, got %d", gap)
	}
}

func TestRescaleCrossesTimeBases(t *testing.T) {
	got := rescale(48000, TimeBase{Num: 1, Den: 48000}, TimeBase{Num: 1, Den: 1})
	if got != 1 {
		t.Fatalf("expected 48000 samples at 48kHz to rescale to 1 second, got %d", got)
	}
}
