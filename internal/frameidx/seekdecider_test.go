package frameidx

import "testing"

func TestDecideVideoSeekMethodAllAxesTrusted(t *testing.T) {
	frames := []VideoFrameInfo{
		{PTS: 0, DTS: 0, FileOffset: 0, Keyframe: true},
		{PTS: 1, DTS: 1, FileOffset: 100, Keyframe: false},
		{PTS: 2, DTS: 2, FileOffset: 200, Keyframe: false},
	}
	res := decideVideoSeekMethod(frames, "mp4", true, CodecH264)
	if !res.Flags.Has(SeekPTS) || !res.Flags.Has(SeekDTS) || !res.Flags.Has(SeekPOSCorrection) {
		t.Fatalf("expected all three axes trusted, got %v", res.Flags)
	}
	if res.OrderConverter != nil {
		t.Fatalf("expected no reorder for monotonic PTS")
	}
}

func TestDecideVideoSeekMethodUnsetPTSFallsBackToDTS(t *testing.T) {
	frames := []VideoFrameInfo{
		{PTS: UnsetTimestamp, DTS: 0, FileOffset: UnsetOffset, Keyframe: true},
		{PTS: UnsetTimestamp, DTS: 1, FileOffset: UnsetOffset, Keyframe: false},
	}
	res := decideVideoSeekMethod(frames, "avi", false, CodecOther)
	if res.Flags.Has(SeekPTS) {
		t.Fatalf("CodecOther should not trigger PTS reconstruction")
	}
	if !res.Flags.Has(SeekDTS) {
		t.Fatalf("expected DTS axis trusted")
	}
}

func TestDecideVideoSeekMethodReconstructsPTSForReorderCapableCodec(t *testing.T) {
	// IBBP in decode order, DTS 0..3; PTS entirely unset so the decider must
	// fall back to reconstruction for an MPEG-2-class codec.
	frames := []VideoFrameInfo{
		{PTS: UnsetTimestamp, DTS: 0, PictureType: PictureI, Keyframe: true, FileOffset: UnsetOffset},
		{PTS: UnsetTimestamp, DTS: 1, PictureType: PictureB, FileOffset: UnsetOffset},
		{PTS: UnsetTimestamp, DTS: 2, PictureType: PictureB, FileOffset: UnsetOffset},
		{PTS: UnsetTimestamp, DTS: 3, PictureType: PictureP, FileOffset: UnsetOffset},
	}
	res := decideVideoSeekMethod(frames, "mpegts", false, CodecMPEG2Video)
	if !res.Flags.Has(SeekPTS) || !res.Flags.Has(SeekPTSGenerated) {
		t.Fatalf("expected generated PTS flag, got %v", res.Flags)
	}
	// Presentation order must be a strictly increasing PTS sequence.
	for i := 1; i < len(res.Frames); i++ {
		if res.Frames[i].PTS < res.Frames[i-1].PTS {
			t.Fatalf("presentation order not sorted by PTS: %+v", res.Frames)
		}
	}
}

func TestDecideAudioSeekMethodSelfSyncingWhenNoAxisSurvives(t *testing.T) {
	frames := []AudioFrameInfo{
		{PTS: UnsetTimestamp, DTS: UnsetTimestamp, FileOffset: UnsetOffset},
		{PTS: UnsetTimestamp, DTS: UnsetTimestamp, FileOffset: UnsetOffset},
	}
	res := decideAudioSeekMethod(frames, false)
	for i, k := range res.KeyframeList {
		if !k {
			t.Fatalf("expected audio frame %d to be presumed self-syncing", i)
		}
	}
}

func TestKeyframeUniquenessPassDropsDuplicateAxisValues(t *testing.T) {
	frames := []VideoFrameInfo{
		{PTS: 5, DTS: 5, Keyframe: true},
		{PTS: 5, DTS: 5, Keyframe: true},
		{PTS: 6, DTS: 6, Keyframe: true},
	}
	list := keyframeUniquenessPass(frames, axisPTS)
	if list[0] || list[1] {
		t.Fatalf("expected both duplicate-PTS keyframes cleared, got %v", list)
	}
	if !list[2] {
		t.Fatalf("expected unique-PTS keyframe to remain set")
	}
}
