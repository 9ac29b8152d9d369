package frameidx

import "testing"

func TestAccumulatorElectsFirstVideoStream(t *testing.T) {
	a := newAccumulator(-1, -1)
	if !a.considerVideoStream(0, 640, 480, false) {
		t.Fatalf("expected first video stream to be accepted")
	}
	if a.videoStreamID != 0 {
		t.Fatalf("expected stream 0 elected, got %d", a.videoStreamID)
	}
	if a.considerVideoStream(1, 320, 240, false) {
		t.Fatalf("a lower-resolution later stream must not replace the election")
	}
}

func TestAccumulatorReplacesOnHigherResolution(t *testing.T) {
	a := newAccumulator(-1, -1)
	a.considerVideoStream(0, 640, 480, false)
	a.appendVideo(VideoFrameInfo{PTS: 1})
	if !a.considerVideoStream(1, 1920, 1080, false) {
		t.Fatalf("expected the higher-resolution stream to replace the election")
	}
	if a.videoStreamID != 1 {
		t.Fatalf("expected stream 1 elected after replacement, got %d", a.videoStreamID)
	}
	if len(a.video) != 0 {
		t.Fatalf("expected prior stream's records wiped on replacement, got %d", len(a.video))
	}
}

func TestAccumulatorForcedVideoStreamIgnoresOthers(t *testing.T) {
	a := newAccumulator(2, -1)
	if a.considerVideoStream(0, 1920, 1080, false) {
		t.Fatalf("forced election must reject non-forced streams even at higher resolution")
	}
	if !a.considerVideoStream(2, 320, 240, false) {
		t.Fatalf("forced stream must always be accepted")
	}
}

func TestAccumulatorDVInAVIElectsFirstDVPacket(t *testing.T) {
	a := newAccumulator(-1, -1)
	if !a.considerVideoStream(0, 720, 480, true) {
		t.Fatalf("expected DV video packet to be accepted")
	}
	if !a.dvInAVI {
		t.Fatalf("expected dvInAVI to be set")
	}
}

func TestSynthesizeAudioFromVideoProducesOneToOneRecords(t *testing.T) {
	a := newAccumulator(-1, -1)
	a.appendVideo(VideoFrameInfo{PTS: 0, DTS: 0, Keyframe: true})
	a.appendVideo(VideoFrameInfo{PTS: 1, DTS: 1})
	a.synthesizeAudioFromVideo()
	if len(a.audio) != 2 {
		t.Fatalf("expected 2 synthesized audio records, got %d", len(a.audio))
	}
	if a.audio[0].Length != -1 {
		t.Fatalf("expected synthesized audio length to be indeterminate")
	}
}
