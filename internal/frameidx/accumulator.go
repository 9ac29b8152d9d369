package frameidx

// accumulator grows the elected
// video/audio stream's record arrays and implements stream election (first
// eligible or forced, and for video, replacement by a higher-resolution
// stream).
type accumulator struct {
	video []VideoFrameInfo
	audio []AudioFrameInfo

	videoStreamID int // -1 until elected
	audioStreamID int

	maxWidth, maxHeight int

	videoForced  bool
	forcedVideoID int
	audioForced  bool
	forcedAudioID int

	dvInAVI bool
}

func newAccumulator(forcedVideoID, forcedAudioID int) *accumulator {
	a := &accumulator{videoStreamID: -1, audioStreamID: -1}
	if forcedVideoID >= 0 {
		a.videoForced = true
		a.forcedVideoID = forcedVideoID
		a.videoStreamID = forcedVideoID
	}
	if forcedAudioID >= 0 {
		a.audioForced = true
		a.forcedAudioID = forcedAudioID
		a.audioStreamID = forcedAudioID
	}
	return a
}

// considerVideoStream runs the election rule for a video packet arriving on
// streamID with the given pixel dimensions and DVVIDEO-ness. It returns
// whether this packet should be appended to the elected stream's records.
func (a *accumulator) considerVideoStream(streamID int, width, height int, isDVVideo bool) bool {
	if isDVVideo && a.videoStreamID < 0 && !a.videoForced {
		// DV-in-AVI Type-1: the first DVVIDEO packet seen elects the stream
		// outright, ahead of the ordinary first-video-stream rule.
		a.videoStreamID = streamID
		a.dvInAVI = true
		a.maxWidth, a.maxHeight = width, height
		return true
	}

	if a.videoForced {
		return streamID == a.forcedVideoID
	}

	if a.videoStreamID < 0 {
		a.videoStreamID = streamID
		a.maxWidth, a.maxHeight = width, height
		return true
	}

	if streamID == a.videoStreamID {
		if width*height > a.maxWidth*a.maxHeight {
			a.maxWidth, a.maxHeight = width, height
		}
		return true
	}

	// A later stream with strictly higher pixel count replaces the election;
	// the reset wipes every record accumulated so far.
	if width*height > a.maxWidth*a.maxHeight {
		a.videoStreamID = streamID
		a.maxWidth, a.maxHeight = width, height
		a.video = a.video[:0]
		return true
	}
	return false
}

// considerAudioStream is the audio analogue: first-seen wins, no resolution
// replacement.
func (a *accumulator) considerAudioStream(streamID int) bool {
	if a.audioForced {
		return streamID == a.forcedAudioID
	}
	if a.audioStreamID < 0 {
		a.audioStreamID = streamID
		return true
	}
	return streamID == a.audioStreamID
}

func (a *accumulator) appendVideo(rec VideoFrameInfo) {
	rec.SampleNumber = len(a.video) + 1
	a.video = append(a.video, rec)
}

func (a *accumulator) appendAudio(rec AudioFrameInfo) {
	rec.SampleNumber = len(a.audio) + 1
	a.audio = append(a.audio, rec)
}

// synthesizeAudioFromVideo builds 1:1 audio records from the video records,
// used for DV-in-AVI containers with no built-in audio index.
func (a *accumulator) synthesizeAudioFromVideo() {
	a.audio = a.audio[:0]
	for _, v := range a.video {
		a.audio = append(a.audio, AudioFrameInfo{
			PTS:            v.PTS,
			DTS:            v.DTS,
			FileOffset:     v.FileOffset,
			SampleNumber:   v.SampleNumber,
			ExtradataIndex: v.ExtradataIndex,
			Keyframe:       v.Keyframe,
			Length:         -1,
		})
	}
}
