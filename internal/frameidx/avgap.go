package frameidx

// TimeBase is a num/den rational time base, ffmpeg-style.
type TimeBase struct {
	Num, Den int
}

// rescale converts a timestamp expressed in `from` units to `to` units,
// following the standard av_rescale_q cross-multiplication; both time bases
// must have a non-zero denominator.
func rescale(value int64, from, to TimeBase) int64 {
	if from.Den == 0 || to.Num == 0 {
		return value
	}
	num := int64(from.Num) * int64(to.Den)
	den := int64(from.Den) * int64(to.Num)
	if den == 0 {
		return value
	}
	return value * num / den
}

// computeAVGap returns, in output-sample units, the offset between the first
// video timestamp and the first usable audio timestamp.
// videoPTSBased/audioPTSBased say whether the
// elected stream's trusted timestamp basis is PTS (true) or DTS (false), per
// the seek-method decision. outputSampleRate is R.
func computeAVGap(
	video []VideoFrameInfo, videoTB TimeBase, videoPTSBased bool,
	audio []AudioFrameInfo, audioTB TimeBase, audioPTSBased bool,
	outputSampleRate int,
) int64 {
	if len(video) == 0 || len(audio) == 0 || outputSampleRate <= 0 {
		return 0
	}

	vt := video[0].DTS
	if videoPTSBased {
		vt = video[0].PTS
	}
	if vt == UnsetTimestamp {
		return 0
	}

	k := -1
	for i, a := range audio {
		ts := a.DTS
		if audioPTSBased {
			ts = a.PTS
		}
		if ts != UnsetTimestamp {
			k = i
			break
		}
	}
	if k < 0 {
		return 0
	}

	at := audio[k].DTS
	if audioPTSBased {
		at = audio[k].PTS
	}

	outputTB := TimeBase{Num: 1, Den: outputSampleRate}
	if k > 0 {
		// Each indeterminate-length record defers its samples to a later
		// record, so it widens the subtraction window by one instead of
		// contributing a duration of its own.
		delayWindow := 0
		for i := 0; i < k+delayWindow && i < len(audio); i++ {
			if audio[i].Length < 0 {
				delayWindow++
				continue
			}
			at -= rescale(audio[i].Length, outputTB, audioTB)
		}
	}

	return rescale(at, audioTB, outputTB) - rescale(vt, videoTB, outputTB)
}
