package frameidx

// reconstructPTS fabricates PTS for MPEG-1/2, VC-1 and WMV3 streams that
// carry only DTS: it works from the assumption that the encoder delays an
// anchor picture's display by the count of consecutive following
// B-pictures, and marks leading pictures. frames is decode order and is
// mutated in place; incoming PTS values are the container's (normally
// unset).
func reconstructPTS(frames []VideoFrameInfo) {
	n := len(frames)
	if n == 0 {
		return
	}

	consecB := 0
	reordered := false
	for i := range frames {
		if frames[i].PictureType == PictureB {
			// B-pictures are output in the same order they are decoded.
			frames[i].PTS = frames[i].DTS
			consecB++
			reordered = true
			continue
		}
		// The current picture's DTS becomes the PTS of the last anchor.
		if i > consecB {
			frames[i-consecB-1].PTS = frames[i].DTS
		}
		consecB = 0
	}

	if !reordered || consecB == n {
		for i := range frames {
			frames[i].PTS = frames[i].DTS
		}
		return
	}

	// consecB now holds the trailing-B run; the anchor just before it is
	// the one picture the pull rule can never reach.
	resolveFlushAnchorPTS(frames, n-1-consecB)
	markLeadingPictures(frames)
}

// resolveFlushAnchorPTS settles the flush anchor: the last I/P picture,
// which only trailing B-pictures (if any) follow, so no later anchor ever
// pulled its PTS. A PTS it does carry is distrusted when it duplicates
// another record's PTS within the DTS range it still covers; an unset PTS
// is then estimated by extrapolating the stream's final DTS step.
func resolveFlushAnchorPTS(frames []VideoFrameInfo, flush int) {
	n := len(frames)
	if flush < 0 || flush >= n {
		return
	}
	lastPTS := frames[flush].PTS
	if lastPTS != UnsetTimestamp {
		for j := n - 1; j >= 0 && lastPTS >= frames[j].DTS; j-- {
			if j != flush && frames[j].PTS == lastPTS {
				lastPTS = UnsetTimestamp
				break
			}
		}
	}
	if lastPTS == UnsetTimestamp {
		if n >= 2 {
			lastPTS = frames[n-1].DTS + (frames[n-1].DTS - frames[n-2].DTS)
		} else {
			lastPTS = frames[flush].DTS
		}
	}
	frames[flush].PTS = lastPTS
}

// markLeadingPictures walks frames in decode order and flags any picture
// whose PTS precedes the most recently decoded keyframe's PTS: it follows
// that keyframe in decode order but precedes it in display order (it
// references the prior GOP), and is discardable on seek.
func markLeadingPictures(frames []VideoFrameInfo) {
	haveKey := false
	var lastKeyPTS int64
	for i := range frames {
		if frames[i].PTS != UnsetTimestamp && haveKey && frames[i].PTS < lastKeyPTS {
			frames[i].IsLeading = true
		}
		if frames[i].Keyframe {
			haveKey = true
			lastKeyPTS = frames[i].PTS
		}
	}
}

// presentationIndices returns decode-order indices sorted by PTS ascending,
// ties broken by original decode order (stable).
func presentationIndices(frames []VideoFrameInfo) []int {
	order := make([]int, len(frames))
	for i := range order {
		order[i] = i
	}
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && frames[order[j]].PTS < frames[order[j-1]].PTS {
			order[j], order[j-1] = order[j-1], order[j]
			j--
		}
	}
	return order
}
