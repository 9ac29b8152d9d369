package frameidx

// VideoSeekResult is the outcome of deciding a video stream's seek method:
// the final flag set, the rebuilt (possibly reordered) frame list, the
// decode-order keyframe list, and the order_converter when reordering was
// observed.
type VideoSeekResult struct {
	Flags          SeekFlag
	Frames         []VideoFrameInfo // decode order unless reordered below
	KeyframeList   []bool           // indexed by decode order
	OrderConverter []int            // decode_index -> presentation_index, 1-origin; nil if absent
}

// decideVideoSeekMethod classifies a video stream into its seek regime.
// frames is mutated in place (decode order) except that, when reordering is
// observed, the returned Frames slice is presentation-order while
// KeyframeList and OrderConverter stay anchored to decode order.
func decideVideoSeekMethod(frames []VideoFrameInfo, format string, byteSeekable bool, codec CodecKind) VideoSeekResult {
	n := len(frames)
	flags := SeekPTS | SeekDTS | SeekPOSCorrection
	if format == "mpeg" || format == "mpegts" {
		flags |= SeekPOS
	}

	if anyUnset(frames, func(f VideoFrameInfo) int64 { return f.PTS }) {
		flags &^= SeekPTS
	}
	if n == 0 || frames[0].DTS == UnsetTimestamp || !strictlyIncreasing(frames, func(f VideoFrameInfo) int64 { return f.DTS }) {
		flags &^= SeekDTS
	}
	if n == 0 || frames[0].FileOffset == UnsetOffset || !strictlyIncreasing(frames, func(f VideoFrameInfo) int64 { return f.FileOffset }) {
		flags &^= SeekPOSCorrection
	}
	if !byteSeekable || allUnsetOffset(frames) {
		flags &^= SeekPOS
	}

	if !flags.Has(SeekPTS) && flags.Has(SeekDTS) && codec.reorderCapable() {
		reconstructPTS(frames)
		flags |= SeekPTS | SeekPTSGenerated
	}

	var orderConverter []int
	if flags.Has(SeekPTS) && hasReorder(frames) {
		orderConverter = buildOrderConverter(frames)
	} else if !flags.Has(SeekPTS) && flags.Has(SeekDTS) {
		for i := range frames {
			frames[i].PTS = frames[i].DTS
		}
	}

	axis := trustedAxis(flags)
	keyframeList := keyframeUniquenessPass(frames, axis)
	for i := range frames {
		frames[i].Keyframe = keyframeList[i]
	}

	result := VideoSeekResult{
		Flags:          flags,
		KeyframeList:   keyframeList,
		OrderConverter: orderConverter,
	}
	if orderConverter != nil {
		result.Frames = presentationOrder(frames, orderConverter)
	} else {
		result.Frames = frames
	}
	return result
}

// AudioSeekResult mirrors VideoSeekResult without the reorder machinery;
// audio packets never reorder.
type AudioSeekResult struct {
	Flags        SeekFlag
	KeyframeList []bool
}

// decideAudioSeekMethod is the audio analogue of decideVideoSeekMethod.
func decideAudioSeekMethod(frames []AudioFrameInfo, byteSeekable bool) AudioSeekResult {
	n := len(frames)
	flags := SeekPTS | SeekDTS | SeekPOSCorrection

	if anyUnset(frames, func(f AudioFrameInfo) int64 { return f.PTS }) {
		flags &^= SeekPTS
	}
	if n == 0 || frames[0].DTS == UnsetTimestamp || !strictlyIncreasing(frames, func(f AudioFrameInfo) int64 { return f.DTS }) {
		flags &^= SeekDTS
	}
	if n == 0 || frames[0].FileOffset == UnsetOffset || !strictlyIncreasing(frames, func(f AudioFrameInfo) int64 { return f.FileOffset }) {
		flags &^= SeekPOSCorrection
	}
	if !byteSeekable || allUnsetOffsetAudio(frames) {
		flags &^= SeekPOS
	}

	if !flags.Has(SeekPTS) && flags.Has(SeekDTS) {
		for i := range frames {
			frames[i].PTS = frames[i].DTS
		}
		flags |= SeekPTS
	}

	axis := trustedAxis(flags)
	var keyframeList []bool
	if axis == axisNone {
		keyframeList = make([]bool, n)
		for i := range keyframeList {
			keyframeList[i] = true // audio is presumed self-syncing
		}
	} else {
		keyframeList = keyframeUniquenessPassAudio(frames, axis)
	}
	for i := range frames {
		frames[i].Keyframe = keyframeList[i]
	}

	return AudioSeekResult{Flags: flags, KeyframeList: keyframeList}
}

type seekAxis int

const (
	axisNone seekAxis = iota
	axisPOS
	axisPTS
	axisDTS
)

// trustedAxis picks the highest-priority surviving axis: POS > PTS > DTS.
func trustedAxis(flags SeekFlag) seekAxis {
	switch {
	case flags.Has(SeekPOSCorrection):
		return axisPOS
	case flags.Has(SeekPTS):
		return axisPTS
	case flags.Has(SeekDTS):
		return axisDTS
	default:
		return axisNone
	}
}

func anyUnset[T any](frames []T, get func(T) int64) bool {
	for _, f := range frames {
		if get(f) == UnsetTimestamp {
			return true
		}
	}
	return false
}

func strictlyIncreasing[T any](frames []T, get func(T) int64) bool {
	for i := 1; i < len(frames); i++ {
		v := get(frames[i])
		if v == UnsetTimestamp || v <= get(frames[i-1]) {
			return false
		}
	}
	return true
}

func allUnsetOffset(frames []VideoFrameInfo) bool {
	for _, f := range frames {
		if f.FileOffset != UnsetOffset {
			return false
		}
	}
	return true
}

func allUnsetOffsetAudio(frames []AudioFrameInfo) bool {
	for _, f := range frames {
		if f.FileOffset != UnsetOffset {
			return false
		}
	}
	return true
}

func hasReorder(frames []VideoFrameInfo) bool {
	for i := 1; i < len(frames); i++ {
		if frames[i].PTS < frames[i-1].PTS {
			return true
		}
	}
	return false
}

// buildOrderConverter sorts decode-order records by PTS ascending (ties
// broken by original decode index) and inverts the resulting presentation
// order back onto decode indices.
func buildOrderConverter(frames []VideoFrameInfo) []int {
	n := len(frames)
	presentation := make([]int, n)
	for i := range presentation {
		presentation[i] = i
	}
	// Stable insertion sort keeps this deterministic without importing
	// sort for what is, at index sizes this package deals with, a small
	// merge; ties keep original decode order (stable by construction).
	for i := 1; i < n; i++ {
		j := i
		for j > 0 && frames[presentation[j]].PTS < frames[presentation[j-1]].PTS {
			presentation[j], presentation[j-1] = presentation[j-1], presentation[j]
			j--
		}
	}
	orderConverter := make([]int, n+1) // 1-origin; slot 0 reserved
	for presIdx, decodeIdx := range presentation {
		orderConverter[decodeIdx+1] = presIdx + 1
	}
	return orderConverter
}

func presentationOrder(frames []VideoFrameInfo, orderConverter []int) []VideoFrameInfo {
	out := make([]VideoFrameInfo, len(frames))
	for decodeIdx, f := range frames {
		presIdx := orderConverter[decodeIdx+1]
		out[presIdx-1] = f
	}
	return out
}

// keyframeUniquenessPass clears keyframe status on consecutive decode-order
// records that share the same value on the trusted axis, and on any record
// whose axis value is unset.
func keyframeUniquenessPass(frames []VideoFrameInfo, axis seekAxis) []bool {
	n := len(frames)
	list := make([]bool, n)
	for i := range frames {
		list[i] = frames[i].Keyframe
	}
	if axis == axisNone {
		for i := range list {
			list[i] = false
		}
		return list
	}
	axisValue := func(i int) int64 {
		switch axis {
		case axisPOS:
			return frames[i].FileOffset
		case axisPTS:
			return frames[i].PTS
		default:
			return frames[i].DTS
		}
	}
	unsetValue := func(i int) bool {
		v := axisValue(i)
		return v == UnsetTimestamp || v == UnsetOffset
	}
	for i := range list {
		if unsetValue(i) {
			list[i] = false
		}
	}
	for i := 1; i < n; i++ {
		if list[i] && list[i-1] && axisValue(i) == axisValue(i-1) {
			list[i] = false
			list[i-1] = false
		}
	}
	return list
}

// keyframeUniquenessPassAudio starts from the self-syncing presumption
// (every audio packet decodable on its own) rather than the container's
// flags, which are not persisted for audio records, so a reopen reaches the
// same answer as the scan that wrote the file.
func keyframeUniquenessPassAudio(frames []AudioFrameInfo, axis seekAxis) []bool {
	n := len(frames)
	list := make([]bool, n)
	for i := range list {
		list[i] = true
	}
	axisValue := func(i int) int64 {
		switch axis {
		case axisPOS:
			return frames[i].FileOffset
		case axisPTS:
			return frames[i].PTS
		default:
			return frames[i].DTS
		}
	}
	unsetValue := func(i int) bool {
		v := axisValue(i)
		return v == UnsetTimestamp || v == UnsetOffset
	}
	for i := range list {
		if unsetValue(i) {
			list[i] = false
		}
	}
	for i := 1; i < n; i++ {
		if list[i] && list[i-1] && axisValue(i) == axisValue(i-1) {
			list[i] = false
			list[i-1] = false
		}
	}
	return list
}
