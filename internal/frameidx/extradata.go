package frameidx

import "bytes"

// extradataSplitter is the subset of a codec parser's surface the Extradata
// Tracker needs: a way to find a leading parameter block inside a packet's
// payload, and the codec context's current extradata (used when neither a
// side-datum nor a split result is available).
type extradataSplitter interface {
	// splits reports whether split is a real operation for this codec; a
	// splitter without one only supplies the codec context's extradata, and
	// the tracker's keyframe-correction rule does not apply to it.
	splits() bool
	// split returns the leading parameter-set prefix of data, or nil if none
	// is found at the start of the payload.
	split(data []byte) []byte
	// currentExtradata returns the codec context's extradata pointer.
	currentExtradata() []byte
}

// contextSplitter is the splitter for codecs whose parser exposes no split
// operation: the candidate blob is always the codec context's extradata.
type contextSplitter struct{ extradata []byte }

func (c contextSplitter) splits() bool            { return false }
func (c contextSplitter) split([]byte) []byte     { return nil }
func (c contextSplitter) currentExtradata() []byte { return c.extradata }

// extradataTracker is the per-stream Extradata Tracker: an ordered,
// deduplicated list of distinct parameter blobs plus a cursor onto the one
// in force.
type extradataTracker struct {
	entries      []ExtradataEntry
	currentIndex int
}

func newExtradataTracker() *extradataTracker {
	return &extradataTracker{currentIndex: -1}
}

// appendIfNew returns the index of the parameter set in force for packet
// pkt, appending a new entry when the observed blob is distinct. It may
// clear pkt.Key when a keyframe's SPS/PPS do not actually precede it.
func (t *extradataTracker) appendIfNew(pkt *Packet, splitter extradataSplitter) int {
	if !pkt.Key && len(t.entries) > 0 {
		return t.currentIndex
	}

	var blob []byte
	if sd, ok := pkt.sideData(SideDataNewExtradata); ok {
		blob = sd
	} else if splitter != nil && splitter.splits() {
		if candidate := splitter.split(pkt.Data); len(candidate) > 0 {
			blob = candidate
		} else if len(t.entries) > 0 {
			// An IDR whose SPS/PPS do not precede it is not actually
			// decodable from here.
			pkt.Key = false
			return t.currentIndex
		} else {
			blob = splitter.currentExtradata()
		}
	} else if splitter != nil {
		blob = splitter.currentExtradata()
	}

	if len(t.entries) == 0 {
		t.entries = append(t.entries, ExtradataEntry{Blob: blob})
		t.currentIndex = 0
		return 0
	}

	if bytes.Equal(blob, t.entries[t.currentIndex].Blob) {
		return t.currentIndex
	}
	for i, e := range t.entries {
		if bytes.Equal(blob, e.Blob) {
			t.currentIndex = i
			return i
		}
	}
	t.entries = append(t.entries, ExtradataEntry{Blob: blob})
	t.currentIndex = len(t.entries) - 1
	return t.currentIndex
}

// fillVideoAttributes fills any still-zero scalar on entries[idx].Video from
// the codec context's present values; attributes are lazily discovered
// because they may only become known after the parser has seen a payload.
func (t *extradataTracker) fillVideoAttributes(idx int, attrs VideoAttributes) {
	e := &t.entries[idx].Video
	if e.CodecID == "" {
		e.CodecID = attrs.CodecID
	}
	if e.CodecTag == 0 {
		e.CodecTag = attrs.CodecTag
	}
	if e.Width == 0 {
		e.Width = attrs.Width
	}
	if e.Height == 0 {
		e.Height = attrs.Height
	}
	if e.PixelFormat == "" {
		e.PixelFormat = attrs.PixelFormat
	}
}

// fillAudioAttributes is the audio analogue of fillVideoAttributes.
func (t *extradataTracker) fillAudioAttributes(idx int, attrs AudioAttributes) {
	e := &t.entries[idx].Audio
	if e.CodecID == "" {
		e.CodecID = attrs.CodecID
	}
	if e.CodecTag == 0 {
		e.CodecTag = attrs.CodecTag
	}
	if e.ChannelLayout == 0 {
		e.ChannelLayout = attrs.ChannelLayout
	}
	if e.SampleRate == 0 {
		e.SampleRate = attrs.SampleRate
	}
	if e.SampleFormat == "" {
		e.SampleFormat = attrs.SampleFormat
	}
	if e.BitsPerSample == 0 {
		e.BitsPerSample = attrs.BitsPerSample
	}
	if e.BlockAlign == 0 {
		e.BlockAlign = attrs.BlockAlign
	}
}
