package frameidx

// PictureType enumerates the picture types a parser probe or index file can
// carry for a video packet. UnknownPicture is a legitimate, permitted value.
type PictureType byte

const (
	UnknownPicture PictureType = iota
	PictureI
	PictureP
	PictureB
	PictureBI
	PictureS
	PictureSI
	PictureSP
)

func (p PictureType) String() string {
	switch p {
	case PictureI:
		return "I"
	case PictureP:
		return "P"
	case PictureB:
		return "B"
	case PictureBI:
		return "BI"
	case PictureS:
		return "S"
	case PictureSI:
		return "SI"
	case PictureSP:
		return "SP"
	default:
		return "unknown"
	}
}

func parsePictureType(s string) PictureType {
	switch s {
	case "I":
		return PictureI
	case "P":
		return PictureP
	case "B":
		return PictureB
	case "BI":
		return PictureBI
	case "S":
		return PictureS
	case "SI":
		return PictureSI
	case "SP":
		return PictureSP
	default:
		return UnknownPicture
	}
}

// UnsetTimestamp is the sentinel used for an absent PTS/DTS (-2^62, not the
// minimum int64); it is written to and read back from the index file as-is.
const UnsetTimestamp = int64(-1) << 62

// UnsetOffset marks an unknown byte offset.
const UnsetOffset = int64(-1)

// SeekFlag is a bitmask of the candidate (and finally decided) seek axes for
// a stream, built up by the Seek-Method Decider.
type SeekFlag uint8

const (
	SeekPTS SeekFlag = 1 << iota
	SeekDTS
	SeekPOS
	SeekPOSCorrection
	SeekPTSGenerated
)

func (f SeekFlag) Has(bit SeekFlag) bool { return f&bit != 0 }

func (f SeekFlag) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		bit  SeekFlag
		name string
	}{
		{SeekPTS, "pts"},
		{SeekDTS, "dts"},
		{SeekPOS, "pos"},
		{SeekPOSCorrection, "pos-correction"},
		{SeekPTSGenerated, "pts-generated"},
	}
	out := ""
	for _, n := range names {
		if !f.Has(n.bit) {
			continue
		}
		if out != "" {
			out += "+"
		}
		out += n.name
	}
	return out
}

// VideoFrameInfo is one decode-order video packet record.
type VideoFrameInfo struct {
	PTS            int64
	DTS            int64
	FileOffset     int64 // -1 if unknown
	SampleNumber   int   // original decode index, identity during sorting
	ExtradataIndex int
	PictureType    PictureType
	Keyframe       bool
	IsLeading      bool
}

// AudioFrameInfo is one decode-order audio packet record.
type AudioFrameInfo struct {
	PTS            int64
	DTS            int64
	FileOffset     int64
	SampleNumber   int
	ExtradataIndex int
	SampleRate     int
	Length         int64 // samples produced; -1 if indeterminate
	Keyframe       bool
}

// VideoAttributes holds the decoded parameter-set attributes for a video
// extradata entry. Filled lazily: a zero field is overwritten the next time a
// packet on the codec context has a non-zero value for it.
type VideoAttributes struct {
	CodecID    string
	CodecTag   uint32
	Width      int
	Height     int
	PixelFormat string
}

// AudioAttributes holds the decoded parameter-set attributes for an audio
// extradata entry.
type AudioAttributes struct {
	CodecID       string
	CodecTag      uint32
	ChannelLayout uint64
	SampleRate    int
	SampleFormat  string
	BitsPerSample int
	BlockAlign    int
}

// ExtradataEntry is one distinct parameter-set blob observed on a stream,
// deduplicated by byte equality, plus its decoded attributes.
type ExtradataEntry struct {
	Blob  []byte
	Video VideoAttributes
	Audio AudioAttributes
}

// ContainerInfo is the container-wide bag of facts gathered during a scan.
type ContainerInfo struct {
	FormatName    string
	FormatFlags   uint32
	VideoStreamID int
	AudioStreamID int
	AVGap         int64 // output-audio samples
	Threads       int
}
