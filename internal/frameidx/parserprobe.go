package frameidx

import (
	"github.com/go-audio/audio"
)

// VideoDecoder is the external single-frame decoder the Parser Probe invokes
// to disambiguate a picture type the parser itself refuses, and to prime
// ASF-wrapped VC-1/WMV3 streams with their sequence header. It is not used to
// probe pixel format: DecodeOne reports only whether a picture was produced
// and its type. Decoding pixels is out of scope for this package; this is a
// narrow escape hatch.
type VideoDecoder interface {
	// DecodeOne feeds one packet and reports whether a picture was produced
	// and, if so, its type. A false produced with a nil error means the
	// decoder needs another feed (e.g. a flush) before it yields anything.
	DecodeOne(pkt Packet) (produced bool, pictureType PictureType, err error)
	// Flush feeds a null packet to drain a pending picture.
	Flush() (produced bool, pictureType PictureType)
}

// AudioDecoder is the analogous escape hatch for audio frame-length
// derivation when the parser exposes neither a duration nor a delay-free
// nominal frame size.
type AudioDecoder interface {
	DecodeOne(pkt Packet) (*audio.IntBuffer, error)
}

// parserProbe is the per-stream picture-type and frame-length facility: it wraps a codec parser
// (modeled here as the splitter/picture-type functions for the codec kind)
// plus, when needed, a one-packet decode to obtain picture type or audio
// frame length.
type parserProbe struct {
	stream StreamParams

	// owned-parser state for VC-1/WMV3 in ASF wrappers: primed once with
	// the sequence header EBDU before the first packet.
	primed bool

	// vc1Interlace is read from the sequence header in the stream's
	// extradata so frame-BDU parsing knows whether an FCM field precedes
	// PTYPE.
	vc1Interlace bool

	videoDecoder VideoDecoder
	audioDecoder AudioDecoder

	// delayCount tracks outstanding decoder delay for the audio decode-probe
	// path; disabled latches true once the stream has desynchronised.
	delayCount int
	disabled   bool
}

func newParserProbe(stream StreamParams, vdec VideoDecoder, adec AudioDecoder) *parserProbe {
	p := &parserProbe{stream: stream, videoDecoder: vdec, audioDecoder: adec}
	if stream.Codec == CodecVC1 || stream.Codec == CodecWMV3 {
		if seq := parseVC1SequenceHeader(stream.Extradata); seq.ok {
			p.vc1Interlace = seq.Interlace
		}
	}
	return p
}

// wrappedPayload returns the payload to feed the parser/decoder: EBDU-wrapped
// for ASF VC-1/WMV3, priming the sequence header exactly once, or the raw
// payload otherwise.
func (p *parserProbe) wrappedPayload(pkt *Packet) []byte {
	if !p.stream.ASFWrapped || (p.stream.Codec != CodecVC1 && p.stream.Codec != CodecWMV3) {
		return pkt.Data
	}
	isWMV3 := p.stream.Codec == CodecWMV3
	if !p.primed {
		p.primed = true
		if p.videoDecoder != nil {
			seqHeader := wrapSequenceHeaderEBDU(p.stream.Extradata)
			_, _, _ = p.videoDecoder.DecodeOne(Packet{
				StreamIndex: p.stream.Index,
				PTS:         UnsetTimestamp,
				DTS:         UnsetTimestamp,
				Pos:         UnsetOffset,
				Data:        seqHeader,
			})
		}
	}
	return wrapFrameEBDU(pkt.Data, isWMV3)
}

// derivePictureType resolves a video packet's picture type, including the
// keyframe-correction decode-probe for MPEG-1/2 and VC-1/WMV3.
func (p *parserProbe) derivePictureType(pkt *Packet) PictureType {
	payload := p.wrappedPayload(pkt)

	var pict PictureType
	var ok bool
	switch p.stream.Codec {
	case CodecH264:
		pict, ok = h264PictureType(payload)
	case CodecMPEG1Video, CodecMPEG2Video:
		pict, ok = mpeg2PictureType(payload)
	case CodecVC1:
		pict, ok = vc1FramePictureType(payload, p.vc1Interlace)
	case CodecWMV3:
		// WMV3 simple/main profile picture headers depend on sequence-layer
		// state this package does not model; the one-frame decode below is
		// the only reliable source.
		ok = false
	default:
		ok = false
	}
	if !ok {
		pict = UnknownPicture
	}

	reorderCapable := p.stream.Codec.reorderCapable()
	if reorderCapable && pkt.Key && pict != PictureI && p.videoDecoder != nil {
		decodePkt := *pkt
		decodePkt.Data = payload // EBDU-wrapped for VC-1/WMV3
		produced, decodedType, err := p.videoDecoder.DecodeOne(decodePkt)
		if err == nil && !produced {
			produced, decodedType = p.videoDecoder.Flush()
		}
		if err == nil {
			finalIsI := decodedType == PictureI
			if p.stream.Codec == CodecVC1 || p.stream.Codec == CodecWMV3 {
				finalIsI = vc1PictureIsI(decodedType)
			}
			if produced && !finalIsI {
				// Corrects containers that over-flag keyframes, and the
				// known VC-1 quirk rejecting BI as the first frame.
				pkt.Key = false
			}
			if produced {
				pict = decodedType
			}
		}
	}

	return pict
}

// deriveAudioLength derives how many samples pkt produces. The parser's
// reported duration wins; a fixed-frame codec's nominal frame size is used
// while no decoder delay is outstanding; otherwise a one-packet decode-probe
// resolves it. A probe that yields nothing leaves the length indeterminate
// and counts one more frame of outstanding delay, reconciled after EOF by
// drainAudioDelay. parserDuration<0 means "none reported".
func (p *parserProbe) deriveAudioLength(pkt Packet, parserDuration int64, nominalFrameSize int) int64 {
	if parserDuration >= 0 {
		return parserDuration
	}
	if p.delayCount == 0 && nominalFrameSize > 0 {
		return int64(nominalFrameSize)
	}
	if p.audioDecoder == nil {
		return -1
	}
	if p.disabled {
		return -1
	}
	buf, err := p.audioDecoder.DecodeOne(pkt)
	if err != nil {
		// The parser/decoder pair has desynchronised on this stream; stop
		// probing it for good and keep indexing.
		p.disabled = true
		return -1
	}
	if buf == nil || len(buf.Data) == 0 {
		p.delayCount++
		return -1
	}
	return samplesInBuffer(buf)
}

// drainAudioDelay flushes the decoder after EOF: each outstanding delayed
// frame yields the sample count for one synthetic record, so the indexed
// frame count reconciles with the total decoded sample count.
func (p *parserProbe) drainAudioDelay() []int64 {
	if p.audioDecoder == nil || p.disabled {
		return nil
	}
	var lengths []int64
	for p.delayCount > 0 {
		buf, err := p.audioDecoder.DecodeOne(Packet{
			StreamIndex: p.stream.Index,
			PTS:         UnsetTimestamp,
			DTS:         UnsetTimestamp,
			Pos:         UnsetOffset,
		})
		if err != nil || buf == nil || len(buf.Data) == 0 {
			break
		}
		lengths = append(lengths, samplesInBuffer(buf))
		p.delayCount--
	}
	return lengths
}

func samplesInBuffer(buf *audio.IntBuffer) int64 {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	return int64(len(buf.Data) / channels)
}
