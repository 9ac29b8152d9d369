package frameidx

import (
	"github.com/bluenviron/mediacommon/pkg/codecs/h264"
)

// h264NALUs splits an Annex-B payload into NAL units using mediacommon's
// parser, falling back to an empty slice on malformed input rather than
// erroring; a probe is advisory, never fatal.
func h264NALUs(payload []byte) [][]byte {
	aus, err := h264.AnnexBUnmarshal(payload)
	if err != nil {
		return nil
	}
	return aus
}

// h264PictureType derives the picture type of a video packet from its first
// slice NAL: IDR (type 5) is always I; otherwise decode slice_type from the
// slice header's Exp-Golomb fields.
func h264PictureType(payload []byte) (PictureType, bool) {
	for _, nal := range h264NALUs(payload) {
		if len(nal) == 0 {
			continue
		}
		nalType := nal[0] & 0x1F
		switch nalType {
		case 5:
			return PictureI, true
		case 1:
			rbsp := nalToRBSP(nal)
			if len(rbsp) == 0 {
				return PictureP, true
			}
			br := newBitReader(rbsp)
			br.readUE() // first_mb_in_slice
			sliceType, ok := br.readUEWithOk()
			if !ok {
				return PictureP, true
			}
			switch sliceType % 5 {
			case 0:
				return PictureP, true
			case 1:
				return PictureB, true
			case 2:
				return PictureI, true
			default:
				return PictureP, true
			}
		}
	}
	return UnknownPicture, false
}

// h264IsKeyCapable reports whether the payload carries an IDR NAL. Nothing in
// the package calls it; the Parser Probe does not check H.264 keyframe flags.
func h264IsKeyCapable(payload []byte) bool {
	for _, nal := range h264NALUs(payload) {
		if len(nal) > 0 && nal[0]&0x1F == 5 {
			return true
		}
	}
	return false
}

// h264Splitter implements the extradata tracker's split operation for
// Annex-B H.264: the leading parameter block is everything before the first
// VCL NAL, provided it actually contains an SPS or PPS.
type h264Splitter struct{ extradata []byte }

func (s h264Splitter) splits() bool             { return true }
func (s h264Splitter) currentExtradata() []byte { return s.extradata }

func (s h264Splitter) split(data []byte) []byte {
	sawParamSet := false
	i := mpeg2NextStartCode(data, 0)
	for i >= 0 {
		nalStart := i + 3
		if nalStart >= len(data) {
			break
		}
		nalType := data[nalStart] & 0x1F
		if nalType >= 1 && nalType <= 5 {
			// First VCL NAL; the prefix is the parameter block iff an
			// SPS/PPS was seen in it. The start code may be 4 bytes (a
			// zero before 00 00 01); include it in the cut either way.
			if !sawParamSet {
				return nil
			}
			cut := i
			if cut > 0 && data[cut-1] == 0x00 {
				cut--
			}
			return data[:cut]
		}
		if nalType == 7 || nalType == 8 {
			sawParamSet = true
		}
		i = mpeg2NextStartCode(data, nalStart)
	}
	return nil
}

// h264SPSDimensions finds the first SPS NAL inside an Annex-B parameter
// block and returns its coded dimensions via mediacommon's SPS decoder;
// zero values mean no usable SPS was found.
func h264SPSDimensions(blob []byte) (width, height int) {
	for _, nal := range h264NALUs(blob) {
		if len(nal) > 0 && nal[0]&0x1F == 7 {
			var sps h264.SPS
			if err := sps.Unmarshal(nal); err != nil {
				return 0, 0
			}
			return sps.Width(), sps.Height()
		}
	}
	return 0, 0
}
