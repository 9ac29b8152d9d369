package frameidx

import "bytes"

// vc1SeqHeader is the subset of a VC-1 Advanced-profile sequence header the
// extradata attribute fill and frame-header parsing need.
type vc1SeqHeader struct {
	Width, Height int
	Interlace     bool
	ok            bool
}

// parseVC1SequenceHeader locates the 0x0F sequence-header start code,
// requires Advanced profile, and reads the fixed-width coded dimension
// fields plus the interlace flag.
func parseVC1SequenceHeader(data []byte) vc1SeqHeader {
	start := bytes.Index(data, []byte{0x00, 0x00, 0x01, 0x0F})
	if start < 0 || start+4 >= len(data) {
		return vc1SeqHeader{}
	}
	br := newBitReader(data[start+4:])
	profile := int(br.readBitsValue(2))
	if profile != 3 {
		return vc1SeqHeader{}
	}
	br.readBitsValue(3) // level
	br.readBitsValue(2) // colordiff_format
	br.readBitsValue(3) // frmrtq_postproc
	br.readBitsValue(5) // bitrtq_postproc
	br.readBitsValue(1) // postprocflag
	codedWidth := int(br.readBitsValue(12))
	codedHeight := int(br.readBitsValue(12))
	br.readBitsValue(1) // pulldown
	interlace := br.readBitsValue(1)

	return vc1SeqHeader{
		Width:     (codedWidth + 1) * 2,
		Height:    (codedHeight + 1) * 2,
		Interlace: interlace == 1,
		ok:        true,
	}
}

// vc1FramePictureType reads the PTYPE VLC of an Advanced-profile frame BDU
// (start code 00 00 01 0D): 0=P, 10=B, 110=I, 1110=BI, 1111=skipped (treated
// as P). Interlaced sequences carry an FCM field ahead of PTYPE.
func vc1FramePictureType(data []byte, interlace bool) (PictureType, bool) {
	start := bytes.Index(data, []byte{0x00, 0x00, 0x01, 0x0D})
	if start < 0 || start+4 >= len(data) {
		return UnknownPicture, false
	}
	br := newBitReader(data[start+4:])
	if interlace {
		if br.readBitsValue(1) == 1 {
			br.readBitsValue(1) // field/frame interlace select
		}
	}
	if br.readBitsValue(1) == 0 {
		return PictureP, true
	}
	if br.readBitsValue(1) == 0 {
		return PictureB, true
	}
	if br.readBitsValue(1) == 0 {
		return PictureI, true
	}
	if br.readBitsValue(1) == 0 {
		return PictureBI, true
	}
	return PictureP, true // skipped picture decodes as P
}

// vc1PictureIsI reports whether a decoded VC-1/WMV3 picture is a true
// I-picture. BI deliberately does not count: a BI picture carried with a
// container keyframe flag is still rejected by the decoder as a stream's
// first frame, so its key bit must be cleared like any other non-I type.
func vc1PictureIsI(decodedPictureType PictureType) bool {
	return decodedPictureType == PictureI
}
