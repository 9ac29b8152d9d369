package frameidx

// mpeg2PictureStartCode and the picture_coding_type field layout follow
// ITU-T H.262 6.2.3; scanning for the 00 00 01 start-code prefix is the
// usual technique for walking MPEG-2 user-data and sequence extensions.
const mpeg2PictureStartCode = 0x00

// mpeg2PictureType walks an MPEG-1/2 video packet's elementary stream for
// the picture_header and returns its picture_coding_type.
func mpeg2PictureType(payload []byte) (PictureType, bool) {
	i := mpeg2NextStartCode(payload, 0)
	for i >= 0 {
		code := payload[i+3]
		if code == mpeg2PictureStartCode {
			if i+3+4 > len(payload) {
				return UnknownPicture, false
			}
			br := newBitReader(payload[i+4:])
			br.readBitsValue(10) // temporal_reference
			codingType := br.readBitsValue(3)
			switch codingType {
			case 1:
				return PictureI, true
			case 2:
				return PictureP, true
			case 3:
				return PictureB, true
			default:
				return UnknownPicture, false
			}
		}
		i = mpeg2NextStartCode(payload, i+3)
	}
	return UnknownPicture, false
}

func mpeg2NextStartCode(data []byte, start int) int {
	for i := start; i+3 < len(data); i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 && data[i+2] == 0x01 {
			return i
		}
	}
	return -1
}
