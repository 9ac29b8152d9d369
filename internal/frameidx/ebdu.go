package frameidx

// ebduSequenceHeaderType / ebduFrameType are the VC-1/WMV3 BDU type codes
// used to prime (0x0F) and to wrap a frame (0x0D) for the parser.
const (
	ebduSequenceHeaderType byte = 0x0F
	ebduFrameType          byte = 0x0D
)

// ebduPaddingSize is the trailing zero-padding region appended after an
// assembled EBDU, sized to a generous fixed input-buffer requirement; the
// exact decoder buffer alignment is an external concern, so this package
// picks a conservative constant rather than querying one.
const ebduPaddingSize = 4

// assembleEBDU reframes a raw VC-1/WMV3 bitstream unit into EBDU form: a
// 00 00 01 <bduType> start code, optionally emulation-escaped payload (the
// WMV3 raw-byte-sequence case), then trailing zero padding.
//
// Emulation prevention: after any two consecutive 0x00 bytes whose next byte
// is <= 0x03, insert a 0x03 (nalToRBSP's escaping rule run in reverse).
func assembleEBDU(payload []byte, bduType byte, escape bool) []byte {
	out := make([]byte, 0, len(payload)+4+ebduPaddingSize)
	out = append(out, 0x00, 0x00, 0x01, bduType)

	if !escape {
		out = append(out, payload...)
	} else {
		zeros := 0
		for _, b := range payload {
			if zeros >= 2 && b <= 0x03 {
				out = append(out, 0x03)
				zeros = 0
			}
			out = append(out, b)
			if b == 0x00 {
				zeros++
			} else {
				zeros = 0
			}
		}
	}

	for i := 0; i < ebduPaddingSize; i++ {
		out = append(out, 0x00)
	}
	return out
}

// wrapSequenceHeaderEBDU primes a VC-1/WMV3 parser on an ASF-wrapped stream
// by feeding the stream's extradata as a sequence-header EBDU before the
// first packet.
func wrapSequenceHeaderEBDU(extradata []byte) []byte {
	return assembleEBDU(extradata, ebduSequenceHeaderType, false)
}

// wrapFrameEBDU wraps one VC-1/WMV3 packet payload as a frame BDU so the
// parser sees framing identical to what it would see on a raw elementary
// stream; the WMV3 raw-byte-sequence case additionally needs emulation
// escaping since WMV3 payloads carry no Annex-B framing of their own.
func wrapFrameEBDU(payload []byte, isWMV3RawByteSequence bool) []byte {
	return assembleEBDU(payload, ebduFrameType, isWMV3RawByteSequence)
}
