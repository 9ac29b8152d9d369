package frameidx

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// aviStreamHeader is the subset of an AVI strl's strh/strf payload the
// demuxer needs to answer Streams() and to synthesize per-packet time
// stamps; layout mirrors the RIFF AVIStreamHeader/BitmapInfoHeader/
// WAVEFORMATEX structures.
type aviStreamHeader struct {
	kind        StreamKind
	handler     string
	compression string
	scale       uint32
	rate        uint32
	width       uint32
	height      uint32
	audioTag    uint16
	audioChans  uint16
	audioRate   uint32
	audioAlign  uint16
	audioBits   uint16
	extradata   []byte
}

// aviChunkDescriptor is one "movi" payload this demuxer will hand out as a
// Packet, resolved ahead of time from the idx1 trailer (or, lacking one, a
// direct movi scan) so NextPacket only has to read bytes in file order.
type aviChunkDescriptor struct {
	streamIndex int
	pos         int64
	size        int64
	keyframe    bool
}

// AVIDemuxer implements Demuxer for RIFF/AVI containers, including the
// DV-in-AVI Type-1 layout where a lone "vids" stream carries embedded audio
// with no separate "auds" declaration in hdrl.
type AVIDemuxer struct {
	r    io.ReadSeeker
	size int64

	streams []aviStreamHeader
	chunks  []aviChunkDescriptor
	cursor  int

	decodeCount []int64 // running per-stream sample/frame counter for PTS/DTS synthesis
	format      string
}

// OpenAVI parses the RIFF container structure (header list, stream headers,
// idx1) without reading movi payloads; NextPacket reads those lazily.
func OpenAVI(r io.ReadSeeker, size int64) (*AVIDemuxer, error) {
	if size < 12 {
		return nil, wrapErr(ContainerOpenFailed, fmt.Errorf("file too small for RIFF header"))
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, wrapErr(ContainerOpenFailed, err)
	}
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, wrapErr(ContainerOpenFailed, err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "AVI " {
		return nil, wrapErr(ContainerOpenFailed, fmt.Errorf("not a RIFF/AVI file"))
	}

	d := &AVIDemuxer{r: r, size: size, format: "avi"}

	var moviStart, moviEnd int64
	haveIndex := false

	offset := int64(12)
	for offset+8 <= size {
		var chunkHeader [8]byte
		if _, err := readAtAVI(r, offset, chunkHeader[:]); err != nil {
			break
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		dataStart := offset + 8
		dataEnd := dataStart + chunkSize
		if dataEnd > size {
			break
		}

		switch chunkID {
		case "LIST":
			var listType [4]byte
			if _, err := readAtAVI(r, dataStart, listType[:]); err != nil {
				break
			}
			switch string(listType[:]) {
			case "hdrl":
				listData := make([]byte, chunkSize-4)
				if _, err := readAtAVI(r, dataStart+4, listData); err != nil {
					break
				}
				d.parseHDRL(listData)
			case "movi":
				moviStart = dataStart + 4
				moviEnd = dataEnd
			}
		case "idx1":
			indexData := make([]byte, chunkSize)
			if _, err := readAtAVI(r, dataStart, indexData); err != nil {
				break
			}
			if d.parseIdx1(indexData, moviStart) {
				haveIndex = true
			}
		}

		pad := chunkSize % 2
		offset = dataEnd + pad
	}

	if len(d.streams) == 0 {
		return nil, wrapErr(ContainerOpenFailed, fmt.Errorf("no strl streams found"))
	}
	if !haveIndex && moviEnd > moviStart {
		d.scanMovi(moviStart, moviEnd)
	}

	d.decodeCount = make([]int64, len(d.streams))
	return d, nil
}

func (d *AVIDemuxer) parseHDRL(data []byte) {
	parseRIFFChunksAVI(data, func(id string, payload []byte) {
		if id != "LIST" || len(payload) < 4 || string(payload[0:4]) != "strl" {
			return
		}
		sh := parseAVIStrl(payload[4:])
		if sh != nil {
			d.streams = append(d.streams, *sh)
		}
	})
}

func parseAVIStrl(data []byte) *aviStreamHeader {
	sh := &aviStreamHeader{}
	found := false
	parseRIFFChunksAVI(data, func(id string, payload []byte) {
		switch id {
		case "strh":
			if len(payload) < 56 {
				return
			}
			fccType := string(payload[0:4])
			sh.handler = strings.ToUpper(strings.TrimSpace(string(payload[4:8])))
			sh.scale = binary.LittleEndian.Uint32(payload[20:24])
			sh.rate = binary.LittleEndian.Uint32(payload[24:28])
			switch fccType {
			case "vids":
				sh.kind = StreamVideo
			case "auds":
				sh.kind = StreamAudio
			}
			found = true
		case "strf":
			if sh.kind == StreamVideo && len(payload) >= 40 {
				sh.width = binary.LittleEndian.Uint32(payload[4:8])
				sh.height = binary.LittleEndian.Uint32(payload[8:12])
				compression := binary.LittleEndian.Uint32(payload[16:20])
				sh.compression = strings.ToUpper(fourCCAVI(compression))
				if len(payload) > 40 {
					sh.extradata = append([]byte{}, payload[40:]...)
				}
			} else if sh.kind == StreamAudio && len(payload) >= 16 {
				sh.audioTag = binary.LittleEndian.Uint16(payload[0:2])
				sh.audioChans = binary.LittleEndian.Uint16(payload[2:4])
				sh.audioRate = binary.LittleEndian.Uint32(payload[4:8])
				sh.audioAlign = binary.LittleEndian.Uint16(payload[12:14])
				sh.audioBits = binary.LittleEndian.Uint16(payload[14:16])
				if len(payload) > 18 {
					cb := int(binary.LittleEndian.Uint16(payload[16:18]))
					if cb > 0 && 18+cb <= len(payload) {
						sh.extradata = append([]byte{}, payload[18:18+cb]...)
					}
				}
			}
		}
	})
	if !found {
		return nil
	}
	return sh
}

// parseIdx1 resolves idx1 offsets into chunk descriptors. idx1 entries record
// the offset of each chunk header relative to the movi LIST's "movi" fourCC
// (so the first chunk sits at offset 4); AVIIF_KEYFRAME (0x10) marks a
// keyframe.
func (d *AVIDemuxer) parseIdx1(data []byte, moviListDataStart int64) bool {
	const aviifKeyframe = 0x10
	found := false
	pos := 0
	for pos+16 <= len(data) {
		id := string(data[pos : pos+4])
		streamIndex, ok := parseAVIStreamIndexAVI(id)
		pos += 16
		if !ok || streamIndex >= len(d.streams) {
			continue
		}
		flags := binary.LittleEndian.Uint32(data[pos-12 : pos-8])
		relOffset := int64(binary.LittleEndian.Uint32(data[pos-8 : pos-4]))
		size := int64(binary.LittleEndian.Uint32(data[pos-4 : pos]))

		// idx1 offsets are historically either relative to the movi list's
		// 4-byte "movi" tag or absolute from file start (pre-OpenDML
		// ambiguity); relOffset here is taken relative to moviListDataStart-4
		// (the "movi" fourCC position), matching the common convention.
		absPos := moviListDataStart - 4 + relOffset + 8
		d.chunks = append(d.chunks, aviChunkDescriptor{
			streamIndex: streamIndex,
			pos:         absPos,
			size:        size,
			keyframe:    flags&aviifKeyframe != 0,
		})
		found = true
	}
	return found
}

// scanMovi is the fallback when idx1 is missing or unusable: walk the movi
// list's chunk headers directly.
func (d *AVIDemuxer) scanMovi(start, end int64) {
	offset := start
	for offset+8 <= end {
		var header [8]byte
		if _, err := readAtAVI(d.r, offset, header[:]); err != nil {
			break
		}
		chunkID := string(header[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(header[4:8]))
		dataStart := offset + 8
		dataEnd := dataStart + chunkSize
		if dataEnd > end {
			break
		}
		if streamIndex, ok := parseAVIStreamIndexAVI(chunkID); ok && streamIndex < len(d.streams) {
			d.chunks = append(d.chunks, aviChunkDescriptor{
				streamIndex: streamIndex,
				pos:         dataStart,
				size:        chunkSize,
				keyframe:    strings.HasSuffix(chunkID, "db") || d.streams[streamIndex].kind == StreamAudio,
			})
		}
		pad := chunkSize % 2
		offset = dataEnd + pad
	}
}

func (d *AVIDemuxer) FormatName() string   { return d.format }
func (d *AVIDemuxer) ByteSeekable() bool   { return true }

func (d *AVIDemuxer) Streams() []StreamParams {
	out := make([]StreamParams, len(d.streams))
	for i, sh := range d.streams {
		sp := StreamParams{Index: i, Kind: sh.kind, Extradata: sh.extradata}
		switch sh.kind {
		case StreamVideo:
			sp.Width, sp.Height = int(sh.width), int(sh.height)
			sp.TimeBaseNum, sp.TimeBaseDen = int(sh.scale), int(sh.rate)
			sp.Codec = classifyVideoCompression(sh)
			sp.CodecTag = fourCCTagAVI(sh.compression)
		case StreamAudio:
			sp.SampleRate = int(sh.audioRate)
			sp.TimeBaseNum, sp.TimeBaseDen = 1, int(sh.audioRate)
			sp.CodecTag = uint32(sh.audioTag)
			if sh.audioChans > 0 {
				sp.ChannelLayout = 1<<sh.audioChans - 1
			}
			sp.BitsPerSample = int(sh.audioBits)
			sp.BlockAlign = int(sh.audioAlign)
			if sh.audioTag == 0x0001 { // WAVE_FORMAT_PCM
				switch sh.audioBits {
				case 8:
					sp.SampleFormat = "u8"
				case 16:
					sp.SampleFormat = "s16"
				case 24, 32:
					sp.SampleFormat = "s32"
				}
			}
		}
		out[i] = sp
	}
	return out
}

// NativeIndexEntries exposes the idx1-derived chunk table so the index file
// can preserve the container's own index in its trailer.
func (d *AVIDemuxer) NativeIndexEntries() map[int][]StreamIndexEntry {
	out := map[int][]StreamIndexEntry{}
	counts := make([]int64, len(d.streams))
	for _, c := range d.chunks {
		flags := 0
		if c.keyframe {
			flags = 1
		}
		out[c.streamIndex] = append(out[c.streamIndex], StreamIndexEntry{
			Pos:   c.pos,
			TS:    counts[c.streamIndex],
			Flags: flags,
			Size:  int(c.size),
		})
		counts[c.streamIndex]++
	}
	return out
}

// classifyVideoCompression maps a handful of common AVI video FOURCCs onto
// CodecKind; everything else is CodecOther and gets no special reorder or
// EBDU treatment, which is the correct behavior for those codecs.
func classifyVideoCompression(sh aviStreamHeader) CodecKind {
	code := sh.handler
	if code == "" {
		code = sh.compression
	}
	switch code {
	case "DVSD", "DVHD", "DVSL", "DV25", "DV50":
		return CodecDVVideo
	case "WVC1":
		return CodecVC1
	case "WMV3":
		return CodecWMV3
	case "H264", "AVC1":
		return CodecH264
	case "MPG1":
		return CodecMPEG1Video
	case "MPG2":
		return CodecMPEG2Video
	default:
		return CodecOther
	}
}

// NextPacket returns chunks in file order (ascending by byte offset, which
// for a well-formed idx1 is also decode order), synthesizing DTS from a
// running per-stream sample counter since AVI carries no explicit
// timestamps in its packet headers.
func (d *AVIDemuxer) NextPacket() (Packet, error) {
	if d.cursor >= len(d.chunks) {
		return Packet{}, io.EOF
	}
	c := d.chunks[d.cursor]
	d.cursor++

	data := make([]byte, c.size)
	if c.size > 0 {
		if _, err := readAtAVI(d.r, c.pos, data); err != nil {
			return Packet{}, wrapErr(DemuxReadFailed, err)
		}
	}

	ts := d.decodeCount[c.streamIndex]
	step := int64(1)
	if sh := d.streams[c.streamIndex]; sh.kind == StreamAudio && sh.audioAlign > 0 {
		// Audio time bases are 1/sample-rate, so advance by the chunk's
		// sample count (bytes / block alignment) rather than by one.
		step = c.size / int64(sh.audioAlign)
	}
	d.decodeCount[c.streamIndex] += step

	return Packet{
		StreamIndex: c.streamIndex,
		PTS:         ts,
		DTS:         ts,
		Pos:         c.pos,
		Size:        int(c.size),
		Data:        data,
		Key:         c.keyframe,
	}, nil
}

func parseRIFFChunksAVI(data []byte, fn func(id string, payload []byte)) {
	pos := 0
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		start := pos + 8
		end := start + size
		if end > len(data) {
			return
		}
		fn(id, data[start:end])
		if size%2 == 1 {
			end++
		}
		pos = end
	}
}

func parseAVIStreamIndexAVI(id string) (int, bool) {
	if len(id) != 4 || id[0] < '0' || id[0] > '9' || id[1] < '0' || id[1] > '9' {
		return 0, false
	}
	return int(id[0]-'0')*10 + int(id[1]-'0'), true
}

func readAtAVI(r io.ReadSeeker, offset int64, buf []byte) (int, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		total := 0
		for total < len(buf) {
			n, err := ra.ReadAt(buf[total:], offset+int64(total))
			total += n
			if err != nil {
				if err == io.EOF && total == len(buf) {
					return total, nil
				}
				return total, err
			}
			if n == 0 {
				return total, io.EOF
			}
		}
		return total, nil
	}
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(r, buf)
}

func fourCCAVI(value uint32) string {
	b := []byte{byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24)}
	return strings.ToUpper(string(b))
}

func fourCCTagAVI(fourCC string) uint32 {
	if len(fourCC) != 4 {
		return 0
	}
	return uint32(fourCC[0]) | uint32(fourCC[1])<<8 | uint32(fourCC[2])<<16 | uint32(fourCC[3])<<24
}
