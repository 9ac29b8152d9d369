package frameidx

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

// aviBuilder assembles a minimal RIFF/AVI byte stream: hdrl with one strl
// per stream, a movi list, and an idx1 trailer.
type aviBuilder struct {
	strls [][]byte
	movi  []byte
	idx1  []byte
}

func chunk(id string, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString(id)
	binary.Write(&b, binary.LittleEndian, uint32(len(payload)))
	b.Write(payload)
	if len(payload)%2 == 1 {
		b.WriteByte(0)
	}
	return b.Bytes()
}

func list(listType string, payload []byte) []byte {
	return chunk("LIST", append([]byte(listType), payload...))
}

func (ab *aviBuilder) addVideoStream(handler string, width, height uint32) {
	strh := make([]byte, 56)
	copy(strh[0:4], "vids")
	copy(strh[4:8], handler)
	binary.LittleEndian.PutUint32(strh[20:24], 1)  // scale
	binary.LittleEndian.PutUint32(strh[24:28], 25) // rate
	strf := make([]byte, 40)
	binary.LittleEndian.PutUint32(strf[0:4], 40)
	binary.LittleEndian.PutUint32(strf[4:8], width)
	binary.LittleEndian.PutUint32(strf[8:12], height)
	copy(strf[16:20], handler)
	ab.strls = append(ab.strls, list("strl", append(chunk("strh", strh), chunk("strf", strf)...)))
}

func (ab *aviBuilder) addAudioStream(rate uint32, channels, bits, align uint16) {
	strh := make([]byte, 56)
	copy(strh[0:4], "auds")
	binary.LittleEndian.PutUint32(strh[20:24], 1)
	binary.LittleEndian.PutUint32(strh[24:28], rate)
	strf := make([]byte, 16)
	binary.LittleEndian.PutUint16(strf[0:2], 0x0001) // WAVE_FORMAT_PCM
	binary.LittleEndian.PutUint16(strf[2:4], channels)
	binary.LittleEndian.PutUint32(strf[4:8], rate)
	binary.LittleEndian.PutUint16(strf[12:14], align)
	binary.LittleEndian.PutUint16(strf[14:16], bits)
	ab.strls = append(ab.strls, list("strl", append(chunk("strh", strh), chunk("strf", strf)...)))
}

// addChunk appends a movi payload chunk and its idx1 entry.
func (ab *aviBuilder) addChunk(chunkID string, payload []byte, keyframe bool) {
	// idx1 offsets are relative to the "movi" fourCC; the fourCC itself is
	// 4 bytes, so the first chunk's offset is 4.
	relOffset := uint32(4 + len(ab.movi))
	ab.movi = append(ab.movi, chunk(chunkID, payload)...)

	entry := make([]byte, 16)
	copy(entry[0:4], chunkID)
	flags := uint32(0)
	if keyframe {
		flags = 0x10
	}
	binary.LittleEndian.PutUint32(entry[4:8], flags)
	binary.LittleEndian.PutUint32(entry[8:12], relOffset)
	binary.LittleEndian.PutUint32(entry[12:16], uint32(len(payload)))
	ab.idx1 = append(ab.idx1, entry...)
}

func (ab *aviBuilder) build() []byte {
	avih := make([]byte, 56)
	hdrl := append(chunk("avih", avih), bytes.Join(ab.strls, nil)...)

	var body bytes.Buffer
	body.Write(list("hdrl", hdrl))
	body.Write(list("movi", ab.movi))
	body.Write(chunk("idx1", ab.idx1))

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()+4))
	out.WriteString("AVI ")
	out.Write(body.Bytes())
	return out.Bytes()
}

func openTestAVI(t *testing.T, ab *aviBuilder) *AVIDemuxer {
	t.Helper()
	data := ab.build()
	d, err := OpenAVI(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenAVI: %v", err)
	}
	return d
}

func TestOpenAVIParsesStreamsAndChunks(t *testing.T) {
	ab := &aviBuilder{}
	ab.addVideoStream("H264", 1280, 720)
	ab.addAudioStream(48000, 2, 16, 4)
	ab.addChunk("00dc", []byte{0xAA, 0xBB}, true)
	ab.addChunk("01wb", bytes.Repeat([]byte{0x00}, 8), true)
	ab.addChunk("00dc", []byte{0xCC, 0xDD}, false)

	d := openTestAVI(t, ab)
	streams := d.Streams()
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	if streams[0].Kind != StreamVideo || streams[0].Codec != CodecH264 || streams[0].Width != 1280 {
		t.Fatalf("unexpected video stream params: %+v", streams[0])
	}
	if streams[1].Kind != StreamAudio || streams[1].SampleRate != 48000 || streams[1].BlockAlign != 4 || streams[1].BitsPerSample != 16 {
		t.Fatalf("unexpected audio stream params: %+v", streams[1])
	}
	if streams[1].SampleFormat != "s16" {
		t.Fatalf("expected PCM s16 sample format, got %q", streams[1].SampleFormat)
	}

	pkt, err := d.NextPacket()
	if err != nil {
		t.Fatalf("NextPacket: %v", err)
	}
	if pkt.StreamIndex != 0 || !pkt.Key || !bytes.Equal(pkt.Data, []byte{0xAA, 0xBB}) {
		t.Fatalf("unexpected first packet: %+v", pkt)
	}
	pkt, _ = d.NextPacket()
	if pkt.StreamIndex != 1 || pkt.Size != 8 {
		t.Fatalf("unexpected second packet: %+v", pkt)
	}
	pkt, _ = d.NextPacket()
	if pkt.StreamIndex != 0 || pkt.Key {
		t.Fatalf("expected non-key video packet, got %+v", pkt)
	}
	if _, err := d.NextPacket(); err != io.EOF {
		t.Fatalf("expected EOF after last chunk, got %v", err)
	}
}

func TestAVIDemuxerNativeIndexEntries(t *testing.T) {
	ab := &aviBuilder{}
	ab.addVideoStream("H264", 640, 480)
	ab.addChunk("00dc", []byte{0x01}, true)
	ab.addChunk("00dc", []byte{0x02}, false)

	d := openTestAVI(t, ab)
	entries := d.NativeIndexEntries()[0]
	if len(entries) != 2 {
		t.Fatalf("expected 2 native index entries, got %d", len(entries))
	}
	if entries[0].Flags != 1 || entries[1].Flags != 0 {
		t.Fatalf("keyframe flags not carried into the native index: %+v", entries)
	}
	if entries[1].Pos <= entries[0].Pos {
		t.Fatalf("native index positions must ascend: %+v", entries)
	}
	if entries[0].TS != 0 || entries[1].TS != 1 {
		t.Fatalf("native index timestamps must count per stream: %+v", entries)
	}
}

func TestOpenAVIRejectsNonRIFF(t *testing.T) {
	data := []byte("this is not an avi file at all..")
	if _, err := OpenAVI(bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatalf("expected ContainerOpenFailed for non-RIFF input")
	}
}

func TestOpenAVIThroughOrchestratorEndToEnd(t *testing.T) {
	ab := &aviBuilder{}
	ab.addVideoStream("H264", 640, 480)
	ab.addAudioStream(48000, 1, 16, 2)
	ab.addChunk("00dc", []byte{0xAA}, true)
	ab.addChunk("01wb", bytes.Repeat([]byte{0x00}, 64), true)
	ab.addChunk("00dc", []byte{0xBB}, false)

	data := ab.build()
	d, err := OpenAVI(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("OpenAVI: %v", err)
	}

	opts := inMemoryOptions(t)
	idx, err := NewOrchestrator(opts).Create(d, StreamDecoders{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if idx.Container.VideoStreamID != 0 || idx.Container.AudioStreamID != 1 {
		t.Fatalf("unexpected election: %+v", idx.Container)
	}
	if len(idx.VideoFrames) != 2 || len(idx.AudioFrames) != 1 {
		t.Fatalf("unexpected frame counts: %d video, %d audio", len(idx.VideoFrames), len(idx.AudioFrames))
	}
	if idx.AudioFrames[0].Length != 32 {
		t.Fatalf("expected 64 bytes / 2-byte block align = 32 samples, got %d", idx.AudioFrames[0].Length)
	}
	if len(idx.StreamIndex[0]) != 2 || len(idx.StreamIndex[1]) != 1 {
		t.Fatalf("native idx1 entries not preserved: %+v", idx.StreamIndex)
	}
}
