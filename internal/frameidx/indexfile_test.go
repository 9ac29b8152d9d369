package frameidx

import (
	"bytes"
	"testing"
)

// seekBuffer adapts a bytes.Buffer into an io.WriteSeeker backed by a plain
// byte slice, enough for IndexWriter's back-patching to exercise in tests
// without touching a real file.
type seekBuffer struct {
	buf []byte
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > int64(len(s.buf)) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(len(s.buf)) + offset
	}
	return s.pos, nil
}

func TestIndexWriterReaderRoundTrip(t *testing.T) {
	sb := &seekBuffer{}
	w, err := NewIndexWriter(sb, "movie.avi", ContainerInfo{FormatName: "avi", VideoStreamID: -1, AudioStreamID: -1})
	if err != nil {
		t.Fatalf("NewIndexWriter: %v", err)
	}
	if err := w.SetActiveVideoStreamIndex(0); err != nil {
		t.Fatalf("SetActiveVideoStreamIndex: %v", err)
	}
	if err := w.WriteVideoRecord(0, "h264", TimeBase{1, 25}, VideoFrameInfo{
		PTS: 0, DTS: 0, FileOffset: 100, ExtradataIndex: 0, PictureType: PictureI, Keyframe: true,
	}, VideoAttributes{Width: 1920, Height: 1080, PixelFormat: "yuv420p"}); err != nil {
		t.Fatalf("WriteVideoRecord: %v", err)
	}
	if err := w.WriteVideoRecord(0, "h264", TimeBase{1, 25}, VideoFrameInfo{
		PTS: 1, DTS: 1, FileOffset: 200, ExtradataIndex: 0, PictureType: PictureP, Keyframe: false,
	}, VideoAttributes{Width: 1920, Height: 1080, PixelFormat: "yuv420p"}); err != nil {
		t.Fatalf("WriteVideoRecord: %v", err)
	}
	if err := w.CloseLibavReaderIndex(); err != nil {
		t.Fatalf("CloseLibavReaderIndex: %v", err)
	}
	if err := w.WriteExtradataList(0, StreamVideo, "h264", 0x31637661, []ExtradataEntry{
		{Blob: []byte{0x00, 0x00, 0x00, 0x01}, Video: VideoAttributes{Width: 1920, Height: 1080, PixelFormat: "yuv420p"}},
	}); err != nil {
		t.Fatalf("WriteExtradataList: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err := ReadIndexFile(bytes.NewReader(sb.buf))
	if err != nil {
		t.Fatalf("ReadIndexFile: %v", err)
	}
	if idx.Container.VideoStreamID != 0 {
		t.Fatalf("expected active video stream 0, got %d", idx.Container.VideoStreamID)
	}
	if len(idx.VideoFrames) != 2 {
		t.Fatalf("expected 2 video frames, got %d", len(idx.VideoFrames))
	}
	if idx.VideoFrames[0].PictureType != PictureI || !idx.VideoFrames[0].Keyframe {
		t.Fatalf("unexpected first frame: %+v", idx.VideoFrames[0])
	}
	if idx.VideoFrames[1].PictureType != PictureP || idx.VideoFrames[1].Keyframe {
		t.Fatalf("unexpected second frame: %+v", idx.VideoFrames[1])
	}
	ed := idx.VideoExtradata[0]
	if len(ed) != 1 || ed[0].Video.Width != 1920 || ed[0].Video.PixelFormat != "yuv420p" {
		t.Fatalf("unexpected extradata: %+v", ed)
	}
}

func TestReadIndexFileRejectsVersionMismatch(t *testing.T) {
	data := "<LibavReaderIndexFile=999>\n</LibavReaderIndexFile>\n"
	_, err := ReadIndexFile(bytes.NewReader([]byte(data)))
	if err == nil {
		t.Fatalf("expected version mismatch error")
	}
	var e *Error
	if !asError(err, &e) || e.Kind != IndexVersionMismatch {
		t.Fatalf("expected IndexVersionMismatch, got %v", err)
	}
}

func TestReadIndexFileRejectsEmptyInput(t *testing.T) {
	_, err := ReadIndexFile(bytes.NewReader(nil))
	if err == nil {
		t.Fatalf("expected error for empty input")
	}
}

// TestExtradataBlobRoundTripsCarriageReturn guards against a line-scanner
// that strips a trailing "\r" the way bufio.ScanLines does for CRLF text:
// extradata blobs are raw binary (SPS/PPS, sequence headers) and a "\r"
// byte inside one must survive exactly.
func TestExtradataBlobRoundTripsCarriageReturn(t *testing.T) {
	sb := &seekBuffer{}
	w, err := NewIndexWriter(sb, "movie.avi", ContainerInfo{FormatName: "avi", VideoStreamID: -1, AudioStreamID: -1})
	if err != nil {
		t.Fatalf("NewIndexWriter: %v", err)
	}
	if err := w.CloseLibavReaderIndex(); err != nil {
		t.Fatalf("CloseLibavReaderIndex: %v", err)
	}
	blob := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x0D, 0x0A, 0x03, 0x00}
	if err := w.WriteExtradataList(0, StreamVideo, "h264", 0x31637661, []ExtradataEntry{
		{Blob: blob, Video: VideoAttributes{Width: 1920, Height: 1080, PixelFormat: "yuv420p"}},
	}); err != nil {
		t.Fatalf("WriteExtradataList: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err := ReadIndexFile(bytes.NewReader(sb.buf))
	if err != nil {
		t.Fatalf("ReadIndexFile: %v", err)
	}
	got := idx.VideoExtradata[0][0].Blob
	if !bytes.Equal(got, blob) {
		t.Fatalf("extradata blob corrupted by line reader: got %x, want %x", got, blob)
	}
}
