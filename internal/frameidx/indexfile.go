package frameidx

import (
	"bufio"
	"fmt"
	"io"
)

// IndexFileVersion increments on any layout-breaking change to the grammar
// below; a reader that finds a mismatch fails fast.
const IndexFileVersion = 1

// activeStreamFieldWidth is the fixed field width ("sDDDDDDDDDD": one sign
// character plus ten digits) the ActiveVideoStreamIndex/ActiveAudioStreamIndex
// lines are written with, so the orchestrator can rewrite them in place when
// stream election changes without touching anything after them in the file.
const activeStreamFieldWidth = 11

// StreamIndexEntry is one of the demuxer's native stream index entries,
// preserved verbatim in the trailer for a future audio-only reopen.
type StreamIndexEntry struct {
	Pos      int64
	TS       int64
	Flags    int
	Size     int
	Distance int
}

// IndexWriter streams the textual index file while the scan runs. It is the
// only place that knows the fixed byte offsets of the back-patchable
// Active*StreamIndex lines.
type IndexWriter struct {
	w               io.WriteSeeker
	bw              *bufio.Writer
	written         int64
	videoIdxOffset  int64
	audioIdxOffset  int64
}

func NewIndexWriter(w io.WriteSeeker, inputPath string, info ContainerInfo) (*IndexWriter, error) {
	iw := &IndexWriter{w: w, bw: bufio.NewWriter(w)}

	lines := []string{
		fmt.Sprintf("<LibavReaderIndexFile=%d>", IndexFileVersion),
		fmt.Sprintf("<InputFilePath>%s</InputFilePath>", inputPath),
		fmt.Sprintf("<LibavReaderIndex=0x%08X,%s>", info.FormatFlags, info.FormatName),
	}
	for _, l := range lines {
		if err := iw.writeLine(l); err != nil {
			return nil, wrapErr(IndexFileIOError, err)
		}
	}

	if err := iw.writeActiveStreamLine("ActiveVideoStreamIndex", info.VideoStreamID, &iw.videoIdxOffset); err != nil {
		return nil, err
	}
	if err := iw.writeActiveStreamLine("ActiveAudioStreamIndex", info.AudioStreamID, &iw.audioIdxOffset); err != nil {
		return nil, err
	}
	return iw, nil
}

func (iw *IndexWriter) writeActiveStreamLine(tag string, value int, offset *int64) error {
	prefix := fmt.Sprintf("<%s>", tag)
	if err := iw.writeRaw(prefix); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	*offset = iw.written
	if err := iw.writeRaw(formatSignedField(value, activeStreamFieldWidth)); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	return iw.writeLine(fmt.Sprintf("</%s>", tag))
}

func formatSignedField(value int, width int) string {
	return fmt.Sprintf("%+0*d", width, value)
}

func (iw *IndexWriter) writeLine(s string) error {
	if err := iw.writeRaw(s); err != nil {
		return err
	}
	return iw.writeRaw("\n")
}

func (iw *IndexWriter) writeRaw(s string) error {
	n, err := iw.bw.WriteString(s)
	iw.written += int64(n)
	return err
}

// WriteVideoRecord emits one video packet's two-line record.
func (iw *IndexWriter) WriteVideoRecord(sid int, codec string, tb TimeBase, rec VideoFrameInfo, attrs VideoAttributes) error {
	format := attrs.PixelFormat
	if format == "" {
		format = "none"
	}
	if err := iw.writeLine(fmt.Sprintf("Index=%d,Type=0,Codec=%s,TimeBase=%d/%d,POS=%d,PTS=%d,DTS=%d,EDI=%d",
		sid, codec, tb.Num, tb.Den, rec.FileOffset, rec.PTS, rec.DTS, rec.ExtradataIndex)); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	key := 0
	if rec.Keyframe {
		key = 1
	}
	return wrapErr(IndexFileIOError, iw.writeLine(fmt.Sprintf("Pic=%s,Key=%d,Width=%d,Height=%d,Format=%s,ColorSpace=0",
		rec.PictureType, key, attrs.Width, attrs.Height, format)))
}

// WriteAudioRecord emits one audio packet's two-line record.
func (iw *IndexWriter) WriteAudioRecord(sid int, codec string, tb TimeBase, rec AudioFrameInfo, attrs AudioAttributes) error {
	if err := iw.writeLine(fmt.Sprintf("Index=%d,Type=1,Codec=%s,TimeBase=%d/%d,POS=%d,PTS=%d,DTS=%d,EDI=%d",
		sid, codec, tb.Num, tb.Den, rec.FileOffset, rec.PTS, rec.DTS, rec.ExtradataIndex)); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	format := attrs.SampleFormat
	if format == "" {
		format = "none"
	}
	return wrapErr(IndexFileIOError, iw.writeLine(fmt.Sprintf("Channels=%d:0x%X,Rate=%d,Format=%s,BPS=%d,Length=%d",
		popcount64(attrs.ChannelLayout), attrs.ChannelLayout, rec.SampleRate, format, attrs.BitsPerSample, rec.Length)))
}

func popcount64(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

// SetActiveVideoStreamIndex back-patches the header field in place; the
// fixed field width guarantees the rewrite never exceeds the reserved span.
func (iw *IndexWriter) SetActiveVideoStreamIndex(idx int) error {
	return iw.backpatch(iw.videoIdxOffset, idx)
}

func (iw *IndexWriter) SetActiveAudioStreamIndex(idx int) error {
	return iw.backpatch(iw.audioIdxOffset, idx)
}

func (iw *IndexWriter) backpatch(offset int64, value int) error {
	if err := iw.bw.Flush(); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	if _, err := iw.w.Seek(offset, io.SeekStart); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	if _, err := io.WriteString(iw.w, formatSignedField(value, activeStreamFieldWidth)); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	if _, err := iw.w.Seek(iw.written, io.SeekStart); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	return nil
}

// CloseLibavReaderIndex closes the `<LibavReaderIndex...>` record section
// (the per-packet records) before the trailer sections are written.
func (iw *IndexWriter) CloseLibavReaderIndex() error {
	return wrapErr(IndexFileIOError, iw.writeLine("</LibavReaderIndex>"))
}

// WriteStreamIndexEntries emits a `<StreamIndexEntries=...>` trailer block.
func (iw *IndexWriter) WriteStreamIndexEntries(sid int, kind StreamKind, entries []StreamIndexEntry) error {
	if err := iw.writeLine(fmt.Sprintf("<StreamIndexEntries=%d,%d,%d>", sid, kind, len(entries))); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	for _, e := range entries {
		if err := iw.writeLine(fmt.Sprintf("POS=%d,TS=%d,Flags=%d,Size=%d,Distance=%d",
			e.Pos, e.TS, e.Flags, e.Size, e.Distance)); err != nil {
			return wrapErr(IndexFileIOError, err)
		}
	}
	return wrapErr(IndexFileIOError, iw.writeLine("</StreamIndexEntries>"))
}

// WriteExtradataList emits an `<ExtraDataList=...>` trailer block.
func (iw *IndexWriter) WriteExtradataList(sid int, kind StreamKind, codec string, codecTag uint32, entries []ExtradataEntry) error {
	if err := iw.writeLine(fmt.Sprintf("<ExtraDataList=%d,%d,%d>", sid, kind, len(entries))); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	for _, e := range entries {
		var header string
		if kind == StreamVideo {
			header = fmt.Sprintf("Size=%d,Codec=%s,4CC=0x%X,Width=%d,Height=%d,Format=%s,BPS=%d",
				len(e.Blob), codec, codecTag, e.Video.Width, e.Video.Height, orNone(e.Video.PixelFormat), 0)
		} else {
			header = fmt.Sprintf("Size=%d,Codec=%s,4CC=0x%X,Layout=0x%X,Rate=%d,Format=%s,BPS=%d,Align=%d",
				len(e.Blob), codec, codecTag, e.Audio.ChannelLayout, e.Audio.SampleRate, orNone(e.Audio.SampleFormat), e.Audio.BitsPerSample, e.Audio.BlockAlign)
		}
		if err := iw.writeLine(header); err != nil {
			return wrapErr(IndexFileIOError, err)
		}
		if err := iw.writeRaw(string(e.Blob)); err != nil {
			return wrapErr(IndexFileIOError, err)
		}
		if err := iw.writeRaw("\n"); err != nil {
			return wrapErr(IndexFileIOError, err)
		}
	}
	return wrapErr(IndexFileIOError, iw.writeLine("</ExtraDataList>"))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// Close writes the closing tag and flushes the underlying writer.
func (iw *IndexWriter) Close() error {
	if err := iw.writeLine("</LibavReaderIndexFile>"); err != nil {
		return wrapErr(IndexFileIOError, err)
	}
	return wrapErr(IndexFileIOError, iw.bw.Flush())
}
