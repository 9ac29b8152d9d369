package frameidx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// lineReader wraps a bufio.Reader with line-at-a-time access that preserves
// raw bytes exactly, unlike bufio.Scanner's ScanLines split function (which
// strips a trailing "\r" to support CRLF text files). Extradata blobs are
// raw binary and a stray "\r" byte must round-trip unmolested, so the
// reader mixes readLine (header/record lines) with readExact (raw blob
// bytes) on the same underlying *bufio.Reader.
type lineReader struct {
	r   *bufio.Reader
	eof bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// scan reads the next line (without its trailing "\n"), mirroring
// bufio.Scanner.Scan's (ok, line-available-via-Text) contract.
func (lr *lineReader) scan() (string, bool) {
	if lr.eof {
		return "", false
	}
	line, err := lr.r.ReadString('\n')
	if err != nil {
		lr.eof = true
		if len(line) == 0 {
			return "", false
		}
		return line, true
	}
	return strings.TrimSuffix(line, "\n"), true
}

// readExact reads exactly n raw bytes, with no line-oriented interpretation.
func (lr *lineReader) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(lr.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// indexSemver renders an integer index-file version as a semver.Version with
// that integer as its major number and zero minor/patch parts.
func indexSemver(v int) semver.Version {
	return semver.Version{Major: uint64(v)}
}

// compatibleIndexVersion reports whether an on-disk index of version `have`
// can be consumed by a reader built against `want`; only an exact major
// match is accepted today, since the grammar has no minor-version-compatible
// extension points yet.
func compatibleIndexVersion(have, want int) bool {
	return indexSemver(have).EQ(indexSemver(want))
}

// IndexFile is everything the reader rebuilds from an on-disk index
// without reopening the media: enough to re-run the Seek-Method Decider and
// the A/V Gap Calculator purely from reconstructed data.
type IndexFile struct {
	Version       int
	InputFilePath string
	Container     ContainerInfo

	VideoCodec    string
	VideoTimeBase TimeBase
	VideoFrames   []VideoFrameInfo

	AudioCodec    string
	AudioTimeBase TimeBase
	AudioFrames   []AudioFrameInfo

	VideoExtradata map[int][]ExtradataEntry
	AudioExtradata map[int][]ExtradataEntry
	StreamIndex    map[int][]StreamIndexEntry

	// Decided seek state, filled by the seek-method pass (fresh scan and
	// reopen alike): the trusted axes per stream, decode-order keyframe
	// lists, and the decode-to-presentation map when reordering was
	// observed (1-origin, slot 0 reserved; nil when absent).
	VideoSeekFlags    SeekFlag
	VideoKeyframeList []bool
	OrderConverter    []int
	AudioSeekFlags    SeekFlag
	AudioKeyframeList []bool
}

// applySeekResults installs a seek-method decision onto the index: the
// video frame list may come back in presentation order while the keyframe
// list and order converter stay anchored to decode order.
func (idx *IndexFile) applySeekResults(vr VideoSeekResult, ar AudioSeekResult) {
	idx.VideoFrames = vr.Frames
	idx.VideoSeekFlags = vr.Flags
	idx.VideoKeyframeList = vr.KeyframeList
	idx.OrderConverter = vr.OrderConverter
	idx.AudioSeekFlags = ar.Flags
	idx.AudioKeyframeList = ar.KeyframeList
}

// ReadIndexFile parses an index file. On a version mismatch, a bad file or
// section header, a truncated record, entry list or extradata blob, or a
// missing closing tag it returns a recoverable *Error so the orchestrator can
// fall back to creation. Lines it does not recognise are skipped, and numeric
// fields inside a record that do not parse are not rejected: they take a
// fallback value (UnsetTimestamp for 64-bit fields, zero otherwise).
func ReadIndexFile(r io.Reader) (*IndexFile, error) {
	sc := newLineReader(r)

	idx := &IndexFile{
		VideoExtradata: map[int][]ExtradataEntry{},
		AudioExtradata: map[int][]ExtradataEntry{},
		StreamIndex:    map[int][]StreamIndexEntry{},
	}

	line, ok := sc.scan()
	if !ok {
		return nil, wrapErr(IndexFileMalformed, fmt.Errorf("empty index file"))
	}
	var version int
	if _, err := fmt.Sscanf(line, "<LibavReaderIndexFile=%d>", &version); err != nil {
		return nil, wrapErr(IndexFileMalformed, fmt.Errorf("bad header line %q: %w", line, err))
	}
	idx.Version = version
	if !compatibleIndexVersion(version, IndexFileVersion) {
		return nil, wrapErr(IndexVersionMismatch, fmt.Errorf("have %d, want %d", version, IndexFileVersion))
	}

	for {
		line, ok := sc.scan()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(line, "<InputFilePath>"):
			idx.InputFilePath = strings.TrimSuffix(strings.TrimPrefix(line, "<InputFilePath>"), "</InputFilePath>")

		case strings.HasPrefix(line, "<LibavReaderIndex="):
			body := strings.TrimSuffix(strings.TrimPrefix(line, "<LibavReaderIndex="), ">")
			parts := strings.SplitN(body, ",", 2)
			if len(parts) != 2 {
				return nil, wrapErr(IndexFileMalformed, fmt.Errorf("bad LibavReaderIndex line %q", line))
			}
			flags, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
			if err != nil {
				return nil, wrapErr(IndexFileMalformed, err)
			}
			idx.Container.FormatFlags = uint32(flags)
			idx.Container.FormatName = parts[1]
			if err := readLibavReaderIndexBody(sc, idx); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "<StreamIndexEntries="):
			if err := readStreamIndexEntries(sc, line, idx); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, "<ExtraDataList="):
			if err := readExtradataList(sc, line, idx); err != nil {
				return nil, err
			}

		case line == "</LibavReaderIndexFile>":
			return idx, nil
		}
	}
	return nil, wrapErr(IndexFileMalformed, fmt.Errorf("missing closing tag"))
}

func readLibavReaderIndexBody(sc *lineReader, idx *IndexFile) error {
	for {
		line, ok := sc.scan()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(line, "<ActiveVideoStreamIndex>"):
			v, err := parseActiveStreamLine(line, "ActiveVideoStreamIndex")
			if err != nil {
				return err
			}
			idx.Container.VideoStreamID = v

		case strings.HasPrefix(line, "<ActiveAudioStreamIndex>"):
			v, err := parseActiveStreamLine(line, "ActiveAudioStreamIndex")
			if err != nil {
				return err
			}
			idx.Container.AudioStreamID = v

		case strings.HasPrefix(line, "Index="):
			if err := readPacketRecord(sc, line, idx); err != nil {
				return err
			}

		case line == "</LibavReaderIndex>":
			return nil
		}
	}
	return wrapErr(IndexFileMalformed, fmt.Errorf("unterminated LibavReaderIndex"))
}

func parseActiveStreamLine(line, tag string) (int, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(line, "<"+tag+">"), "</"+tag+">")
	v, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil {
		return 0, wrapErr(IndexFileMalformed, fmt.Errorf("bad %s line %q: %w", tag, line, err))
	}
	return v, nil
}

func readPacketRecord(sc *lineReader, first string, idx *IndexFile) error {
	fields := parseKV(first)
	line, ok := sc.scan()
	if !ok {
		return wrapErr(IndexFileMalformed, fmt.Errorf("truncated record after %q", first))
	}
	second := parseKV(line)

	sid, _ := strconv.Atoi(fields["Index"])
	typ := fields["Type"]
	tb := parseTimeBase(fields["TimeBase"])
	pos := mustInt64(fields["POS"])
	pts := mustInt64(fields["PTS"])
	dts := mustInt64(fields["DTS"])
	edi, _ := strconv.Atoi(fields["EDI"])

	if typ == "0" {
		// Records for a stream that lost a mid-scan election stay in the
		// file; only the finally-active stream's records are rebuilt.
		if sid != idx.Container.VideoStreamID {
			return nil
		}
		idx.VideoCodec = fields["Codec"]
		idx.VideoTimeBase = tb
		width, _ := strconv.Atoi(second["Width"])
		height, _ := strconv.Atoi(second["Height"])
		rec := VideoFrameInfo{
			PTS: pts, DTS: dts, FileOffset: pos,
			SampleNumber:   len(idx.VideoFrames) + 1,
			ExtradataIndex: edi,
			PictureType:    parsePictureType(second["Pic"]),
			Keyframe:       second["Key"] == "1",
		}
		idx.VideoFrames = append(idx.VideoFrames, rec)
		ensureExtradataAttrs(idx.VideoExtradata, sid, edi, func(e *ExtradataEntry) {
			if e.Video.Width == 0 {
				e.Video.Width = width
			}
			if e.Video.Height == 0 {
				e.Video.Height = height
			}
			if e.Video.PixelFormat == "" && second["Format"] != "none" {
				e.Video.PixelFormat = second["Format"]
			}
		})
	} else {
		if sid != idx.Container.AudioStreamID {
			return nil
		}
		idx.AudioCodec = fields["Codec"]
		idx.AudioTimeBase = tb
		rate, _ := strconv.Atoi(second["Rate"])
		bps, _ := strconv.Atoi(second["BPS"])
		length := mustInt64(second["Length"])
		rec := AudioFrameInfo{
			PTS: pts, DTS: dts, FileOffset: pos,
			SampleNumber:   len(idx.AudioFrames) + 1,
			ExtradataIndex: edi,
			SampleRate:     rate,
			Length:         length,
		}
		idx.AudioFrames = append(idx.AudioFrames, rec)
		ensureExtradataAttrs(idx.AudioExtradata, sid, edi, func(e *ExtradataEntry) {
			if e.Audio.SampleRate == 0 {
				e.Audio.SampleRate = rate
			}
			if e.Audio.BitsPerSample == 0 {
				e.Audio.BitsPerSample = bps
			}
		})
	}
	return nil
}

func ensureExtradataAttrs(m map[int][]ExtradataEntry, sid, edi int, fill func(*ExtradataEntry)) {
	list := m[sid]
	for len(list) <= edi {
		list = append(list, ExtradataEntry{})
	}
	fill(&list[edi])
	m[sid] = list
}

func readStreamIndexEntries(sc *lineReader, header string, idx *IndexFile) error {
	body := strings.TrimSuffix(strings.TrimPrefix(header, "<StreamIndexEntries="), ">")
	parts := strings.Split(body, ",")
	if len(parts) != 3 {
		return wrapErr(IndexFileMalformed, fmt.Errorf("bad StreamIndexEntries header %q", header))
	}
	sid, _ := strconv.Atoi(parts[0])
	count, _ := strconv.Atoi(parts[2])

	var entries []StreamIndexEntry
	for i := 0; i < count; i++ {
		line, ok := sc.scan()
		if !ok {
			return wrapErr(IndexFileMalformed, fmt.Errorf("truncated StreamIndexEntries for stream %d", sid))
		}
		kv := parseKV(line)
		entries = append(entries, StreamIndexEntry{
			Pos:      mustInt64(kv["POS"]),
			TS:       mustInt64(kv["TS"]),
			Flags:    mustInt(kv["Flags"]),
			Size:     mustInt(kv["Size"]),
			Distance: mustInt(kv["Distance"]),
		})
	}
	if line, ok := sc.scan(); !ok || line != "</StreamIndexEntries>" {
		return wrapErr(IndexFileMalformed, fmt.Errorf("unterminated StreamIndexEntries for stream %d", sid))
	}
	idx.StreamIndex[sid] = entries
	return nil
}

func readExtradataList(sc *lineReader, header string, idx *IndexFile) error {
	body := strings.TrimSuffix(strings.TrimPrefix(header, "<ExtraDataList="), ">")
	parts := strings.Split(body, ",")
	if len(parts) != 3 {
		return wrapErr(IndexFileMalformed, fmt.Errorf("bad ExtraDataList header %q", header))
	}
	sid, _ := strconv.Atoi(parts[0])
	kind, _ := strconv.Atoi(parts[1])
	count, _ := strconv.Atoi(parts[2])

	dst := idx.VideoExtradata
	if StreamKind(kind) == StreamAudio {
		dst = idx.AudioExtradata
	}
	existing := dst[sid]

	for i := 0; i < count; i++ {
		line, ok := sc.scan()
		if !ok {
			return wrapErr(IndexFileMalformed, fmt.Errorf("truncated ExtraDataList for stream %d", sid))
		}
		hdr := parseKV(line)
		size, _ := strconv.Atoi(hdr["Size"])
		blob, err := sc.readExact(size)
		if err != nil {
			return wrapErr(IndexFileMalformed, fmt.Errorf("truncated extradata blob for stream %d: %w", sid, err))
		}
		if _, err := sc.readExact(1); err != nil { // trailing '\n' after the raw blob
			return wrapErr(IndexFileMalformed, fmt.Errorf("missing extradata blob terminator for stream %d: %w", sid, err))
		}
		var entry ExtradataEntry
		if i < len(existing) {
			entry = existing[i]
		}
		entry.Blob = blob
		tag, _ := strconv.ParseUint(strings.TrimPrefix(hdr["4CC"], "0x"), 16, 32)
		if StreamKind(kind) == StreamVideo {
			w, _ := strconv.Atoi(hdr["Width"])
			h, _ := strconv.Atoi(hdr["Height"])
			entry.Video.CodecID = hdr["Codec"]
			entry.Video.CodecTag = uint32(tag)
			entry.Video.Width = w
			entry.Video.Height = h
			if hdr["Format"] != "none" {
				entry.Video.PixelFormat = hdr["Format"]
			}
		} else {
			rate, _ := strconv.Atoi(hdr["Rate"])
			bps, _ := strconv.Atoi(hdr["BPS"])
			align, _ := strconv.Atoi(hdr["Align"])
			layout, _ := strconv.ParseUint(strings.TrimPrefix(hdr["Layout"], "0x"), 16, 64)
			entry.Audio.CodecID = hdr["Codec"]
			entry.Audio.CodecTag = uint32(tag)
			entry.Audio.ChannelLayout = layout
			entry.Audio.SampleRate = rate
			entry.Audio.BitsPerSample = bps
			entry.Audio.BlockAlign = align
			if hdr["Format"] != "none" {
				entry.Audio.SampleFormat = hdr["Format"]
			}
		}
		if i < len(existing) {
			existing[i] = entry
		} else {
			existing = append(existing, entry)
		}
	}
	dst[sid] = existing
	return nil
}

func parseKV(line string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(line, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func parseTimeBase(s string) TimeBase {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return TimeBase{}
	}
	num, _ := strconv.Atoi(parts[0])
	den, _ := strconv.Atoi(parts[1])
	return TimeBase{Num: num, Den: den}
}

func mustInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return UnsetTimestamp
	}
	return v
}

func mustInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
