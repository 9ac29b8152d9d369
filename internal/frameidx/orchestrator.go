package frameidx

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// Options are the orchestrator's external knobs.
type Options struct {
	FilePath        string
	ForceVideo      bool
	ForceVideoIndex int
	ForceAudio      bool
	ForceAudioIndex int
	AVSync          int64 // overrides the computed A/V gap when non-zero
	Threads         int
	NoCreateIndex   bool

	// OnProgress is invoked between packets during a scan with the number
	// of packets consumed so far; returning true cancels the scan. A
	// cancelled scan removes its half-written sidecar and reports
	// CancelledByUser.
	OnProgress func(packetsScanned int) bool
}

// DefaultOptions is the single source of truth for zero-value fill-in,
// paired with normalizeOptions below.
func DefaultOptions(filePath string) Options {
	return Options{FilePath: filePath, ForceVideoIndex: -1, ForceAudioIndex: -1, Threads: 1}
}

func normalizeOptions(opts Options) Options {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if !opts.ForceVideo {
		opts.ForceVideoIndex = -1
	}
	if !opts.ForceAudio {
		opts.ForceAudioIndex = -1
	}
	return opts
}

// formatFlagByteSeekable records, in the index header's flag word, whether
// the container supported byte-offset seeking at scan time, so a reopen can
// re-run the seek decision without the live container.
const formatFlagByteSeekable = 0x1

// Orchestrator owns the try-open-else-create policy and the lifetimes of the
// per-stream parser probes and extradata trackers it creates along the way.
type Orchestrator struct {
	opts Options
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{opts: normalizeOptions(opts)}
}

// indexSidecarPath is "<path>.lwi".
func indexSidecarPath(mediaPath string) string {
	return mediaPath + ".lwi"
}

// Open tries the existing sidecar index first; on any recoverable failure
// (parse error, version mismatch, stale forced-stream state) it falls back
// to a fresh scan via demux.
func (o *Orchestrator) Open(demux Demuxer, decoders StreamDecoders) (*IndexFile, error) {
	if idx, err := o.tryReopen(); err == nil {
		return idx, nil
	} else if !recoverable(err) {
		return nil, err
	}
	return o.Create(demux, decoders)
}

func (o *Orchestrator) tryReopen() (*IndexFile, error) {
	f, err := os.Open(indexSidecarPath(o.opts.FilePath))
	if err != nil {
		return nil, wrapErr(IndexFileMalformed, err)
	}
	defer f.Close()

	idx, err := ReadIndexFile(f)
	if err != nil {
		return nil, err
	}
	if err := o.validateForcedStreams(idx); err != nil {
		return nil, err
	}

	recomputeFromIndex(idx)
	if o.opts.AVSync != 0 {
		idx.Container.AVGap = o.opts.AVSync
	}
	return idx, nil
}

// validateForcedStreams treats the existing index as stale when a forced
// stream's recorded state is incomplete: no samples, or (for video) no
// pixel format on any of its parameter sets.
func (o *Orchestrator) validateForcedStreams(idx *IndexFile) error {
	if o.opts.ForceVideo {
		if len(idx.VideoFrames) == 0 {
			return wrapErr(IndexFileMalformed, errors.New("forced video stream has no samples"))
		}
		sid := o.opts.ForceVideoIndex
		if sid < 0 {
			sid = idx.Container.VideoStreamID
		}
		complete := false
		for _, e := range idx.VideoExtradata[sid] {
			if e.Video.PixelFormat != "" {
				complete = true
				break
			}
		}
		if !complete {
			return wrapErr(IndexFileMalformed, errors.New("forced video stream missing pixel format"))
		}
	}
	if o.opts.ForceAudio && len(idx.AudioFrames) == 0 {
		return wrapErr(IndexFileMalformed, errors.New("forced audio stream has no samples"))
	}
	return nil
}

// recomputeFromIndex re-runs the seek-method decision and the A/V gap purely
// from the reconstructed index data, never from the live container, so
// reopening behaves identically to a fresh scan.
func recomputeFromIndex(idx *IndexFile) {
	byteSeekable := idx.Container.FormatFlags&formatFlagByteSeekable != 0
	codec := codecKindFromName(idx.VideoCodec)

	vr := decideVideoSeekMethod(idx.VideoFrames, idx.Container.FormatName, byteSeekable, codec)
	ar := decideAudioSeekMethod(idx.AudioFrames, byteSeekable)
	idx.applySeekResults(vr, ar)

	outputSampleRate := idx.AudioTimeBase.Den
	if len(idx.AudioFrames) > 0 && idx.AudioFrames[0].SampleRate > 0 {
		outputSampleRate = idx.AudioFrames[0].SampleRate
	}
	idx.Container.AVGap = computeAVGap(
		idx.VideoFrames, idx.VideoTimeBase, vr.Flags.Has(SeekPTS),
		idx.AudioFrames, idx.AudioTimeBase, ar.Flags.Has(SeekPTS),
		outputSampleRate)
}

// StreamDecoders supplies the narrow decode-probe escape hatches the Parser
// Probe needs, keyed by stream index.
type StreamDecoders struct {
	Video map[int]VideoDecoder
	Audio map[int]AudioDecoder
}

// splitterFor picks the extradata tracker's splitter for a stream: H.264
// parsers can cut a leading SPS/PPS block out of a payload; every other
// codec only has the context's extradata to offer.
func splitterFor(s StreamParams) extradataSplitter {
	if s.Codec == CodecH264 {
		return h264Splitter{extradata: s.Extradata}
	}
	return contextSplitter{extradata: s.Extradata}
}

// Create scans every packet, elects streams, tracks extradata, derives
// picture types, decides seek methods, computes the A/V gap, and (unless
// NoCreateIndex) streams a sidecar index file alongside the scan.
func (o *Orchestrator) Create(demux Demuxer, decoders StreamDecoders) (*IndexFile, error) {
	streams := demux.Streams()
	byStream := map[int]StreamParams{}
	probes := map[int]*parserProbe{}
	extradata := map[int]*extradataTracker{}
	splitters := map[int]extradataSplitter{}
	for _, s := range streams {
		byStream[s.Index] = s
		probes[s.Index] = newParserProbe(s, decoders.Video[s.Index], decoders.Audio[s.Index])
		extradata[s.Index] = newExtradataTracker()
		splitters[s.Index] = splitterFor(s)
	}

	o.warmupDecoders(decoders)

	formatFlags := uint32(0)
	if demux.ByteSeekable() {
		formatFlags |= formatFlagByteSeekable
	}

	acc := newAccumulator(o.opts.ForceVideoIndex, o.opts.ForceAudioIndex)
	var writer *IndexWriter
	var sidecarFile *os.File
	if !o.opts.NoCreateIndex {
		f, err := os.Create(indexSidecarPath(o.opts.FilePath))
		if err != nil {
			return nil, wrapErr(IndexFileIOError, err)
		}
		sidecarFile = f
		w, err := NewIndexWriter(f, o.opts.FilePath, ContainerInfo{
			FormatName: demux.FormatName(), FormatFlags: formatFlags, Threads: o.opts.Threads,
			VideoStreamID: -1, AudioStreamID: -1,
		})
		if err != nil {
			return nil, o.abortScan(f, err)
		}
		writer = w
	}
	if sidecarFile != nil {
		defer sidecarFile.Close()
	}

	videoElectedBefore := -1
	audioElectedBefore := -1
	packets := 0

	for {
		if o.opts.OnProgress != nil && o.opts.OnProgress(packets) {
			return nil, o.abortScan(sidecarFile, wrapErr(CancelledByUser, errors.New("scan cancelled")))
		}
		pkt, err := demux.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, o.abortScan(sidecarFile, wrapErr(DemuxReadFailed, err))
		}
		packets++

		stream, ok := byStream[pkt.StreamIndex]
		if !ok {
			continue
		}

		tracker := extradata[pkt.StreamIndex]
		probe := probes[pkt.StreamIndex]

		switch stream.Kind {
		case StreamVideo:
			isDV := stream.Codec == CodecDVVideo
			if !acc.considerVideoStream(pkt.StreamIndex, stream.Width, stream.Height, isDV) {
				continue
			}
			if acc.videoStreamID != videoElectedBefore && writer != nil {
				videoElectedBefore = acc.videoStreamID
				if err := writer.SetActiveVideoStreamIndex(acc.videoStreamID); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}
			edi := tracker.appendIfNew(&pkt, splitters[pkt.StreamIndex])
			fillVideoEntryAttributes(tracker, edi, stream)
			pict := probe.derivePictureType(&pkt)
			rec := VideoFrameInfo{
				PTS: pkt.PTS, DTS: pkt.DTS, FileOffset: pkt.Pos,
				ExtradataIndex: edi, PictureType: pict, Keyframe: pkt.Key,
			}
			acc.appendVideo(rec)
			if writer != nil {
				attrs := tracker.entries[edi].Video
				if err := writer.WriteVideoRecord(pkt.StreamIndex, codecName(stream.Codec), TimeBase{stream.TimeBaseNum, stream.TimeBaseDen}, rec, attrs); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}

		case StreamAudio:
			if !acc.considerAudioStream(pkt.StreamIndex) {
				continue
			}
			if acc.audioStreamID != audioElectedBefore && writer != nil {
				audioElectedBefore = acc.audioStreamID
				if err := writer.SetActiveAudioStreamIndex(acc.audioStreamID); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}
			edi := tracker.appendIfNew(&pkt, splitters[pkt.StreamIndex])
			tracker.fillAudioAttributes(edi, AudioAttributes{
				CodecID: codecName(stream.Codec), CodecTag: stream.CodecTag,
				ChannelLayout: stream.ChannelLayout, SampleRate: stream.SampleRate,
				SampleFormat: stream.SampleFormat, BitsPerSample: stream.BitsPerSample,
				BlockAlign: stream.BlockAlign,
			})
			// Fixed-block codecs (PCM family) expose the packet's sample
			// count directly through the block alignment, the same figure a
			// codec parser would report as the packet duration.
			parserDuration := int64(-1)
			if stream.BlockAlign > 0 {
				parserDuration = int64(pkt.Size / stream.BlockAlign)
			}
			length := probe.deriveAudioLength(pkt, parserDuration, stream.FrameSize)
			rec := AudioFrameInfo{
				PTS: pkt.PTS, DTS: pkt.DTS, FileOffset: pkt.Pos,
				ExtradataIndex: edi, SampleRate: stream.SampleRate, Length: length,
				Keyframe: pkt.Key,
			}
			acc.appendAudio(rec)
			if writer != nil {
				attrs := tracker.entries[edi].Audio
				if err := writer.WriteAudioRecord(pkt.StreamIndex, codecName(stream.Codec), TimeBase{stream.TimeBaseNum, stream.TimeBaseDen}, rec, attrs); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}
		}
	}

	// Flush outstanding decoder delay on the elected audio stream: each
	// drained frame becomes a synthetic record so the indexed frame count
	// reconciles with the total decoded sample count.
	if acc.audioStreamID >= 0 {
		if probe := probes[acc.audioStreamID]; probe != nil {
			s := byStream[acc.audioStreamID]
			tracker := extradata[acc.audioStreamID]
			edi := tracker.currentIndex
			if edi < 0 {
				edi = 0
			}
			for _, n := range probe.drainAudioDelay() {
				rec := AudioFrameInfo{
					PTS: UnsetTimestamp, DTS: UnsetTimestamp, FileOffset: UnsetOffset,
					ExtradataIndex: edi, SampleRate: s.SampleRate, Length: n,
				}
				acc.appendAudio(rec)
				if writer != nil {
					attrs := tracker.entries[edi].Audio
					if err := writer.WriteAudioRecord(acc.audioStreamID, codecName(s.Codec), TimeBase{s.TimeBaseNum, s.TimeBaseDen}, rec, attrs); err != nil {
						return nil, o.abortScan(sidecarFile, err)
					}
				}
			}
		}
	}

	// DV-in-AVI Type-1: the audio lives inside the video stream, so when
	// the container declared no audio of its own, mirror the video records
	// one-to-one.
	if acc.dvInAVI && len(acc.audio) == 0 {
		acc.synthesizeAudioFromVideo()
		acc.audioStreamID = acc.videoStreamID
		if writer != nil {
			if err := writer.SetActiveAudioStreamIndex(acc.audioStreamID); err != nil {
				return nil, o.abortScan(sidecarFile, err)
			}
			s := byStream[acc.audioStreamID]
			tracker := extradata[acc.audioStreamID]
			for _, rec := range acc.audio {
				attrs := tracker.entries[rec.ExtradataIndex].Audio
				if err := writer.WriteAudioRecord(acc.audioStreamID, codecName(s.Codec), TimeBase{s.TimeBaseNum, s.TimeBaseDen}, rec, attrs); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}
		}
		// A caller that forced video without naming a stream wants only the
		// embedded audio out of a DV file; drop the video side once the
		// mirror records exist.
		if o.opts.ForceVideo && o.opts.ForceVideoIndex < 0 {
			acc.videoStreamID = -1
			acc.video = nil
			if writer != nil {
				if err := writer.SetActiveVideoStreamIndex(-1); err != nil {
					return nil, o.abortScan(sidecarFile, err)
				}
			}
		}
	}

	videoCodec := CodecOther
	if s, ok := byStream[acc.videoStreamID]; ok {
		videoCodec = s.Codec
	}
	formatName := demux.FormatName()
	vr := decideVideoSeekMethod(acc.video, formatName, demux.ByteSeekable(), videoCodec)
	ar := decideAudioSeekMethod(acc.audio, demux.ByteSeekable())
	acc.video = vr.Frames

	videoTB := TimeBase{}
	if s, ok := byStream[acc.videoStreamID]; ok {
		videoTB = TimeBase{s.TimeBaseNum, s.TimeBaseDen}
	}
	audioTB := TimeBase{}
	audioSampleRate := 0
	if s, ok := byStream[acc.audioStreamID]; ok {
		audioTB = TimeBase{s.TimeBaseNum, s.TimeBaseDen}
		audioSampleRate = s.SampleRate
	}
	gap := computeAVGap(acc.video, videoTB, vr.Flags.Has(SeekPTS), acc.audio, audioTB, ar.Flags.Has(SeekPTS), audioSampleRate)
	if o.opts.AVSync != 0 {
		gap = o.opts.AVSync
	}

	nativeIndex := map[int][]StreamIndexEntry{}
	if ni, ok := demux.(NativeIndexer); ok {
		nativeIndex = ni.NativeIndexEntries()
	}

	if writer != nil {
		if err := writer.CloseLibavReaderIndex(); err != nil {
			return nil, o.abortScan(sidecarFile, err)
		}
		for _, s := range streams {
			entries := nativeIndex[s.Index]
			if len(entries) == 0 {
				continue
			}
			if err := writer.WriteStreamIndexEntries(s.Index, s.Kind, entries); err != nil {
				return nil, o.abortScan(sidecarFile, err)
			}
		}
		if s, ok := byStream[acc.videoStreamID]; ok {
			if err := writer.WriteExtradataList(acc.videoStreamID, StreamVideo, codecName(s.Codec), s.CodecTag, extradata[acc.videoStreamID].entries); err != nil {
				return nil, o.abortScan(sidecarFile, err)
			}
		}
		if s, ok := byStream[acc.audioStreamID]; ok && acc.audioStreamID != acc.videoStreamID {
			if err := writer.WriteExtradataList(acc.audioStreamID, StreamAudio, codecName(s.Codec), s.CodecTag, extradata[acc.audioStreamID].entries); err != nil {
				return nil, o.abortScan(sidecarFile, err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, o.abortScan(sidecarFile, err)
		}
	}

	result := &IndexFile{
		Version:       IndexFileVersion,
		InputFilePath: o.opts.FilePath,
		Container: ContainerInfo{
			FormatName:    formatName,
			FormatFlags:   formatFlags,
			VideoStreamID: acc.videoStreamID,
			AudioStreamID: acc.audioStreamID,
			AVGap:         gap,
			Threads:       o.opts.Threads,
		},
		VideoCodec:     codecName(videoCodec),
		VideoTimeBase:  videoTB,
		VideoFrames:    acc.video,
		AudioTimeBase:  audioTB,
		AudioFrames:    acc.audio,
		VideoExtradata: map[int][]ExtradataEntry{},
		AudioExtradata: map[int][]ExtradataEntry{},
		StreamIndex:    nativeIndex,
	}
	result.applySeekResults(vr, ar)
	if acc.videoStreamID >= 0 {
		if tr, ok := extradata[acc.videoStreamID]; ok {
			result.VideoExtradata[acc.videoStreamID] = tr.entries
		}
	}
	if acc.audioStreamID >= 0 {
		if tr, ok := extradata[acc.audioStreamID]; ok {
			result.AudioExtradata[acc.audioStreamID] = tr.entries
		}
	}
	if s, ok := byStream[acc.audioStreamID]; ok {
		result.AudioCodec = codecName(s.Codec)
	}
	return result, nil
}

// abortScan closes and removes the half-written sidecar so a later run
// cannot mistake it for a usable index, then hands back err unchanged.
func (o *Orchestrator) abortScan(f *os.File, err error) error {
	if f != nil {
		name := f.Name()
		f.Close()
		os.Remove(name)
	}
	return err
}

// fillVideoEntryAttributes lazily completes a video parameter set's decoded
// attributes from whatever is known at packet time: the demuxer's stream
// parameters first, then coded dimensions parsed out of the blob itself.
func fillVideoEntryAttributes(tr *extradataTracker, edi int, s StreamParams) {
	attrs := VideoAttributes{
		CodecID: codecName(s.Codec), CodecTag: s.CodecTag,
		Width: s.Width, Height: s.Height, PixelFormat: s.PixelFormat,
	}
	if attrs.Width == 0 || attrs.Height == 0 {
		blob := tr.entries[edi].Blob
		switch s.Codec {
		case CodecH264:
			if w, h := h264SPSDimensions(blob); w > 0 && h > 0 {
				attrs.Width, attrs.Height = w, h
			}
		case CodecVC1:
			if seq := parseVC1SequenceHeader(blob); seq.ok {
				attrs.Width, attrs.Height = seq.Width, seq.Height
			}
		}
	}
	tr.fillVideoAttributes(edi, attrs)
}

// warmupDecoders pre-initializes every supplied video decoder concurrently
// when the caller has asked for more than one thread. The scan loop itself
// stays single-threaded against the demuxer; this only overlaps the
// (potentially expensive) external decoder setup that precedes it.
func (o *Orchestrator) warmupDecoders(decoders StreamDecoders) {
	if o.opts.Threads <= 1 {
		return
	}
	var g errgroup.Group
	for _, vd := range decoders.Video {
		vd := vd
		g.Go(func() error {
			vd.Flush()
			return nil
		})
	}
	_ = g.Wait()
}

func codecName(c CodecKind) string {
	switch c {
	case CodecMPEG1Video:
		return "mpeg1video"
	case CodecMPEG2Video:
		return "mpeg2video"
	case CodecVC1:
		return "vc1"
	case CodecWMV3:
		return "wmv3"
	case CodecH264:
		return "h264"
	case CodecDVVideo:
		return "dvvideo"
	default:
		return "unknown"
	}
}

func codecKindFromName(name string) CodecKind {
	switch name {
	case "mpeg1video":
		return CodecMPEG1Video
	case "mpeg2video":
		return CodecMPEG2Video
	case "vc1":
		return CodecVC1
	case "wmv3":
		return CodecWMV3
	case "h264":
		return CodecH264
	case "dvvideo":
		return CodecDVVideo
	default:
		return CodecOther
	}
}
