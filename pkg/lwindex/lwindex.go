// Package lwindex is the public proxy for the frame-indexing engine in
// internal/frameidx: it exposes just enough surface for a caller embedding
// this module to build or reopen a sidecar index without reaching into
// internal packages.
package lwindex

import (
	"os"

	"github.com/lwindex/lwindex/internal/frameidx"
)

type (
	Options        = frameidx.Options
	IndexFile      = frameidx.IndexFile
	VideoFrameInfo = frameidx.VideoFrameInfo
	AudioFrameInfo = frameidx.AudioFrameInfo
	ContainerInfo  = frameidx.ContainerInfo
	TimeBase       = frameidx.TimeBase
	StreamDecoders = frameidx.StreamDecoders
	Demuxer        = frameidx.Demuxer
	StreamParams   = frameidx.StreamParams
	Packet         = frameidx.Packet
	SeekFlag       = frameidx.SeekFlag
	PictureType    = frameidx.PictureType
	Error          = frameidx.Error
	ErrorKind      = frameidx.ErrorKind
)

// Seek-axis flags decided per stream.
const (
	SeekPTS           = frameidx.SeekPTS
	SeekDTS           = frameidx.SeekDTS
	SeekPOS           = frameidx.SeekPOS
	SeekPOSCorrection = frameidx.SeekPOSCorrection
	SeekPTSGenerated  = frameidx.SeekPTSGenerated
)

// DefaultOptions returns the zero-value-filled Options for path, per the
// engine's normalizeOptions contract.
func DefaultOptions(path string) Options {
	return frameidx.DefaultOptions(path)
}

// Open tries the existing "<path>.lwi" sidecar index and falls back to a
// fresh scan via demux when it is missing, stale, or version-mismatched.
func Open(demux Demuxer, decoders StreamDecoders, opts Options) (*IndexFile, error) {
	return frameidx.NewOrchestrator(opts).Open(demux, decoders)
}

// OpenAVIFile is a convenience entry point for RIFF/AVI media: it opens the
// file, wraps it in the reference AVI demuxer, and runs Open.
func OpenAVIFile(path string, opts Options) (*IndexFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &frameidx.Error{Kind: frameidx.ContainerOpenFailed, Cause: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	demux, err := frameidx.OpenAVI(f, st.Size())
	if err != nil {
		return nil, err
	}

	opts.FilePath = path
	return frameidx.NewOrchestrator(opts).Open(demux, StreamDecoders{})
}
