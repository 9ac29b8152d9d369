package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lwindex/lwindex/internal/frameidx"
)

// buildIndex opens path as a RIFF/AVI container through the reference
// demuxer and runs the try-open-else-create policy.
func buildIndex(path string, opts frameidx.Options) (*frameidx.IndexFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &frameidx.Error{Kind: frameidx.ContainerOpenFailed, Cause: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, &frameidx.Error{Kind: frameidx.ContainerOpenFailed, Cause: err}
	}

	demux, err := frameidx.OpenAVI(f, st.Size())
	if err != nil {
		return nil, err
	}

	return frameidx.NewOrchestrator(opts).Open(demux, frameidx.StreamDecoders{})
}

func renderText(path string, idx *frameidx.IndexFile) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", path)
	fmt.Fprintf(&sb, "Format                : %s\n", idx.Container.FormatName)
	fmt.Fprintf(&sb, "Video stream          : %d (%d frames)\n", idx.Container.VideoStreamID, len(idx.VideoFrames))
	fmt.Fprintf(&sb, "Video seek method     : %s\n", idx.VideoSeekFlags)
	fmt.Fprintf(&sb, "Audio stream          : %d (%d frames)\n", idx.Container.AudioStreamID, len(idx.AudioFrames))
	fmt.Fprintf(&sb, "Audio seek method     : %s\n", idx.AudioSeekFlags)
	fmt.Fprintf(&sb, "A/V gap (samples)     : %d\n", idx.Container.AVGap)
	return sb.String()
}

type jsonReport struct {
	File        string `json:"file"`
	Format      string `json:"format"`
	VideoStream int    `json:"video_stream"`
	VideoFrames int    `json:"video_frames"`
	VideoSeek   string `json:"video_seek_method"`
	AudioStream int    `json:"audio_stream"`
	AudioFrames int    `json:"audio_frames"`
	AudioSeek   string `json:"audio_seek_method"`
	AVGap       int64  `json:"av_gap_samples"`
}

func renderJSON(path string, idx *frameidx.IndexFile) string {
	r := jsonReport{
		File:        path,
		Format:      idx.Container.FormatName,
		VideoStream: idx.Container.VideoStreamID,
		VideoFrames: len(idx.VideoFrames),
		VideoSeek:   idx.VideoSeekFlags.String(),
		AudioStream: idx.Container.AudioStreamID,
		AudioFrames: len(idx.AudioFrames),
		AudioSeek:   idx.AudioSeekFlags.String(),
		AVGap:       idx.Container.AVGap,
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
