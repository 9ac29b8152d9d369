package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/lwindex/lwindex/internal/frameidx"
)

const (
	exitOK    = 0
	exitError = 1
)

// Options mirrors the hand-rolled flag surface this CLI accepts.
type Options struct {
	ForceVideo      bool
	ForceVideoIndex int
	ForceAudio      bool
	ForceAudioIndex int
	AVSync          int64
	Threads         int
	NoCreateIndex   bool
	Output          string
}

// Run parses args (args[0] is the program name, matching os.Args) and
// returns a process exit code; it never calls os.Exit itself so callers can
// test it directly.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		return exitError
	}

	program := programName(args[0])
	var opts Options
	var files []string

	for i := 1; i < len(args); i++ {
		original := args[i]
		normalized := normalizeArg(original)

		switch {
		case normalized == "--version":
			Version(stdout)
			return exitOK
		case normalized == "--help" || normalized == "-h":
			Help(program, stdout)
			return exitOK
		case normalized == "--force-video" || strings.HasPrefix(normalized, "--force-video="):
			opts.ForceVideo = true
			opts.ForceVideoIndex = intValueAfterEqual(original, 0)
		case normalized == "--force-audio" || strings.HasPrefix(normalized, "--force-audio="):
			opts.ForceAudio = true
			opts.ForceAudioIndex = intValueAfterEqual(original, 0)
		case strings.HasPrefix(normalized, "--av-sync="):
			if value, ok := valueAfterEqual(original); ok {
				if n, err := strconv.ParseInt(value, 10, 64); err == nil {
					opts.AVSync = n
				}
			}
		case strings.HasPrefix(normalized, "--threads="):
			opts.Threads = intValueAfterEqual(original, 1)
		case normalized == "--no-create-index":
			opts.NoCreateIndex = true
		case strings.HasPrefix(normalized, "--output="):
			if value, ok := valueAfterEqual(original); ok {
				opts.Output = value
			} else {
				HelpOutput(program, stdout)
				return exitError
			}
		default:
			files = append(files, original)
		}
	}

	if len(files) == 0 {
		return Usage(program, stdout)
	}

	out, count, err := runCore(opts, files)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	if out != "" {
		fmt.Fprintln(stdout, out)
	}
	if count > 0 {
		return exitOK
	}
	return exitError
}

func programName(arg0 string) string {
	name := filepath.Base(arg0)
	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}

func normalizeArg(arg string) string {
	eq := strings.IndexByte(arg, '=')
	if eq == -1 {
		eq = len(arg)
	}
	return strings.ToLower(arg[:eq]) + arg[eq:]
}

func valueAfterEqual(arg string) (string, bool) {
	_, after, ok := strings.Cut(arg, "=")
	return after, ok
}

func intValueAfterEqual(arg string, fallback int) int {
	value, ok := valueAfterEqual(arg)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func runCore(opts Options, files []string) (string, int, error) {
	outputName := strings.ToUpper(strings.TrimSpace(opts.Output))
	switch outputName {
	case "", "TEXT", "JSON":
	default:
		return "", 0, fmt.Errorf("output format not implemented: %s", opts.Output)
	}

	var sb strings.Builder
	count := 0
	for _, path := range files {
		fopts := frameidx.DefaultOptions(path)
		fopts.ForceVideo = opts.ForceVideo
		fopts.ForceVideoIndex = opts.ForceVideoIndex
		fopts.ForceAudio = opts.ForceAudio
		fopts.ForceAudioIndex = opts.ForceAudioIndex
		fopts.AVSync = opts.AVSync
		if opts.Threads > 0 {
			fopts.Threads = opts.Threads
		}
		fopts.NoCreateIndex = opts.NoCreateIndex

		idx, err := buildIndex(path, fopts)
		if err != nil {
			return "", count, err
		}
		count++

		if strings.EqualFold(opts.Output, "JSON") {
			sb.WriteString(renderJSON(path, idx))
		} else {
			sb.WriteString(renderText(path, idx))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), count, nil
}
