package cli

import (
	"fmt"
	"io"
)

func Help(program string, stdout io.Writer) {
	Version(stdout)
	fmt.Fprintf(stdout, "Usage: \"%s [-Options...] FileName1 [FileName2...]\"\n", program)
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Options:")
	fmt.Fprintln(stdout, "--help, -h              Display this help and exit")
	fmt.Fprintln(stdout, "--version               Display version information and exit")
	fmt.Fprintln(stdout, "--force-video[=N]       Force election of video stream N (default 0)")
	fmt.Fprintln(stdout, "--force-audio[=N]       Force election of audio stream N (default 0)")
	fmt.Fprintln(stdout, "--av-sync=N             Override the computed A/V gap with N output-audio samples")
	fmt.Fprintln(stdout, "--threads=N             Hint for parser-probe warmup concurrency (default 1)")
	fmt.Fprintln(stdout, "--no-create-index       Scan without writing a sidecar index file")
	fmt.Fprintln(stdout, "--output=TEXT|JSON      Select report format (default TEXT)")
}

func HelpNothing(program string, stdout io.Writer) {
	fmt.Fprintf(stdout, "Usage: \"%s [-Options...] FileName1 [FileName2...]\"\n", program)
	fmt.Fprintf(stdout, "\"%s --help\" for displaying more information\n", program)
}

func HelpOutput(program string, stdout io.Writer) {
	fmt.Fprintln(stdout, "--output=...  Select a report format")
	fmt.Fprintf(stdout, "Usage: \"%s --output=JSON FileName\"\n", program)
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Supported formats: TEXT, JSON")
}

func Usage(program string, stdout io.Writer) int {
	HelpNothing(program, stdout)
	return exitError
}
