package shell

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const markerAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FrameFactory mints unique output frames for one session. The session token
// is high-entropy and the sequence number is monotonic, so no two frames in a
// session share sentinels.
type FrameFactory struct {
	token string
	seq   atomic.Uint64
}

// NewFrameFactory creates a frame factory with a fresh session token
func NewFrameFactory() (*FrameFactory, error) {
	token, err := gonanoid.Generate(markerAlphabet, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate frame token: %w", err)
	}
	return &FrameFactory{token: token}, nil
}

// Next returns the frame for the next command
func (f *FrameFactory) Next() Frame {
	seq := f.seq.Add(1)
	return Frame{
		StartMarker: fmt.Sprintf("__VESPER_BEGIN_%s_%d__", f.token, seq),
		EndMarker:   fmt.Sprintf("__VESPER_END_%s_%d__", f.token, seq),
	}
}

// Frame is a pair of sentinel strings delimiting one command's output on both
// streams. The end sentinel on stdout is followed by the command exit code.
type Frame struct {
	// StartMarker is echoed to both streams before the command runs
	StartMarker string

	// EndMarker is echoed to both streams after the command finishes
	EndMarker string
}

// Compose returns the shell input for one framed command: the start sentinel
// echoes, the command text, and the end sentinel echoes carrying "$?". The
// exit code reference is the first word after the command, so it reflects the
// command and nothing else.
func (fr Frame) Compose(command string) string {
	var b strings.Builder
	b.WriteString("printf '%s\\n' '" + fr.StartMarker + "'\n")
	b.WriteString("printf '%s\\n' '" + fr.StartMarker + "' 1>&2\n")
	b.WriteString(command)
	b.WriteString("\nprintf '%s %s\\n' '" + fr.EndMarker + "' \"$?\"\n")
	b.WriteString("printf '%s\\n' '" + fr.EndMarker + "' 1>&2\n")
	return b.String()
}

// Extract locates this frame in the accumulated stream contents. It returns
// complete=false while the frame has not fully arrived, which is the normal
// in-progress state, and ErrCorruptFrame when the exit code after the end
// sentinel is not numeric.
func (fr Frame) Extract(stdout, stderr string) (FramedOutput, bool, error) {
	outBody, code, outDone, err := fr.extractStdout(stdout)
	if err != nil {
		return FramedOutput{}, false, err
	}
	errBody, errDone := fr.extractStream(stderr)
	if !outDone || !errDone {
		return FramedOutput{}, false, nil
	}
	return FramedOutput{Stdout: outBody, Stderr: errBody, ExitCode: code}, true, nil
}

// ExtractPartial returns whatever body has arrived after the start sentinels,
// for reporting output of a command that timed out mid-flight
func (fr Frame) ExtractPartial(stdout, stderr string) (string, string) {
	return fr.partial(stdout), fr.partial(stderr)
}

func (fr Frame) extractStdout(stream string) (body string, code int, complete bool, err error) {
	body, rest, ok := fr.between(stream)
	if !ok {
		return "", 0, false, nil
	}
	// Exit code is the text between the end sentinel and the next newline.
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", 0, false, nil
	}
	raw := strings.TrimSpace(rest[:nl])
	code, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return "", 0, false, fmt.Errorf("exit code %q after end sentinel: %w", raw, ErrCorruptFrame)
	}
	return body, code, true, nil
}

func (fr Frame) extractStream(stream string) (string, bool) {
	body, _, ok := fr.between(stream)
	return body, ok
}

// between returns the text strictly between the start sentinel line and the
// end sentinel, plus the remainder after the end sentinel
func (fr Frame) between(stream string) (body, rest string, ok bool) {
	start := strings.Index(stream, fr.StartMarker)
	if start < 0 {
		return "", "", false
	}
	afterStart := stream[start+len(fr.StartMarker):]
	nl := strings.IndexByte(afterStart, '\n')
	if nl < 0 {
		return "", "", false
	}
	afterStart = afterStart[nl+1:]
	end := strings.Index(afterStart, fr.EndMarker)
	if end < 0 {
		return "", "", false
	}
	return afterStart[:end], afterStart[end+len(fr.EndMarker):], true
}

func (fr Frame) partial(stream string) string {
	start := strings.Index(stream, fr.StartMarker)
	if start < 0 {
		return ""
	}
	after := stream[start+len(fr.StartMarker):]
	nl := strings.IndexByte(after, '\n')
	if nl < 0 {
		return ""
	}
	after = after[nl+1:]
	if end := strings.Index(after, fr.EndMarker); end >= 0 {
		after = after[:end]
	}
	return after
}
