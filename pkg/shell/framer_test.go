package shell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFactoryUniqueSentinels(t *testing.T) {
	f, err := NewFrameFactory()
	require.NoError(t, err)

	a := f.Next()
	b := f.Next()

	assert.NotEqual(t, a.StartMarker, a.EndMarker)
	assert.NotEqual(t, a.StartMarker, b.StartMarker)
	assert.NotEqual(t, a.EndMarker, b.EndMarker)
}

func TestFrameFactoryTokensDifferAcrossSessions(t *testing.T) {
	f1, err := NewFrameFactory()
	require.NoError(t, err)
	f2, err := NewFrameFactory()
	require.NoError(t, err)

	assert.NotEqual(t, f1.Next().StartMarker, f2.Next().StartMarker)
}

func TestFrameCompose(t *testing.T) {
	f, err := NewFrameFactory()
	require.NoError(t, err)
	fr := f.Next()

	script := fr.Compose("echo hello")

	assert.Contains(t, script, fr.StartMarker)
	assert.Contains(t, script, fr.EndMarker)
	assert.Contains(t, script, "echo hello\n")
	assert.Contains(t, script, `"$?"`)
	// Start sentinels must precede the command, end sentinels must follow it.
	assert.Less(t, strings.Index(script, fr.StartMarker), strings.Index(script, "echo hello"))
	assert.Greater(t, strings.Index(script, fr.EndMarker), strings.Index(script, "echo hello"))
}

func TestFrameExtract(t *testing.T) {
	fr := Frame{
		StartMarker: "__VESPER_BEGIN_tok_1__",
		EndMarker:   "__VESPER_END_tok_1__",
	}

	tests := []struct {
		name         string
		stdout       string
		stderr       string
		wantComplete bool
		wantErr      error
		wantStdout   string
		wantStderr   string
		wantExitCode int
	}{
		{
			name:         "complete frame",
			stdout:       fr.StartMarker + "\nhello\n" + fr.EndMarker + " 0\n",
			stderr:       fr.StartMarker + "\n" + fr.EndMarker + "\n",
			wantComplete: true,
			wantStdout:   "hello\n",
			wantStderr:   "",
			wantExitCode: 0,
		},
		{
			name:         "nonzero exit code",
			stdout:       fr.StartMarker + "\n" + fr.EndMarker + " 7\n",
			stderr:       fr.StartMarker + "\nboom\n" + fr.EndMarker + "\n",
			wantComplete: true,
			wantStdout:   "",
			wantStderr:   "boom\n",
			wantExitCode: 7,
		},
		{
			name:         "noise before start sentinel is ignored",
			stdout:       "late straggler output\n" + fr.StartMarker + "\nhello\n" + fr.EndMarker + " 0\n",
			stderr:       fr.StartMarker + "\n" + fr.EndMarker + "\n",
			wantComplete: true,
			wantStdout:   "hello\n",
			wantExitCode: 0,
		},
		{
			name:         "output without trailing newline is preserved",
			stdout:       fr.StartMarker + "\nraw" + fr.EndMarker + " 0\n",
			stderr:       fr.StartMarker + "\n" + fr.EndMarker + "\n",
			wantComplete: true,
			wantStdout:   "raw",
			wantExitCode: 0,
		},
		{
			name:   "no output yet",
			stdout: "",
			stderr: "",
		},
		{
			name:   "end sentinel not yet arrived",
			stdout: fr.StartMarker + "\npartial out",
			stderr: fr.StartMarker + "\n",
		},
		{
			name:   "exit code still in flight",
			stdout: fr.StartMarker + "\n" + fr.EndMarker + " 1",
			stderr: fr.StartMarker + "\n" + fr.EndMarker + "\n",
		},
		{
			name:   "stderr sentinel not yet arrived",
			stdout: fr.StartMarker + "\n" + fr.EndMarker + " 0\n",
			stderr: fr.StartMarker + "\nstill going",
		},
		{
			name:    "non-numeric exit code",
			stdout:  fr.StartMarker + "\n" + fr.EndMarker + " garbled\n",
			stderr:  fr.StartMarker + "\n" + fr.EndMarker + "\n",
			wantErr: ErrCorruptFrame,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, complete, err := fr.Extract(tt.stdout, tt.stderr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantComplete, complete)
			if !tt.wantComplete {
				return
			}
			assert.Equal(t, tt.wantStdout, out.Stdout)
			assert.Equal(t, tt.wantStderr, out.Stderr)
			assert.Equal(t, tt.wantExitCode, out.ExitCode)
		})
	}
}

func TestFrameExtractPartial(t *testing.T) {
	fr := Frame{
		StartMarker: "__VESPER_BEGIN_tok_2__",
		EndMarker:   "__VESPER_END_tok_2__",
	}

	po, pe := fr.ExtractPartial(fr.StartMarker+"\nsome progress\n", fr.StartMarker+"\n")
	assert.Equal(t, "some progress\n", po)
	assert.Equal(t, "", pe)

	po, pe = fr.ExtractPartial("", "")
	assert.Empty(t, po)
	assert.Empty(t, pe)
}
