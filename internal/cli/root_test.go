package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	assert.Equal(t, version, GetVersion())
	assert.NotEmpty(t, GetVersion())
}

func TestRootCommandRegistration(t *testing.T) {
	root := GetRootCmd()
	require.NotNil(t, root)
	assert.Equal(t, "vesper", root.Use)

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}

	for _, want := range []string{"serve", "run", "exec", "configure", "status"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestGlobalFlags(t *testing.T) {
	root := GetRootCmd()

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestRunCommandRequiresArgs(t *testing.T) {
	err := runCmd.Args(runCmd, []string{})
	require.Error(t, err)

	err = runCmd.Args(runCmd, []string{"list files"})
	require.NoError(t, err)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{2*time.Minute + 5*time.Second, "2m5s"},
		{time.Hour + 30*time.Minute + 10*time.Second, "1h30m10s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}
