package log

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) {
	t.Cleanup(func() {
		SetOutput(zerolog.ConsoleWriter{Out: os.Stderr}, zerolog.InfoLevel)
	})
}

func TestLevelFiltering(t *testing.T) {
	resetLogger(t)
	buf := &bytes.Buffer{}
	SetOutput(buf, zerolog.InfoLevel)

	Debugf("hidden %d", 1)
	assert.Empty(t, buf.String())

	Warnf("visible %d", 2)
	out := buf.String()
	assert.Contains(t, out, `"message":"visible 2"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "log_test.go:")
}

func TestDebugfDisabledIsFree(t *testing.T) {
	resetLogger(t)
	SetOutput(ioutil.Discard, zerolog.InfoLevel)
	allocs := testing.AllocsPerRun(100, func() {
		Debugf("filtered key")
	})
	assert.Zero(t, allocs)
}

func TestInitRollingFile(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "rdbmem.log")
	require.NoError(t, Init(Config{Level: "DEBUG", File: path, MaxSizeMB: 1}))

	Debugf("module aux %s", "ReJSON-RL")
	Errorf("boom")

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "module aux ReJSON-RL")
	assert.Contains(t, string(data), `"level":"error"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	resetLogger(t)
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}
