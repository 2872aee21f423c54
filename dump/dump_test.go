package dump

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/919927181/rdbmem/internal/rdbtest"
)

func testFile(t *testing.T) string {
	t.Helper()
	data := rdbtest.New().Header(9).
		Aux("used-mem", "1048576").
		SelectDB(0).
		StringKey("user:1", "alice").
		ExpiryMs(1700000000000).StringKey("session:1", "token").
		SelectDB(1).
		Key(4, "user:h").Length(1).String("f").String("v").
		EOF().Checksum().Build()
	path := filepath.Join(t.TempDir(), "dump.rdb")
	require.NoError(t, ioutil.WriteFile(path, data, 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	app := cli.NewApp()
	app.Name = "rdbmem"
	app.Writer = out
	app.ErrWriter = ioutil.Discard
	app.Commands = Commands()
	err := app.Run(append([]string{"rdbmem"}, args...))
	return out.String(), err
}

func TestKeys(t *testing.T) {
	out, err := run(t, "keys", testFile(t))
	require.NoError(t, err)
	assert.Equal(t, "0\tstring\tuser:1\n0\tstring\tsession:1\n1\thash\tuser:h\n", out)
}

func TestKeysFilterFlags(t *testing.T) {
	path := testFile(t)

	out, err := run(t, "keys", "--prefix", "user:", path)
	require.NoError(t, err)
	assert.Equal(t, "0\tstring\tuser:1\n1\thash\tuser:h\n", out)

	out, err = run(t, "keys", "--db", "1", path)
	require.NoError(t, err)
	assert.Equal(t, "1\thash\tuser:h\n", out)

	out, err = run(t, "keys", "--type", "string", "--prefix", "session:", path)
	require.NoError(t, err)
	assert.Equal(t, "0\tstring\tsession:1\n", out)
}

func TestKeysFilterFile(t *testing.T) {
	path := testFile(t)
	filter := filepath.Join(t.TempDir(), "filter.yaml")
	require.NoError(t, ioutil.WriteFile(filter, []byte("is-permanent: false\n"), 0644))

	out, err := run(t, "keys", "--filter", filter, path)
	require.NoError(t, err)
	assert.Equal(t, "0\tstring\tsession:1\n", out)
}

func TestKeysRejectsUnknownType(t *testing.T) {
	_, err := run(t, "keys", "--type", "zset", testFile(t))
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	out, err := run(t, "memory", testFile(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "database\ttype\tkey"))
	assert.True(t, strings.HasPrefix(lines[1], "0\tstring\tuser:1\t"))
	assert.Contains(t, lines[2], "2023-11-14T22:13:20Z")
	assert.True(t, strings.HasPrefix(lines[3], "1\thash\tuser:h\t"))
	assert.Contains(t, lines[4], "3 keys")
	assert.Contains(t, lines[4], "used-mem 1.0 MB")
	assert.Contains(t, lines[4], "1 keys with ttl")
}

func TestMemoryMinBytes(t *testing.T) {
	out, err := run(t, "memory", "--bytes", "200", testFile(t))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1\thash\tuser:h\t"))
	assert.Contains(t, lines[2], "3 keys")
}

func TestMissingArgument(t *testing.T) {
	_, err := run(t, "memory")
	assert.Error(t, err)
}

func TestVerifyChecksum(t *testing.T) {
	path := testFile(t)
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, ioutil.WriteFile(path, data, 0644))

	_, err = run(t, "keys", path)
	assert.NoError(t, err)

	_, err = run(t, "keys", "--verify-checksum", path)
	assert.Error(t, err)
}
