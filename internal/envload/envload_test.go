package envload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	cases := map[string][3]string{
		"A=1":               {"A", "1", "ok"},
		"export B = two":    {"B", "two", "ok"},
		`C="quoted # kept"`: {"C", "quoted # kept", "ok"},
		"D='single'":        {"D", "single", "ok"},
		"E=value # comment": {"E", "value", "ok"},
		"# comment":         {"", "", ""},
		"no equals":         {"", "", ""},
		"BAD KEY=1":         {"", "", ""},
	}
	for line, want := range cases {
		key, value, ok := parseLine(line)
		assert.Equal(t, want[2] == "ok", ok, line)
		if ok {
			assert.Equal(t, want[0], key, line)
			assert.Equal(t, want[1], value, line)
		}
	}
}

func TestLoadNearestWalksUpAndKeepsExisting(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("EDGECHAT_ENVLOAD_NEW=from-file\nEDGECHAT_ENVLOAD_SET=from-file\n"), 0o600))
	t.Setenv("EDGECHAT_ENVLOAD_SET", "from-env")
	t.Setenv("EDGECHAT_ENVLOAD_NEW", "")
	require.NoError(t, os.Unsetenv("EDGECHAT_ENVLOAD_NEW"))

	path, err := LoadNearest(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, FileName), path)
	assert.Equal(t, "from-file", os.Getenv("EDGECHAT_ENVLOAD_NEW"))
	assert.Equal(t, "from-env", os.Getenv("EDGECHAT_ENVLOAD_SET"))
}

