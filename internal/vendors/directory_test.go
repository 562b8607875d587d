package vendors

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	d := NewDirectory(map[uint16]string{0x004C: "Apple, Inc."})

	tests := []struct {
		name string
		id   uint16
		want string
	}{
		{"known", 0x004C, "Apple, Inc."},
		{"unknown", 0x1234, "Unknown(0x1234)"},
		{"none", 0, NoManufacturer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Resolve(tt.id))
		})
	}
}

func TestResolve_NilDirectory(t *testing.T) {
	var d *Directory
	assert.Equal(t, "Unknown(0x0006)", d.Resolve(6))
	assert.Zero(t, d.Len())
}

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"0x004C,Apple Inc.",
		"0006, Microsoft ",
		"zz,Bogus",
		"00E0",
		`0075,"Samsung Electronics Co., Ltd."`,
	}, "\n")

	d, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, "Apple Inc.", d.Resolve(0x004C))
	assert.Equal(t, "Microsoft", d.Resolve(0x0006))
	assert.Equal(t, "Samsung Electronics Co., Ltd.", d.Resolve(0x0075))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		d, err := Load(filepath.Join(dir, "absent.csv"))
		require.NoError(t, err)
		assert.Zero(t, d.Len())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, "mfg_ids.csv")
		require.NoError(t, os.WriteFile(path, []byte("004C,Apple\n0059,Nordic Semiconductor ASA\n"), 0o644))
		d, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, d.Len())
		assert.Equal(t, "Nordic Semiconductor ASA", d.Resolve(0x0059))
	})
}
