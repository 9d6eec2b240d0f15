package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{
			name:     "simple key-value",
			content:  "SERVICE_URL=http://localhost:8080",
			expected: map[string]string{"SERVICE_URL": "http://localhost:8080"},
		},
		{
			name:    "multiple keys",
			content: "KEY1=value1\nKEY2=value2",
			expected: map[string]string{
				"KEY1": "value1",
				"KEY2": "value2",
			},
		},
		{
			name:     "double quoted value",
			content:  `API_KEY="secret with spaces"`,
			expected: map[string]string{"API_KEY": "secret with spaces"},
		},
		{
			name:     "single quoted value",
			content:  `API_KEY='secret with spaces'`,
			expected: map[string]string{"API_KEY": "secret with spaces"},
		},
		{
			name:     "comments and blank lines",
			content:  "# petshop\n\nTOKEN=abc\n",
			expected: map[string]string{"TOKEN": "abc"},
		},
		{
			name:     "export prefix",
			content:  "export TOKEN=abc",
			expected: map[string]string{"TOKEN": "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".env")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, err := LoadDotEnv(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	_, err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read env file")
}

func TestLoadAndExportDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DDTSPEC_EXPORT_NEW=fromfile\nDDTSPEC_EXPORT_SET=fromfile\n"), 0644))

	t.Setenv("DDTSPEC_EXPORT_SET", "fromenv")
	t.Setenv("DDTSPEC_EXPORT_NEW", "")
	os.Unsetenv("DDTSPEC_EXPORT_NEW")

	_, err := LoadAndExportDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", os.Getenv("DDTSPEC_EXPORT_NEW"))
	assert.Equal(t, "fromenv", os.Getenv("DDTSPEC_EXPORT_SET"))
}
