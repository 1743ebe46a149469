package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDotEnv(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{"simple", "FLOWSPEC_USER=u1", map[string]string{"FLOWSPEC_USER": "u1"}},
		{"export prefix", "export FLOWSPEC_DB=sqlite://x.db", map[string]string{"FLOWSPEC_DB": "sqlite://x.db"}},
		{"double quoted", `SITE_PASSWORD="with spaces"`, map[string]string{"SITE_PASSWORD": "with spaces"}},
		{"single quoted", `SITE_PASSWORD='with spaces'`, map[string]string{"SITE_PASSWORD": "with spaces"}},
		{"mismatched quotes kept", `A="x'`, map[string]string{"A": `"x'`}},
		{"comments and blanks", "# comment\n\nA=1\n\nB=2", map[string]string{"A": "1", "B": "2"}},
		{"whitespace trimmed", "  A  =  1  ", map[string]string{"A": "1"}},
		{"equals in value", "DB=postgres://u:p@h/db?ssl=true", map[string]string{"DB": "postgres://u:p@h/db?ssl=true"}},
		{"no equals skipped", "JUSTTEXT\nA=1", map[string]string{"A": "1"}},
		{"empty file", "", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := LoadDotEnv(writeEnvFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	_, err := LoadDotEnv("/nonexistent/path/.env")
	assert.Error(t, err)
}

func TestApplyDotEnv_KeepsExistingVariables(t *testing.T) {
	t.Setenv("FLOWSPEC_TEST_EXISTING", "from-env")
	t.Setenv("FLOWSPEC_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("FLOWSPEC_TEST_NEW"))

	exported, err := ApplyDotEnv(writeEnvFile(t, "FLOWSPEC_TEST_EXISTING=from-file\nFLOWSPEC_TEST_NEW=fresh"))
	require.NoError(t, err)

	assert.Equal(t, []string{"FLOWSPEC_TEST_NEW"}, exported)
	assert.Equal(t, "from-env", os.Getenv("FLOWSPEC_TEST_EXISTING"))
	assert.Equal(t, "fresh", os.Getenv("FLOWSPEC_TEST_NEW"))
}
