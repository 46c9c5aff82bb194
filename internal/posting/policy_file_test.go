package posting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePolicy = `
timezone: Asia/Dubai
clearing_account: "1100"
accounts:
  service_revenue: "4000"
  vat_services: "2200"
`

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePolicy), 0o600))

	file, err := LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Dubai", file.Timezone)
	assert.Equal(t, "1100", file.ClearingAccount)
	assert.Equal(t, "4000", file.Accounts[domain.CategoryServiceRevenue])
	assert.Empty(t, file.Branch)
}

func TestDecodePolicyRejectsUnknownKeys(t *testing.T) {
	_, err := DecodePolicy(strings.NewReader("clearing: \"1100\"\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)
}

func TestLoadPolicyFileMissing(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
