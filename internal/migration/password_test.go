package migration

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var argonPattern = regexp.MustCompile(`^\$argon2i\$v=19\$m=65536,t=3,p=4\$([A-Za-z0-9+/]+)\$([A-Za-z0-9+/]+)$`)

func TestGeneratePasswordHash(t *testing.T) {
	t.Parallel()

	hash, err := GeneratePasswordHash()
	require.NoError(t, err)

	m := argonPattern.FindStringSubmatch(hash)
	require.NotNil(t, m, hash)

	salt, err := base64.RawStdEncoding.DecodeString(m[1])
	require.NoError(t, err)
	assert.Len(t, salt, 16)

	key, err := base64.RawStdEncoding.DecodeString(m[2])
	require.NoError(t, err)
	assert.Len(t, key, 32)

	other, err := GeneratePasswordHash()
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}
