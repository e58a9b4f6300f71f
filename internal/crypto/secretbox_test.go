package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretBoxSealOpenRoundTrip(t *testing.T) {
	box, err := NewSecretBox("root-secret-value")
	require.NoError(t, err)

	sealed, err := box.Seal("DATABASE_URL=postgres://x")
	require.NoError(t, err)
	assert.NotEmpty(t, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "DATABASE_URL=postgres://x", opened)
}

func TestSecretBoxTamperedCiphertextFailsClosed(t *testing.T) {
	box, err := NewSecretBox("root-secret-value")
	require.NoError(t, err)

	sealed, err := box.Seal("super-secret")
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-1] ^= 0x01
	if tampered[len(tampered)-1] == sealed[len(sealed)-1] {
		tampered[len(tampered)-2] ^= 0x01
	}

	_, err = box.Open(string(tampered))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSecretBoxDifferentRootSecretsDoNotInteroperate(t *testing.T) {
	boxA, err := NewSecretBox("secret-a")
	require.NoError(t, err)
	boxB, err := NewSecretBox("secret-b")
	require.NoError(t, err)

	sealed, err := boxA.Seal("value")
	require.NoError(t, err)

	_, err = boxB.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewSecretBoxRejectsEmptyRootSecret(t *testing.T) {
	_, err := NewSecretBox("")
	assert.ErrorIs(t, err, ErrMissingRootSecret)
}

func TestSecretBoxNonceIsRandomPerSeal(t *testing.T) {
	box, err := NewSecretBox("root-secret-value")
	require.NoError(t, err)

	a, err := box.Seal("same-plaintext")
	require.NoError(t, err)
	b, err := box.Seal("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
