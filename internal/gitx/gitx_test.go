package gitx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerateKeyPair_ProducesParsableKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(kp.PublicKey, "ssh-rsa "))

	_, _, _, _, err = ssh.ParseAuthorizedKey([]byte(kp.PublicKey))
	require.NoError(t, err)

	signer, err := ssh.ParsePrivateKey([]byte(kp.PrivateKey))
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", signer.PublicKey().Type())
}

func TestGenerateKeyPair_EachCallProducesADistinctKey(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, kp1.PublicKey, kp2.PublicKey)
}
