package webhookingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyGitHubSignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	secret := "topsecret"

	t.Run("valid signature", func(t *testing.T) {
		err := verifyGitHubSignature(body, sign(body, secret), secret)
		assert.NoError(t, err)
	})

	t.Run("missing signature", func(t *testing.T) {
		err := verifyGitHubSignature(body, "", secret)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := verifyGitHubSignature(body, sign(body, "other-secret"), secret)
		assert.Error(t, err)
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := sign(body, secret)
		err := verifyGitHubSignature([]byte(`{"ref":"refs/heads/evil"}`), sig, secret)
		assert.Error(t, err)
	})

	t.Run("malformed prefix", func(t *testing.T) {
		err := verifyGitHubSignature(body, "md5=deadbeef", secret)
		assert.Error(t, err)
	})
}

func TestVerifyGitLabToken(t *testing.T) {
	t.Run("matching token", func(t *testing.T) {
		assert.NoError(t, verifyGitLabToken("secret-token", "secret-token"))
	})

	t.Run("missing token", func(t *testing.T) {
		assert.Error(t, verifyGitLabToken("", "secret-token"))
	})

	t.Run("mismatched token", func(t *testing.T) {
		assert.Error(t, verifyGitLabToken("wrong", "secret-token"))
	})
}

func TestRefToBranch(t *testing.T) {
	assert.Equal(t, "main", refToBranch("refs/heads/main"))
	assert.Equal(t, "feature/x", refToBranch("refs/heads/feature/x"))
	assert.Equal(t, "refs/tags/v1", refToBranch("refs/tags/v1"))
}
