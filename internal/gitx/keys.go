package gitx

import (
	"crypto/rsa"
	"encoding/pem"

	"golang.org/x/crypto/ssh"
)

// marshalPrivateKeyPEM encodes an RSA private key in OpenSSH PEM format,
// the form ssh-keygen and OpenSSH clients expect.
func marshalPrivateKeyPEM(key *rsa.PrivateKey) (string, error) {
	block, err := ssh.MarshalPrivateKey(key, "ployer deploy key")
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(block)), nil
}
