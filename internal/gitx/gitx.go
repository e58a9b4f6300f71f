// Package gitx is the Git adapter (spec component E): cloning and
// fetching application source over SSH using a per-application deploy
// key, and generating new key pairs. No git-wire-protocol library is
// vendored into this module; clone/fetch shell out to the system git
// binary (the same approach other PaaS agents in the retrieval pack take
// — see the exec.Command("git", "clone", ...) pattern), with
// golang.org/x/crypto/ssh used only for key generation and the
// authorized_keys-format public key this package hands back to callers.
package gitx

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// deployKeyBits is the RSA modulus size for generated deploy keys, matching
// the key size ssh-keygen's default RSA generation has used since OpenSSH
// raised its minimum.
const deployKeyBits = 3072

// KeyPair is a freshly generated deploy key. PublicKey is in
// authorized_keys format; PrivateKey is PEM-encoded OpenSSH format, the
// form the caller seals with crypto.SecretBox before storing.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// GenerateKeyPair creates a new RSA SSH key pair for an application's git
// read access.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, deployKeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key pair: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to convert public key: %w", err)
	}

	privPEM, err := marshalPrivateKeyPEM(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	return KeyPair{
		PublicKey:  strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))),
		PrivateKey: privPEM,
	}, nil
}

// CommitInfo is the resolved HEAD of a clone or fetch.
type CommitInfo struct {
	SHA     string
	Message string
}

// Clone performs a shallow clone of ref into destDir using privateKeyPEM
// for SSH auth, and returns the resolved commit. destDir must not already
// exist.
func Clone(ctx context.Context, repoURL, ref, privateKeyPEM, destDir string) (CommitInfo, error) {
	keyFile, cleanup, err := writeTempKey(privateKeyPEM)
	if err != nil {
		return CommitInfo{}, err
	}
	defer cleanup()

	args := []string{"clone", "--depth=1", "--branch", ref, repoURL, destDir}
	if err := runGit(ctx, "", keyFile, args...); err != nil {
		return CommitInfo{}, fmt.Errorf("git clone failed: %w", err)
	}

	return headCommit(ctx, destDir)
}

// Fetch updates an existing clone to the latest commit on ref via a shallow
// fetch followed by a hard reset to FETCH_HEAD, returning the resolved
// commit. It does not check that the move is a fast-forward: local commits
// not on the fetched tip are discarded.
func Fetch(ctx context.Context, repoDir, ref, privateKeyPEM string) (CommitInfo, error) {
	keyFile, cleanup, err := writeTempKey(privateKeyPEM)
	if err != nil {
		return CommitInfo{}, err
	}
	defer cleanup()

	if err := runGit(ctx, repoDir, keyFile, "fetch", "--depth=1", "origin", ref); err != nil {
		return CommitInfo{}, fmt.Errorf("git fetch failed: %w", err)
	}
	if err := runGit(ctx, repoDir, keyFile, "reset", "--hard", "FETCH_HEAD"); err != nil {
		return CommitInfo{}, fmt.Errorf("git reset failed: %w", err)
	}

	return headCommit(ctx, repoDir)
}

func headCommit(ctx context.Context, repoDir string) (CommitInfo, error) {
	sha, err := gitOutput(ctx, repoDir, "rev-parse", "HEAD")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("failed to read HEAD commit: %w", err)
	}

	msg, err := gitOutput(ctx, repoDir, "log", "-1", "--format=%s")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("failed to read HEAD message: %w", err)
	}

	return CommitInfo{SHA: strings.TrimSpace(sha), Message: strings.TrimSpace(msg)}, nil
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}

func runGit(ctx context.Context, dir, keyFile string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_SSH_COMMAND=ssh -i "+keyFile+" -o IdentitiesOnly=yes -o StrictHostKeyChecking=accept-new")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// writeTempKey writes privateKeyPEM to a 0600 file under a fresh temp
// directory; cleanup removes the whole directory.
func writeTempKey(privateKeyPEM string) (keyFile string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "ployer-deploy-key-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp key dir: %w", err)
	}

	keyFile = filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(keyFile, []byte(privateKeyPEM), 0600); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to write temp key: %w", err)
	}

	return keyFile, func() { os.RemoveAll(dir) }, nil
}
