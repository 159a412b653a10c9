package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RootFileName is the file in the configuration directory holding the
// bcrypt digest of the superuser credentials.
const RootFileName = "root.user"

// EnsureRootCredential loads the superuser credential digest, creating
// it on first run. Generation prints the plaintext credentials exactly
// once; only the digest is persisted, owner-readable. A present but
// unreadable file is regenerated.
func EnsureRootCredential(configDir string) (string, error) {
	path := filepath.Join(configDir, RootFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		slog.Warn("superuser credential file unreadable, regenerating",
			"path", path, "error", err)
	} else {
		slog.Warn("server started without superuser credential file, generating one",
			"path", path)
	}

	return makeRootFile(path)
}

func makeRootFile(path string) (string, error) {
	username, err := randomUsername()
	if err != nil {
		return "", err
	}
	password, err := randomPassword()
	if err != nil {
		return "", err
	}

	digest, err := bcrypt.GenerateFromPassword(
		[]byte(username+":"+password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing superuser credentials: %w", err)
	}

	if err := os.WriteFile(path, digest, 0o400); err != nil {
		return "", fmt.Errorf("writing superuser credential file: %w", err)
	}

	slog.Info("a new superuser credential was generated; it is saved and " +
		"will be used on subsequent starts, but the plaintext is shown " +
		"only this once")
	slog.Info("superuser credentials", "username", username, "password", password)

	return string(digest), nil
}

func randomUsername() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating superuser name: %w", err)
	}
	for i, b := range buf {
		buf[i] = letters[int(b)%len(letters)]
	}
	return string(buf), nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating superuser password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
