package services

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"duel-arena/models"
)

// secretBytes is the entropy of a generated commitment secret.
const secretBytes = 16

// maxSecretLength matches the width of the stored secret columns.
const maxSecretLength = 128

// Commit seals move under a fresh random secret. The commitment is
// hex(sha256("<move>:<secret>")). Move names never contain ':' so the
// preimage is unambiguous.
func Commit(move models.Move) (commitment, secret string, err error) {
	if !move.Valid() {
		return "", "", invalidArgument("invalid move %q", move)
	}
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret = hex.EncodeToString(buf)
	return CommitWithSecret(move, secret), secret, nil
}

// CommitWithSecret computes the commitment for a known secret.
func CommitWithSecret(move models.Move, secret string) string {
	sum := sha256.Sum256([]byte(string(move) + ":" + secret))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether move and secret open commitment.
func VerifyCommitment(move models.Move, secret, commitment string) bool {
	if !move.Valid() || secret == "" {
		return false
	}
	want := CommitWithSecret(move, secret)
	got := strings.ToLower(strings.TrimSpace(commitment))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// normalizeCommitment lower-cases a commitment and checks it is a
// sha256 hex digest.
func normalizeCommitment(commitment string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(commitment))
	if len(c) != sha256.Size*2 {
		return "", invalidArgument("commitment must be %d hex characters", sha256.Size*2)
	}
	if _, err := hex.DecodeString(c); err != nil {
		return "", invalidArgument("commitment must be hex encoded")
	}
	return c, nil
}
