package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// SumSHA256 returns the SHA-256 checksum of the provided data.
func SumSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ContentKey names an object by its content: dir/<first 16 hex chars of
// the SHA-256>.ext. Equal content under the same dir gets the same key.
func ContentKey(dir string, data []byte, ext string) string {
	sum := SumSHA256(data)
	return path.Join(dir, hex.EncodeToString(sum[:8])+"."+ext)
}
