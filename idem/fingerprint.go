package idem

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint 计算请求体指纹：SHA-256 的小写十六进制
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
