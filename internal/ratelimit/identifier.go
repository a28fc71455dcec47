package ratelimit

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Identifier 计数器的主体标识：优先用户 ID，否则用来源地址的摘要，
// 原始地址不落库。共用出口地址的客户端共享同一额度
func Identifier(userID, origin string) string {
	if userID != "" {
		return "user:" + userID
	}
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "origin:unknown"
	}
	sum := sha3.Sum256([]byte(origin))
	return "origin:" + hex.EncodeToString(sum[:16])
}
