package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/model"
)

// DigestLen SHA-256 十六进制长度
const DigestLen = sha256.Size * 2

// 10 位本地号码补的国家码
// TODO: 国际号码的匹配规则确定后改为按部署配置
const defaultCountryCode = "1"

// Hashed 摘要及其标识类型
type Hashed struct {
	Digest string               `json:"hash"`
	Type   model.IdentifierType `json:"type"`
}

// NormalizeEmail 去空白并转小写
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizePhone 只保留数字，恰好 10 位时补国家码，其余长度原样返回
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 10 {
		return defaultCountryCode + digits
	}
	return digits
}

func Normalize(kind model.IdentifierType, raw string) (string, error) {
	switch kind {
	case model.IdentifierEmail:
		return NormalizeEmail(raw), nil
	case model.IdentifierPhone:
		return NormalizePhone(raw), nil
	default:
		return "", apperr.ErrInvalidHashFormat.Withf("unknown identifier type %q", kind)
	}
}

// Hash 规范化后计算 SHA-256，原始值不离开本函数
func Hash(kind model.IdentifierType, raw string) (Hashed, error) {
	norm, err := Normalize(kind, raw)
	if err != nil {
		return Hashed{}, err
	}
	if norm == "" {
		return Hashed{}, apperr.ErrEmptyIdentifier
	}
	sum := sha256.Sum256([]byte(norm))
	return Hashed{Digest: hex.EncodeToString(sum[:]), Type: kind}, nil
}

func HashEmail(raw string) (Hashed, error) { return Hash(model.IdentifierEmail, raw) }

func HashPhone(raw string) (Hashed, error) { return Hash(model.IdentifierPhone, raw) }

// ParseDigest 校验客户端提交的摘要，统一转小写
func ParseDigest(digest string, kind model.IdentifierType) (Hashed, error) {
	if !kind.Valid() {
		return Hashed{}, apperr.ErrInvalidHashFormat.Withf("unknown identifier type %q", kind)
	}
	if len(digest) != DigestLen {
		return Hashed{}, apperr.ErrInvalidHashFormat
	}
	d := strings.ToLower(digest)
	if _, err := hex.DecodeString(d); err != nil {
		return Hashed{}, apperr.ErrInvalidHashFormat.Wrap(err)
	}
	return Hashed{Digest: d, Type: kind}, nil
}

func IsDigest(s string) bool {
	if len(s) != DigestLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
