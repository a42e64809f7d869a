package fusion

import (
	"net/url"
	"strings"
)

// Canonicalizer 将候选的 ID 或 URL 映射为规范键
type Canonicalizer interface {
	Canonical(raw string) string
}

// CanonicalizerFunc 函数适配器
type CanonicalizerFunc func(raw string) string

// Canonical implements Canonicalizer.
func (f CanonicalizerFunc) Canonical(raw string) string { return f(raw) }

// DefaultCanonicalizer 默认规范化器，见 Canonicalize
var DefaultCanonicalizer Canonicalizer = CanonicalizerFunc(Canonicalize)

// Canonicalize 返回 raw 的规范键。
// http(s) URL 取小写的 scheme://host+path，丢弃 query/fragment/userinfo 并去掉末尾斜杠；
// 其它字符串仅 trim + 小写。结果满足 Canonicalize(Canonicalize(x)) == Canonicalize(x)。
func Canonicalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return s
	}

	u, err := url.Parse(s)
	if err != nil {
		return s
	}

	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")
	return u.Scheme + "://" + strings.ToLower(u.Host) + path
}

// canonicalKey 优先使用 URL，其次使用 ID
func canonicalKey(c Canonicalizer, cand Candidate) string {
	raw := cand.URL
	if strings.TrimSpace(raw) == "" {
		raw = cand.ID
	}
	if c == nil {
		return Canonicalize(raw)
	}
	key := c.Canonical(raw)
	if key == "" {
		// 外部规范化器失效时回退到默认实现
		return Canonicalize(raw)
	}
	return key
}
