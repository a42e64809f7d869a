package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/BaSui01/fusiongate/internal/pool"
)

// SlicePolicy 决定哪些输入参与切片指纹
type SlicePolicy struct {
	// Attributes 参与指纹的属性名，为空时全部参与
	Attributes []string
	// RawInput 为 true 时输入文本不做规范化
	RawInput bool
}

// Fingerprint 计算 stage + 输入文本 + 属性的 sha256 指纹（hex）
func (p SlicePolicy) Fingerprint(stage, input string, attrs map[string]string) string {
	text := input
	if !p.RawInput {
		text = NormalizeText(input)
	}

	keys := p.attributeKeys(attrs)
	sum := pool.SumSHA256(func(h hash.Hash) {
		// 每个字段带引号写入，分隔符出现在字段内容中也不会产生歧义
		fmt.Fprintf(h, "stage=%q input=%q attrs=%d\n", strings.TrimSpace(stage), text, len(keys))
		for _, k := range keys {
			fmt.Fprintf(h, "%q=%q\n", k, attrs[k])
		}
	})
	return hex.EncodeToString(sum)
}

func (p SlicePolicy) attributeKeys(attrs map[string]string) []string {
	var keys []string
	if len(p.Attributes) == 0 {
		keys = make([]string, 0, len(attrs))
		for k := range attrs {
			keys = append(keys, k)
		}
	} else {
		for _, k := range p.Attributes {
			if _, ok := attrs[k]; ok {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Fingerprint 使用默认策略计算指纹
func Fingerprint(stage, input string, attrs map[string]string) string {
	return SlicePolicy{}.Fingerprint(stage, input, attrs)
}

// DraftHash 对草稿类长文本取短哈希，作为指纹属性使用
func DraftHash(draft string) string {
	sum := sha256.Sum256([]byte(NormalizeText(draft)))
	return hex.EncodeToString(sum[:8])
}

// NormalizeText NFKC + 大小写折叠 + 空白折叠
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
