package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は表示名として保存する最大文字数（rune数）。
const MaxNameLength = 100

// NameSanitizer はユーザーの表示名からマークアップを取り除く。
// 表示名はページにそのまま描画されるため、登録時にプレーンテキストへ正規化する。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はタグをすべて除去するポリシーでNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// maxUnescapePasses はエンティティの多重エンコードを展開する最大回数。
const maxUnescapePasses = 8

// Sanitize はタグを除去し、空白を1つに畳み、最大長で切り詰めた表示名を返す。
// 入力がマークアップのみの場合は空文字列を返す。
// エンティティで書かれたタグ（&lt;script&gt;など）も展開してから除去する。
func (s *NameSanitizer) Sanitize(name string) string {
	cleaned := s.strip(name)
	for i := 0; i < maxUnescapePasses; i++ {
		next := s.strip(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}
	if strings.ContainsAny(cleaned, "<>") {
		// 展開し切れない多重エンコードは山括弧を落とす
		cleaned = strings.NewReplacer("<", "", ">", "").Replace(cleaned)
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if utf8.RuneCountInString(cleaned) > MaxNameLength {
		cleaned = string([]rune(cleaned)[:MaxNameLength])
	}
	return cleaned
}

// strip はエンティティを展開した上でタグを除去し、プレーンテキストで返す。
// StrictPolicyは出力をHTMLエスケープするため、保存用に戻す。
func (s *NameSanitizer) strip(name string) string {
	return html.UnescapeString(s.policy.Sanitize(html.UnescapeString(name)))
}
