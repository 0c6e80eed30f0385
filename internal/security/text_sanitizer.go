// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はチャット投稿などユーザー入力のテキストからHTMLを除去し、
// 他ユーザーの画面でのXSSを防ぐ。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// script, styleタグは内容ごと除去する。
	// 通常の記号（&, < 等）はエスケープせずそのまま残す。
	// エンティティで表現されたタグも復号後に除去する。
	// 前後の空白は除去する。
	Sanitize(raw string) string
}

// maxSanitizePasses は除去と復号を繰り返す最大回数。
const maxSanitizePasses = 8

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// bluemondayのStrictPolicy（許可タグなし）を使用する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
// 除去と復号を結果が変わらなくなるまで繰り返し、復号で現れたタグも残さない。
// 収束しない場合はエスケープ済みの出力を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	current := raw
	for range maxSanitizePasses {
		// StrictPolicyはテキスト中の記号をHTMLエンティティにするため元に戻す
		next := html.UnescapeString(s.policy.Sanitize(current))
		if next == current {
			return strings.TrimSpace(next)
		}
		current = next
	}
	return strings.TrimSpace(s.policy.Sanitize(current))
}
