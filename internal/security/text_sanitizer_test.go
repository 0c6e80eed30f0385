package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsMarkup はタグが除去され本文が残ることを検証する。
func TestSanitize_StripsMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Finished my run!", "Finished my run!"},
		{"強調タグを除去", "<strong>done</strong> today", "done today"},
		{"scriptは内容ごと除去", `hi<script>alert("x")</script>`, "hi"},
		{"styleは内容ごと除去", "<style>body{}</style>ok", "ok"},
		{"イベント属性付きタグを除去", `<img src="x" onerror="alert(1)">nice`, "nice"},
		{"リンクはテキストのみ残す", `<a href="javascript:alert(1)">click</a>`, "click"},
		{"記号はエスケープしない", "1 < 2 & 3 > 2", "1 < 2 & 3 > 2"},
		{"引用符を保持", `she said "go"`, `she said "go"`},
		{"日本語を保持", "<p>おはよう</p>", "おはよう"},
		{"前後の空白を除去", "  hello  ", "hello"},
		{"空文字列", "", ""},
		{"タグのみは空になる", "<br><br/>", ""},
		{"エンティティ化したタグも除去", "&lt;img src=x onerror=alert(1)&gt;", ""},
		{"二重エンティティ化したタグも除去", "hi &amp;lt;script&amp;gt;alert(1)&amp;lt;/script&amp;gt;", "hi"},
		{"エンティティ化した記号は復号", "fish &amp; chips", "fish & chips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()
	input := `<em>Meditation</em> & coffee <script>x</script>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("Sanitize is not deterministic: %q vs %q", first, second)
	}
	if again := sanitizer.Sanitize(first); again != first {
		t.Errorf("Sanitize(Sanitize(x)) = %q, want %q", again, first)
	}
}

// TestSanitize_NoDecodedMarkup はエンティティ経由でタグが復元されないことを検証する。
func TestSanitize_NoDecodedMarkup(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"&lt;img src=x onerror=alert(1)&gt;", ""},
		{"&#60;svg onload=alert(1)&#62;", ""},
		{"&amp;amp;lt;b&amp;amp;gt;x", "x"},
		{"&lt;a href=&quot;javascript:alert(1)&quot;&gt;go&lt;/a&gt;", "go"},
	}
	for _, tt := range tests {
		got := sanitizer.Sanitize(tt.input)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if strings.Contains(got, "<") {
			t.Errorf("Sanitize(%q) = %q, should not contain markup", tt.input, got)
		}
		if again := sanitizer.Sanitize(got); again != got {
			t.Errorf("Sanitize(%q) = %q, not stable on second pass (%q)", tt.input, got, again)
		}
	}
}
