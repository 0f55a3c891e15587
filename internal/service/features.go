package service

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContentFeatures 从正文提取的确定性文本特征。
// 不依赖 LLM，同一输入永远得到同一结果。
type ContentFeatures struct {
	Length      int  // 字符数（rune）
	HasQuestion bool // 含问号（半角或全角）
	HasEmoji    bool // 含 emoji 类字符
	StartsUpper bool // 首字符为大写字母
	Sentences   int  // 句子数
	Timely      bool // 含时效性词汇（new / today / breaking ...）
}

// 时效性词汇：出现即认为内容「蹭了时间点」
var timelyWords = []string{"new", "now", "today", "breaking", "update", "trending", "launch", "live"}

// DetectFeatures 提取正文特征
func DetectFeatures(content string) ContentFeatures {
	runes := []rune(content)
	f := ContentFeatures{
		Length:    len(runes),
		Sentences: countSentences(content),
	}

	if len(runes) > 0 {
		f.StartsUpper = unicode.IsUpper(runes[0])
	}

	for _, r := range runes {
		if r == '?' || r == '？' {
			f.HasQuestion = true
		}
		if isEmojiRune(r) {
			f.HasEmoji = true
		}
	}

	lower := strings.ToLower(content)
	for _, w := range timelyWords {
		if containsWord(lower, w) {
			f.Timely = true
			break
		}
	}

	return f
}

// isEmojiRune 判断 emoji 类字符。覆盖常用 emoji 区段与几个
// 不在这些区段里的高频符号（❤ ✨ ✅ 等杂项符号区）。
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // 杂项符号和象形文字 ~ 扩展象形文字
		return true
	case r >= 0x2600 && r <= 0x27BF: // 杂项符号 + 装饰符号（❤ ✨ ✅ ✊ …）
		return true
	case r == 0x2B50 || r == 0x2B55: // ⭐ ⭕
		return true
	default:
		return false
	}
}

// countSentences 统计句子数：按 . ! ? （含全角）切分，计非空白段
func countSentences(content string) int {
	n := 0
	segment := false
	for _, r := range content {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if segment {
				n++
				segment = false
			}
		default:
			if !unicode.IsSpace(r) {
				segment = true
			}
		}
	}
	if segment {
		n++
	}
	return n
}

// containsWord 整词匹配（避免 "now" 命中 "known"）。
// 边界判定按 rune 解码，多字节字母（如 é）贴着关键词时不算词边界。
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		beforeOK := start == 0 || !isWordRune(before)
		afterOK := end == len(s) || !isWordRune(after)
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
