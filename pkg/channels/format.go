package channels

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	telegramMaxMessageLength = 4096
	telegramSplitTarget      = 3900
)

var (
	reCodeBlock  = regexp.MustCompile("```[\\w]*\\n?([\\s\\S]*?)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`__(.+?)__`)
	reStrike     = regexp.MustCompile(`~~(.+?)~~`)
)

// markdownToTelegramHTML converts the markdown subset used in replies to
// Telegram HTML. Code spans are escaped and never formatted.
func markdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	blocks, text := extract(reCodeBlock, text, "CB")
	inline, text := extract(reInlineCode, text, "IC")

	text = escapeHTML(text)
	text = reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = reBold.ReplaceAllString(text, "<b>$1</b>")
	text = reItalic.ReplaceAllString(text, "<i>$1</i>")
	text = reStrike.ReplaceAllString(text, "<s>$1</s>")

	for i, code := range inline {
		text = strings.ReplaceAll(text, placeholder("IC", i), "<code>"+escapeHTML(code)+"</code>")
	}
	for i, code := range blocks {
		text = strings.ReplaceAll(text, placeholder("CB", i), "<pre><code>"+escapeHTML(code)+"</code></pre>")
	}
	return text
}

func placeholder(kind string, i int) string {
	return fmt.Sprintf("\x00%s%d\x00", kind, i)
}

func extract(re *regexp.Regexp, text, kind string) ([]string, string) {
	var codes []string
	text = re.ReplaceAllStringFunc(text, func(m string) string {
		codes = append(codes, re.FindStringSubmatch(m)[1])
		return placeholder(kind, len(codes)-1)
	})
	return codes, text
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// splitMessage breaks text into chunks of at most maxLen runes,
// preferring paragraph, line and word boundaries.
func splitMessage(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLen <= 0 || len([]rune(text)) <= maxLen {
		return []string{text}
	}

	limit := telegramSplitTarget
	if limit >= maxLen {
		limit = maxLen
	}

	var out []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			if tail := strings.TrimSpace(string(runes)); tail != "" {
				out = append(out, tail)
			}
			break
		}
		at := findSplitPoint(runes, limit)
		if chunk := strings.TrimSpace(string(runes[:at])); chunk != "" {
			out = append(out, chunk)
		}
		runes = runes[at:]
		for len(runes) > 0 && strings.ContainsRune(" \t\r\n", runes[0]) {
			runes = runes[1:]
		}
	}
	return out
}

func findSplitPoint(runes []rune, limit int) int {
	if len(runes) <= limit {
		return len(runes)
	}
	if limit <= 1 {
		return 1
	}
	floor := limit / 2
	for i := limit; i > floor; i-- {
		if i > 1 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := limit; i > floor; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := limit; i > floor; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\t' {
			return i
		}
	}
	return limit
}
