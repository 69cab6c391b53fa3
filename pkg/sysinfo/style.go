package sysinfo

import (
	"fmt"
	"strings"
)

var smallCaps = map[rune]rune{
	'a': 'ᴀ', 'b': 'ʙ', 'c': 'ᴄ', 'd': 'ᴅ', 'e': 'ᴇ',
	'f': 'ꜰ', 'g': 'ɢ', 'h': 'ʜ', 'i': 'ɪ', 'j': 'ᴊ',
	'k': 'ᴋ', 'l': 'ʟ', 'm': 'ᴍ', 'n': 'ɴ', 'o': 'ᴏ',
	'p': 'ᴘ', 'q': 'ǫ', 'r': 'ʀ', 's': 'ꜱ', 't': 'ᴛ',
	'u': 'ᴜ', 'v': 'ᴠ', 'w': 'ᴡ', 'x': 'x', 'y': 'ʏ',
	'z': 'ᴢ', '0': '𝟢', '1': '𝟣', '2': '𝟤', '3': '𝟥',
	'4': '𝟦', '5': '𝟧', '6': '𝟨', '7': '𝟩', '8': '𝟪',
	'9': '𝟫',
}

// SmallCaps maps ASCII letters and digits onto their small-caps forms.
func SmallCaps(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if sc, ok := smallCaps[r]; ok {
			b.WriteRune(sc)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Labels are the localized row names of the info box.
type Labels struct {
	Uptime string
	User   string
	RAM    string
	Host   string
}

// Render draws the info box as a code block.
func Render(title string, labels Labels, user string, info Info) string {
	const rule = "─────────────────────"
	rows := [][2]string{
		{labels.Uptime, info.Uptime},
		{labels.User, user},
		{labels.RAM, info.RAM},
		{labels.Host, info.Host},
	}

	var b strings.Builder
	b.WriteString("`╭" + rule + "\n")
	fmt.Fprintf(&b, "│     %s\n", title)
	b.WriteString("├" + rule + "\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "│ %s: %s\n", SmallCaps(row[0]), row[1])
	}
	b.WriteString("╰" + rule + "\n`")
	return b.String()
}
