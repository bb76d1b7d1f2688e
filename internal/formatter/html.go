// Package formatter renders API results and bot screens as Telegram HTML.
// Every function is pure: the same input always yields the same text.
package formatter

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxMessageLength keeps a message under the Bot API limit of 4096.
const MaxMessageLength = 4000

const (
	boxWidth     = 32
	dividerWidth = 28
	barWidth     = 10
	placeholder  = "<i>N/A</i>"
)

var printer = message.NewPrinter(language.English)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape makes s safe inside Telegram HTML.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

func formatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

func headerBox(title, subtitle string) string {
	var b strings.Builder
	b.WriteString("╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString("║  🚀 <b>" + Escape(title) + "</b>\n")
	if subtitle != "" {
		b.WriteString("║  <i>" + Escape(subtitle) + "</i>\n")
	}
	b.WriteString("╚" + strings.Repeat("═", boxWidth) + "╝")
	return b.String()
}

func sectionHeader(emoji, title string) string {
	return "\n" + emoji + " <b>" + Escape(title) + "</b>\n" + strings.Repeat("─", dividerWidth)
}

// keyValue renders one labelled field. Empty values become an explicit
// N/A marker instead of disappearing.
func keyValue(emoji, key, value string) string {
	prefix := "  ◽ "
	if emoji != "" {
		prefix = emoji + " "
	}
	v := placeholder
	if strings.TrimSpace(value) != "" {
		v = Escape(value)
	}
	return prefix + "<b>" + Escape(key) + ":</b> " + v
}

func progressBar(value, maxValue int) string {
	filled := 0
	if maxValue > 0 && value > 0 {
		filled = barWidth * value / maxValue
	}
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}

func closingLine() string {
	return "\n└" + strings.Repeat("─", dividerWidth) + "┘"
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func moreLine(indent string, extra int) string {
	return indent + "<i>... and " + formatNumber(extra) + " more</i>"
}

// SplitMessage breaks text into chunks no longer than limit runes,
// preferring line boundaries. A single line longer than limit is cut hard.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}

		need := len(runes)
		if size > 0 {
			need++
		}
		if size+need > limit {
			flush()
			need = len(runes)
		}
		if size > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(string(runes))
		size += need
	}
	flush()
	return chunks
}
