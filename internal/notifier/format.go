package notifier

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRegex  = regexp.MustCompile("(?s)```([a-zA-Z]*)\n?(.*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`]+)`")
	headerRegex     = regexp.MustCompile(`(?m)^(.*?)#{1,6}\s+(.*)$`)
	boldRegex       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicStarRegex = regexp.MustCompile(`\*([^*]+)\*`)
	italicUndRegex  = regexp.MustCompile(`\b_([^_]+)_\b`)
	strikeRegex     = regexp.MustCompile(`~~([^~]+)~~`)
	underlineRegex  = regexp.MustCompile(`__([^_]+)__`)
	linkRegex       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bulletRegex     = regexp.MustCompile(`(?m)^[\s]*[-*+][\s]+(.*)$`)
	tableSepRegex   = regexp.MustCompile(`^[|\s\-:]{3,}$`)
	stripHTMLRegex  = regexp.MustCompile("<[^>]*>")
	spoilerRegex    = regexp.MustCompile(`\|\|([^|]+)\|\|`)
)

// ToTelegramHTML converts a Markdown digest into Telegram-compatible HTML,
// preserving fenced/inline code from the escaping and substitution passes.
func ToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	text = processTables(text)

	codeBlocks := make(map[string]string)
	text = codeBlockRegex.ReplaceAllStringFunc(text, func(m string) string {
		match := codeBlockRegex.FindStringSubmatch(m)
		lang, content := match[1], match[2]
		id := fmt.Sprintf("{CB-%d}", len(codeBlocks))
		escaped := EscapeHTML(content)
		if lang != "" {
			codeBlocks[id] = fmt.Sprintf("<pre><code class=\"language-%s\">%s</code></pre>", lang, escaped)
		} else {
			codeBlocks[id] = fmt.Sprintf("<pre><code>%s</code></pre>", escaped)
		}
		return id
	})

	inlineCode := make(map[string]string)
	text = inlineCodeRegex.ReplaceAllStringFunc(text, func(m string) string {
		match := inlineCodeRegex.FindStringSubmatch(m)
		id := fmt.Sprintf("{IL-%d}", len(inlineCode))
		inlineCode[id] = fmt.Sprintf("<code>%s</code>", EscapeHTML(match[1]))
		return id
	})

	text = EscapeHTML(text)

	text = headerRegex.ReplaceAllString(text, "$1<b>$2</b>")
	text = boldRegex.ReplaceAllString(text, "<b>$1</b>")
	text = italicStarRegex.ReplaceAllString(text, "<i>$1</i>")
	text = italicUndRegex.ReplaceAllString(text, "<i>$1</i>")
	text = strikeRegex.ReplaceAllString(text, "<s>$1</s>")
	text = underlineRegex.ReplaceAllString(text, "<u>$1</u>")
	text = linkRegex.ReplaceAllString(text, "<a href=\"$2\">$1</a>")
	text = processBlockquotes(text)
	text = spoilerRegex.ReplaceAllString(text, "<tg-spoiler>$1</tg-spoiler>")
	text = bulletRegex.ReplaceAllString(text, "• $1")

	for id, block := range codeBlocks {
		text = strings.ReplaceAll(text, id, block)
	}
	for id, code := range inlineCode {
		text = strings.ReplaceAll(text, id, code)
	}
	return text
}

// ToDiscordMarkdown strips any stray HTML, leaving plain Markdown since
// Discord renders it natively.
func ToDiscordMarkdown(text string) string {
	return stripHTMLRegex.ReplaceAllString(text, "")
}

// EscapeHTML escapes the three characters Telegram's HTML parser treats
// specially.
func EscapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

func processBlockquotes(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inQuote := false
	var buf []string

	for _, line := range lines {
		if strings.HasPrefix(line, "&gt; ") || strings.HasPrefix(line, "> ") {
			inQuote = true
			content := strings.TrimPrefix(strings.TrimPrefix(line, "&gt; "), "> ")
			buf = append(buf, content)
			continue
		}
		if inQuote {
			result = append(result, "<blockquote>"+strings.Join(buf, "\n")+"</blockquote>")
			buf = nil
			inQuote = false
		}
		result = append(result, line)
	}
	if inQuote {
		result = append(result, "<blockquote>"+strings.Join(buf, "\n")+"</blockquote>")
	}
	return strings.Join(result, "\n")
}

func processTables(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	var table []string
	inTable := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|"):
			inTable = true
			table = append(table, line)
		case inTable && tableSepRegex.MatchString(trimmed):
			table = append(table, line)
		default:
			if inTable {
				result = append(result, "```\n"+strings.Join(table, "\n")+"\n```")
				table = nil
				inTable = false
			}
			result = append(result, line)
		}
	}
	if inTable {
		result = append(result, "```\n"+strings.Join(table, "\n")+"\n```")
	}
	return strings.Join(result, "\n")
}
