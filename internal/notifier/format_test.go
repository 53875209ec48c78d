package notifier

import "testing"

func TestToTelegramHTMLEscapesAndBolds(t *testing.T) {
	got := ToTelegramHTML("**bold** & <tag>")
	want := "<b>bold</b> &amp; &lt;tag&gt;"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToTelegramHTMLPreservesCodeBlocks(t *testing.T) {
	got := ToTelegramHTML("```go\nfmt.Println(1)\n```")
	if got != "<pre><code class=\"language-go\">fmt.Println(1)\n</code></pre>" {
		t.Fatalf("unexpected code block rendering: %q", got)
	}
}

func TestToTelegramHTMLInlineCode(t *testing.T) {
	got := ToTelegramHTML("run `ls -la` now")
	want := "run <code>ls -la</code> now"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToDiscordMarkdownStripsHTML(t *testing.T) {
	got := ToDiscordMarkdown("hello <b>world</b>")
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestToTelegramHTMLSpoiler(t *testing.T) {
	got := ToTelegramHTML("the password is ||hunter2||")
	want := "the password is <tg-spoiler>hunter2</tg-spoiler>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`a & b < c > d`)
	want := "a &amp; b &lt; c &gt; d"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
