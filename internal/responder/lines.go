package responder

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	typingBase     = 1000 * time.Millisecond
	typingPerRune  = 60 * time.Millisecond
	typingJitter   = 2000 * time.Millisecond
	typingMax      = 5000 * time.Millisecond
	fallbackBase   = 1500 * time.Millisecond
	fallbackJitter = 2000 * time.Millisecond
	greetingBase   = 1500 * time.Millisecond
	greetingJitter = 1000 * time.Millisecond
)

var greetings = []string{
	"hey, it's %s",
	"%s. you look like trouble",
	"yo. %s here",
	"hey. you're kinda my type",
}

// curatedLines replace replies that sound like a generic assistant.
var curatedLines = []string{
	"wait i got distracted, say that again",
	"lol ok you're kinda funny",
	"hmm tell me something weird about you",
	"ok real question. cats or dogs",
	"haha stop. what are you doing rn",
	"not gonna lie that made me smile",
	"you first. what's your vibe",
	"ok but why do i feel like you're judging me",
}

var blandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hey|hi|hello|yo)?[\s,!.]*(what'?s|whats|wuts?) up\W*$`),
	regexp.MustCompile(`^(hey|hi|hello)?[\s,!.]*how are (you|u)( doing)?( today)?\W*$`),
	regexp.MustCompile(`^(hey|hi|hello)?[\s,!.]*how('?s| is) (it going|your day)\W*$`),
	regexp.MustCompile(`how (can|may) i (help|assist)`),
	regexp.MustCompile(`\bas an ai\b`),
	regexp.MustCompile(`\b(language model|virtual assistant)\b`),
	regexp.MustCompile(`^is there anything (else )?i can\b`),
}

// TypingDelay is min(1000ms + 60ms per rune + jitter*2000ms, 5000ms).
func TypingDelay(text string, jitter float64) time.Duration {
	d := typingBase +
		time.Duration(utf8.RuneCountInString(text))*typingPerRune +
		time.Duration(jitter*float64(typingJitter))
	if d > typingMax {
		return typingMax
	}
	return d
}

// FallbackDelay paces canned replies.
func FallbackDelay(jitter float64) time.Duration {
	return fallbackBase + time.Duration(jitter*float64(fallbackJitter))
}

// GreetingDelay paces the opening line.
func GreetingDelay(jitter float64) time.Duration {
	return greetingBase + time.Duration(jitter*float64(greetingJitter))
}

// Greeting renders greeting idx for name. Out-of-range indexes wrap.
func Greeting(name string, idx int) string {
	if idx < 0 {
		idx = -idx
	}
	tmpl := greetings[idx%len(greetings)]
	if !strings.Contains(tmpl, "%s") {
		return tmpl
	}
	return strings.Replace(tmpl, "%s", name, 1)
}

// IsBland reports whether a reply is generic filler that would give the persona away.
func IsBland(text string) bool {
	norm := normalize(text)
	for _, re := range blandPatterns {
		if re.MatchString(norm) {
			return true
		}
	}
	return false
}

func sameText(a, b string) bool {
	if b == "" {
		return false
	}
	return normalize(a) == normalize(b)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "’", "'")
	return strings.Join(strings.Fields(s), " ")
}
