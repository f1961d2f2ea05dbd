// Package text provides text preprocessing utilities applied before synthesis.
//
// LLM replies frequently carry stage directions such as "（笑）" or "【开心】"
// that should not be read aloud, and file names derived from reply text must
// not carry arbitrary punctuation.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/book-expert/tts-bridge/internal/tts/ttsutils"
)

// Regex patterns for annotation markup. Parentheses may mix half- and
// full-width forms; lenticular brackets are matched separately.
const (
	parenRegexPattern      = `[(（][^()（）]*[)）]`
	lenticularRegexPattern = `【[^【】]*】`
	whitespaceRegexPattern = `[ \t]+`
)

// maxPrefixRunes bounds the text portion of generated file names.
const maxPrefixRunes = 30

// Preprocessor strips annotation markup and prepares text for file naming.
type Preprocessor struct {
	parenPattern      *regexp.Regexp
	lenticularPattern *regexp.Regexp
	whitespacePattern *regexp.Regexp
}

// NewPreprocessor creates a text preprocessor with compiled patterns.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		parenPattern:      regexp.MustCompile(parenRegexPattern),
		lenticularPattern: regexp.MustCompile(lenticularRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
	}
}

// StripAnnotations removes bracketed annotations and trims the result.
// Nested brackets are removed from the inside out.
func (p *Preprocessor) StripAnnotations(text string) string {
	if text == "" {
		return text
	}

	for {
		stripped := p.parenPattern.ReplaceAllString(text, "")
		stripped = p.lenticularPattern.ReplaceAllString(stripped, "")

		if stripped == text {
			break
		}

		text = stripped
	}

	text = p.whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// FileNamePrefix keeps ASCII letters and digits, CJK ideographs and
// whitespace, trims the result and cuts it to the first 30 runes.
func FileNamePrefix(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if ttsutils.IsASCIIAlnum(r) || ttsutils.IsCJKIdeograph(r) || unicode.IsSpace(r) {
			return r
		}

		return -1
	}, text)

	runes := []rune(strings.TrimSpace(cleaned))
	if len(runes) > maxPrefixRunes {
		runes = runes[:maxPrefixRunes]
	}

	return string(runes)
}
