package util

import (
	"regexp"
	"strings"
)

// Reasoning models on Groq (deepseek-r1-distill, qwen) inline their chain of
// thought as <think>...</think> before the answer.
var thinkTagRegex = regexp.MustCompile(`(?i)<think(?:ing)?>([\s\S]*?)</think(?:ing)?>`)

// ContainsThinkTags checks if the response contains a complete think block
func ContainsThinkTags(response string) bool {
	return thinkTagRegex.MatchString(response)
}

// ExtractThinkContent returns the content of every think block, joined by blank lines
func ExtractThinkContent(response string) string {
	var thinkContent []string
	for _, match := range thinkTagRegex.FindAllStringSubmatch(response, -1) {
		if len(match) > 1 {
			thinkContent = append(thinkContent, strings.TrimSpace(match[1]))
		}
	}
	return strings.Join(thinkContent, "\n\n")
}

// StripThinkTags removes think blocks and their content from response
func StripThinkTags(response string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(response, ""))
}

// SplitThinkAndAnswer splits response into (thinkContent, answer)
func SplitThinkAndAnswer(response string) (string, string) {
	return ExtractThinkContent(response), StripThinkTags(response)
}

// ThinkFilter removes think blocks from streamed text whose tags may be split
// across chunks. It is not safe for concurrent use.
type ThinkFilter struct {
	inThink bool
	pending string
}

var (
	thinkOpenTags  = []string{"<think>", "<thinking>"}
	thinkCloseTags = []string{"</think>", "</thinking>"}
)

// Write consumes the next chunk and returns the text that is safe to print.
// Text that could be the start of a tag is held back until the next call.
func (f *ThinkFilter) Write(chunk string) string {
	s := f.pending + chunk
	f.pending = ""

	var out strings.Builder
	for len(s) > 0 {
		tags := thinkOpenTags
		if f.inThink {
			tags = thinkCloseTags
		}

		idx, tagLen := indexAnyFold(s, tags)
		if idx >= 0 {
			if !f.inThink {
				out.WriteString(s[:idx])
			}
			s = s[idx+tagLen:]
			f.inThink = !f.inThink
			if !f.inThink {
				s = strings.TrimLeft(s, "\r\n")
			}
			continue
		}

		// Hold back a suffix that may be an incomplete tag
		keep := partialTagSuffix(s, tags)
		if !f.inThink {
			out.WriteString(s[:len(s)-keep])
		}
		f.pending = s[len(s)-keep:]
		break
	}
	return out.String()
}

// Flush returns held-back text at end of stream. An unterminated think block is dropped.
func (f *ThinkFilter) Flush() string {
	rest := f.pending
	f.pending = ""
	if f.inThink {
		return ""
	}
	return rest
}

func indexAnyFold(s string, tags []string) (int, int) {
	lower := strings.ToLower(s)
	best, bestLen := -1, 0
	for _, tag := range tags {
		if i := strings.Index(lower, tag); i >= 0 && (best < 0 || i < best) {
			best, bestLen = i, len(tag)
		}
	}
	return best, bestLen
}

func partialTagSuffix(s string, tags []string) int {
	lower := strings.ToLower(s)
	longest := 0
	for _, tag := range tags {
		for n := min(len(tag)-1, len(lower)); n > longest; n-- {
			if strings.HasSuffix(lower, tag[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}
