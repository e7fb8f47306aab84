// Package postprocess removes common LLM artifacts from model output before
// it is decoded or used downstream: thinking blocks, instruction echoes,
// quote wrapping, and markdown code fences around JSON payloads.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean strips artifacts from free-text model output and returns the trimmed
// result.
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// ExtractJSON returns the JSON payload embedded in model output: fences and
// surrounding prose are removed, leaving the outermost {…} or […] value.
// If no JSON value is found the cleaned text is returned as-is so the
// caller's decoder produces the actual error.
func ExtractJSON(text string) string {
	text = removeThinkingBlocks(text)
	text = stripCodeFence(text)

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return strings.TrimSpace(text)
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// --- thinking blocks ---

// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>`,
)

// An opened thinking tag whose closing tag never arrived (model cut off).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- code fences ---

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

func stripCodeFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// --- instruction echoes ---

// Introductory phrases LLMs sometimes prepend even when instructed not to.
// Anchored to the start and requiring a colon to avoid false positives.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:corrected |translated )?(?:translation|text|result)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:corrected |translated )?(?:translation|result)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:translation|text|result)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- quote wrapping ---

// removeQuoteWrapping strips one matching pair of outer quotes when the
// entire text is wrapped in them.
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
