package generator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	// Reasoning models (deepseek-r1) prepend their chain of thought.
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// PostProcess validates the model output and fills the derived Draft fields.
func PostProcess(raw string) (Draft, error) {
	md := strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))
	if md == "" {
		return Draft{}, errors.New("model returned empty markdown")
	}

	digest := extractDigest(md)
	if digest == "" {
		digest = defaultDigest(md, 160)
	}

	return Draft{
		Title:    extractTitle(md),
		Digest:   digest,
		Markdown: md,
	}, nil
}

func extractTitle(md string) string {
	m := titleRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractDigest returns the first paragraph line that is not a heading.
func extractDigest(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

func defaultDigest(md string, limit int) string {
	joined := strings.Join(strings.Fields(md), " ")
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit])
}
