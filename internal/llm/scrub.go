package llm

import "regexp"

// scrubSecrets removes common secret patterns from content before sending it
// to a provider API. Communications can quote credentials verbatim
// (forwarded IT emails, pasted configs), so outbound content is always
// scrubbed.
func scrubSecrets(content string) string {
	// Order matters: more specific patterns first.
	patterns := []struct {
		regex       *regexp.Regexp
		replacement string
	}{
		{
			regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`),
			"$1=[REDACTED:ENV_SECRET]",
		},
		{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
			"[REDACTED:ANTHROPIC_KEY]",
		},
		{
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			"[REDACTED:OPENAI_KEY]",
		},
		{
			regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
			"$1=[REDACTED:API_KEY]",
		},
		{
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
			"[REDACTED:BEARER_TOKEN]",
		},
		{
			regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
			"$1=[REDACTED:PASSWORD]",
		},
		{
			regexp.MustCompile(`(?i)-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
			"[REDACTED:PRIVATE_KEY]",
		},
	}

	result := content
	for _, p := range patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}
