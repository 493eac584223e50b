package secrets

// DefaultRules returns the default rule table in application order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "api_key",
			Description: "API key assignment",
			Pattern:     `(?:api[_-]?key|apikey)\s*[:=]\s*["']?[a-zA-Z0-9_-]{16,}["']?`,
		},
		{
			ID:          "password",
			Description: "Password assignment",
			Pattern:     `(?:password|passwd|pwd)\s*[:=]\s*["']?[^"'\s]+["']?`,
		},
		{
			ID:          "token",
			Description: "Token or secret assignment",
			Pattern:     `(?:token|secret)\s*[:=]\s*["']?[a-zA-Z0-9_-]{16,}["']?`,
		},
		{
			ID:          "bearer_token",
			Description: "Bearer token in an authorization value",
			Pattern:     `bearer\s+[a-zA-Z0-9_\-\.=]{16,}`,
		},
		{
			ID:          "aws_key",
			Description: "AWS access key ID",
			Pattern:     `AKIA[0-9A-Z]{16}`,
		},
		{
			ID:          "github_token",
			Description: "GitHub token",
			Pattern:     `gh[pousr]_[A-Za-z0-9_]{36}`,
		},
		{
			ID:          "private_key",
			Description: "PEM private key header",
			Pattern:     `-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`,
		},
	}
}
