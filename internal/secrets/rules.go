package secrets

// DefaultRules returns the built-in credential rules, biased towards the
// cloud providers and tooling that show up in operations documentation.
func DefaultRules() []Rule {
	return []Rule{
		// AWS
		{
			ID:       "aws-access-key-id",
			Pattern:  `\b(?:A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}\b`,
			Severity: SeverityHigh,
		},
		{
			ID:       "aws-secret-access-key",
			Pattern:  `(?i)(?:aws_secret_access_key|aws_secret_key|secret_access_key)\s*[:=]\s*['"]?[A-Za-z0-9/+=]{40}['"]?`,
			Keywords: []string{"secret"},
			Severity: SeverityHigh,
		},
		{
			ID:       "aws-session-token",
			Pattern:  `(?i)aws_session_token\s*[:=]\s*['"]?[A-Za-z0-9/+=]{100,}['"]?`,
			Keywords: []string{"session"},
			Severity: SeverityHigh,
		},

		// Google Cloud
		{
			ID:       "gcp-api-key",
			Pattern:  `AIza[A-Za-z0-9_\-]{35}`,
			Severity: SeverityHigh,
		},
		{
			ID:       "gcp-service-account-key",
			Pattern:  `"private_key_id"\s*:\s*"[a-f0-9]{40}"`,
			Keywords: []string{"service_account"},
			Severity: SeverityHigh,
		},
		{
			ID:       "gcp-oauth-client-secret",
			Pattern:  `GOCSPX-[A-Za-z0-9_\-]{28}`,
			Severity: SeverityHigh,
		},

		// Azure
		{
			ID:       "azure-storage-key",
			Pattern:  `(?i)(?:accountkey|account_key|storage_key)\s*[:=]\s*['"]?[A-Za-z0-9+/]{86}==['"]?`,
			Keywords: []string{"key"},
			Severity: SeverityHigh,
		},
		{
			ID:       "azure-sas-token",
			Pattern:  `[?&]sig=[A-Za-z0-9%]{43,}`,
			Keywords: []string{"sv="},
			Severity: SeverityMedium,
		},

		// Private keys and tokens
		{
			ID:       "private-key",
			Pattern:  `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP |ENCRYPTED )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity: SeverityHigh,
		},
		{
			ID:       "github-token",
			Pattern:  `(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity: SeverityHigh,
		},
		{
			ID:       "gitlab-token",
			Pattern:  `glpat-[A-Za-z0-9\-_]{20,}`,
			Severity: SeverityHigh,
		},
		{
			ID:       "slack-token",
			Pattern:  `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity: SeverityMedium,
		},
		{
			ID:       "slack-webhook",
			Pattern:  `https://hooks\.slack\.com/services/T[A-Za-z0-9_]+/B[A-Za-z0-9_]+/[A-Za-z0-9_]+`,
			Severity: SeverityMedium,
		},
		{
			ID:       "openai-api-key",
			Pattern:  `sk-(?:proj-)?[A-Za-z0-9_\-]{40,}`,
			Severity: SeverityHigh,
		},
		{
			ID:       "jwt",
			Pattern:  `eyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`,
			Severity: SeverityMedium,
		},
		{
			ID:       "bearer-token",
			Pattern:  `(?i)authorization\s*[:=]\s*['"]?bearer\s+[A-Za-z0-9_\-\.=]{20,}['"]?`,
			Keywords: []string{"bearer"},
			Severity: SeverityMedium,
		},

		// Connection strings and generic assignments
		{
			ID:       "connection-string",
			Pattern:  `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis|amqps?)://[^:\s/]+:[^@\s]+@[^\s'"]+`,
			Severity: SeverityHigh,
		},
		{
			ID:       "generic-password",
			Pattern:  `(?i)(?:password|passwd|pwd|client_secret)\s*[:=]\s*['"]?[^\s'"<>{}$]{8,}['"]?`,
			Keywords: []string{"password", "passwd", "pwd", "secret"},
			Severity: SeverityLow,
		},
	}
}
