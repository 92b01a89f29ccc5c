package testutil

import (
	"fmt"
)

// TokenExpirationPrompt is the prompt used by the token expiration fixtures.
const TokenExpirationPrompt = "Implement JWT authentication for the API"

// TokenExpirationGenerations returns five otherwise identical solutions where
// three pick a one hour token lifetime and two pick 24 hours.
func TokenExpirationGenerations() []string {
	return []string{
		JWTSolution("1h"),
		JWTSolution("1h"),
		JWTSolution("24h"),
		JWTSolution("1h"),
		JWTSolution("24h"),
	}
}

// JWTSolution renders a small JWT issuing snippet with the given expiration.
func JWTSolution(expiration string) string {
	return fmt.Sprintf("```python\n"+
		"import jwt\n\n"+
		"def issue_token(user_id, secret):\n"+
		"    token_expiration=%q\n"+
		"    if not user_id:\n"+
		"        raise ValueError(\"user_id required\")\n"+
		"    return jwt.encode({\"sub\": user_id, \"exp\": token_expiration}, secret, algorithm=\"HS256\")\n"+
		"```\n", expiration)
}

// Repeat returns n copies of text.
func Repeat(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out
}

// Distinct returns n unrelated generations.
func Distinct(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("answer number %d", i+1)
	}
	return out
}
