package cache

import "fmt"

// IdempotencyKey is the ingestion lock key for a request id.
func IdempotencyKey(requestID string) string {
	return "idempotency:" + requestID
}

// ContactKey caches a user directory lookup.
func ContactKey(userID string) string {
	return "contact:" + userID
}

// TemplateKey caches the active template for a code and language.
func TemplateKey(code, language string) string {
	return fmt.Sprintf("template:%s:%s", code, language)
}
