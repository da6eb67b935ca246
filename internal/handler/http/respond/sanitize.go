package respond

import (
	"regexp"
)

var (
	// 接続URL内のパスワード (postgres://, amqp://, redis://)
	urlPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)

	// key=value 形式の資格情報
	credentialPattern = regexp.MustCompile(`(?i)(password|service_key|api_key)=([^\s&]+)`)
)

// SanitizeError は機密情報をマスクしたエラーメッセージを返す
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = urlPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = credentialPattern.ReplaceAllString(msg, "$1=****")
	return msg
}
