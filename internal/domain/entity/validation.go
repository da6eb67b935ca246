package entity

import (
	"fmt"
	"net/mail"
	"net/url"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// ValidateLink checks that a template link variable is an absolute http(s) URL.
func ValidateLink(rawURL string) error {
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "variables.link",
			Message: fmt.Sprintf("must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "variables.link", Message: "must be a valid URL"}
	}

	// HTTPまたはHTTPSスキームのみ許可
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "variables.link", Message: "must use http or https scheme"}
	}
	if parsedURL.Host == "" {
		return &ValidationError{Field: "variables.link", Message: "must have a valid host"}
	}
	return nil
}

// ValidateDestination checks the channel-specific recipient address.
func ValidateDestination(c Channel, destination string) error {
	if destination == "" {
		return &ValidationError{Field: "destination", Message: "is required"}
	}
	if c == ChannelEmail {
		if _, err := mail.ParseAddress(destination); err != nil {
			return &ValidationError{Field: "destination", Message: "must be a valid email address"}
		}
	}
	return nil
}
