package entity

import "time"

// Template is a versioned, language-specific message template.
type Template struct {
	ID        int64
	Code      string
	Language  string
	Subject   string
	Body      string
	Version   int
	IsActive  bool
	CreatedAt time.Time
}

// RenderedContent is the substituted subject (or push title) and body.
type RenderedContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
