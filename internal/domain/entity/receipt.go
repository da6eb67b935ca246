package entity

// Receipt is what a provider returns for an accepted message.
type Receipt struct {
	MessageID string
	Response  string
}
