package entity

// Preferences are the per-channel opt-ins of a user.
type Preferences struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

// Contact is what the user directory knows about a recipient.
type Contact struct {
	UserID      string      `json:"user_id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	PushToken   string      `json:"push_token"`
	Preferences Preferences `json:"preferences"`
}

// Allows reports whether the user opted in to the channel.
func (c *Contact) Allows(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return c.Preferences.Email
	case ChannelPush:
		return c.Preferences.Push
	default:
		return false
	}
}

// Destination returns the address for the channel.
func (c *Contact) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelPush:
		return c.PushToken
	default:
		return ""
	}
}
