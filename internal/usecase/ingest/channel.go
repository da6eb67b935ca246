package ingest

import (
	"notification-pipeline/internal/domain/entity"
)

// channelSpec is the per-channel behaviour selected once at ingestion.
type channelSpec interface {
	// ResolveDestination returns the recipient address for the channel.
	ResolveDestination(c *entity.Contact) (string, error)
	// BuildPayload builds the queue message for an accepted request.
	BuildPayload(req *entity.NotificationRequest, destination string, c *entity.Contact) *entity.Message
}

var channelSpecs = map[entity.Channel]channelSpec{
	entity.ChannelEmail: emailSpec{},
	entity.ChannelPush:  pushSpec{},
}

type emailSpec struct{}

func (emailSpec) ResolveDestination(c *entity.Contact) (string, error) {
	if c.Email == "" {
		return "", ErrNoDestination
	}
	if err := entity.ValidateDestination(entity.ChannelEmail, c.Email); err != nil {
		return "", err
	}
	return c.Email, nil
}

// BuildPayload exposes the recipient address and name to email templates.
func (emailSpec) BuildPayload(req *entity.NotificationRequest, destination string, c *entity.Contact) *entity.Message {
	msg := entity.NewMessage(req, destination)
	msg.Variables = withDefaults(req.Variables, map[string]any{
		"email":     destination,
		"user_name": c.Name,
	})
	return msg
}

type pushSpec struct{}

func (pushSpec) ResolveDestination(c *entity.Contact) (string, error) {
	if c.PushToken == "" {
		return "", ErrNoDestination
	}
	return c.PushToken, nil
}

// BuildPayload tags the data payload so apps can route the notification.
func (pushSpec) BuildPayload(req *entity.NotificationRequest, destination string, c *entity.Contact) *entity.Message {
	msg := entity.NewMessage(req, destination)
	msg.Variables = withDefaults(req.Variables, map[string]any{"user_name": c.Name})
	msg.Metadata = withDefaults(req.Metadata, map[string]any{
		"template_code": req.TemplateCode,
		"request_id":    req.RequestID,
	})
	return msg
}

// withDefaults returns a copy of m with defaults added for absent keys.
func withDefaults(m map[string]any, defaults map[string]any) map[string]any {
	out := make(map[string]any, len(m)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range m {
		out[k] = v
	}
	return out
}
