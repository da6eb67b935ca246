package entity

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	nid := DeriveNotificationID("req_1")
	body := []byte(`{"notification_id":"` + nid + `","request_id":"req_1","user_id":"` + testUserID +
		`","destination":"ana@example.com","template_code":"welcome_email","variables":{"name":"Ana"}}`)

	msg, err := ParseMessage(body)
	require.NoError(t, err)

	want := &Message{
		NotificationID: nid,
		RequestID:      "req_1",
		UserID:         testUserID,
		Destination:    "ana@example.com",
		TemplateCode:   "welcome_email",
		Language:       "en",
		Variables:      map[string]any{"name": "Ana"},
		Priority:       1,
		Metadata:       map[string]any{},
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":           `{"notification_id":`,
		"missing template":   `{"notification_id":"x","request_id":"r","user_id":"u","destination":"d"}`,
		"mismatched id":      `{"notification_id":"x","request_id":"r","user_id":"u","destination":"d","template_code":"t"}`,
		"missing request id": `{"notification_id":"x","user_id":"u","destination":"d","template_code":"t"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMessage([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestCorrelationID(t *testing.T) {
	assert.Equal(t, "n-1", CorrelationID([]byte(`{"notification_id":"n-1"}`)))
	assert.Equal(t, DeriveNotificationID("req_9"), CorrelationID([]byte(`{"request_id":"req_9"}`)))
	assert.Empty(t, CorrelationID([]byte(`garbage`)))
	assert.Empty(t, CorrelationID([]byte(`{}`)))
}

func TestChannelNotification_MessageRoundTrip(t *testing.T) {
	msg := &Message{
		NotificationID: DeriveNotificationID("req_2"),
		RequestID:      "req_2",
		UserID:         testUserID,
		Destination:    "tok",
		TemplateCode:   "promo",
		Language:       "fr",
		Variables:      map[string]any{"name": "Léa"},
		Priority:       2,
		Metadata:       map[string]any{"campaign": "spring"},
	}

	n := NewChannelNotification(ChannelPush, msg)
	assert.Equal(t, StatusReceived, n.Status)
	assert.Equal(t, DefaultMaxRetries, n.MaxRetries)
	assert.True(t, n.RetriesLeft())
	if diff := cmp.Diff(msg, n.Message()); diff != "" {
		t.Errorf("rebuilt message mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusReport_Validate(t *testing.T) {
	assert.NoError(t, NewDeliveredReport("n-1", "email_service").Validate())
	assert.NoError(t, NewFailedReport("n-1", "email_service", "EMAIL_SEND_FAILED", "boom", 3).Validate())

	bad := []*StatusReport{
		{Status: StatusDelivered, ServiceName: "s"},
		{NotificationID: "n", Status: StatusQueued, ServiceName: "s"},
		{NotificationID: "n", Status: StatusFailed},
	}
	for _, r := range bad {
		assert.Error(t, r.Validate())
	}
}

func TestChannelNotification_FailureCode(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		code    string
		want    string
	}{
		{"generic email failure", ChannelEmail, ErrorCodeSendFailed, "EMAIL_SEND_FAILED"},
		{"no code push", ChannelPush, "", "PUSH_SEND_FAILED"},
		{"bounce keeps its code", ChannelEmail, ErrorCodeBounced, "EMAIL_BOUNCED"},
		{"template error keeps its code", ChannelPush, ErrorCodeTemplate, "TEMPLATE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &ChannelNotification{Channel: tt.channel, LastErrorCode: tt.code}
			assert.Equal(t, tt.want, n.FailureCode())
		})
	}
}
