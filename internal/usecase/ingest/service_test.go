package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
	"notification-pipeline/internal/usecase/ingest"
)

/*──────────────────────── インメモリスタブ ────────────────────────*/

const userU1 = "0b6d3c1e-8a4f-4e2b-9c7d-1f2e3a4b5c6d"

type stubRequests struct {
	byRequest map[string]*entity.NotificationRequest
	creates   int
	createErr error
}

var _ repository.NotificationRequestRepository = (*stubRequests)(nil)

func (r *stubRequests) Create(_ context.Context, req *entity.NotificationRequest) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.creates++
	c := *req
	r.byRequest[req.RequestID] = &c
	return nil
}

func (r *stubRequests) GetByRequestID(_ context.Context, id string) (*entity.NotificationRequest, error) {
	req, ok := r.byRequest[id]
	if !ok {
		return nil, nil
	}
	c := *req
	return &c, nil
}

func (r *stubRequests) GetByNotificationID(_ context.Context, id string) (*entity.NotificationRequest, error) {
	for _, req := range r.byRequest {
		if req.NotificationID == id {
			c := *req
			return &c, nil
		}
	}
	return nil, nil
}

func (r *stubRequests) UpdateStatus(_ context.Context, id string, st entity.Status, msg string) error {
	for _, req := range r.byRequest {
		if req.NotificationID == id {
			req.Status = st
			req.ErrorMessage = msg
		}
	}
	return nil
}

type stubDirectory struct {
	contacts map[string]*entity.Contact
	err      error
	calls    int
}

var _ ingest.Directory = (*stubDirectory)(nil)

func (d *stubDirectory) Lookup(_ context.Context, userID string) (*entity.Contact, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	c, ok := d.contacts[userID]
	if !ok {
		return nil, entity.ErrUserNotFound
	}
	return c, nil
}

type stubLocks struct {
	held     map[string]bool
	err      error
	unlocked []string
}

var _ ingest.Locker = (*stubLocks)(nil)

func (l *stubLocks) Lock(_ context.Context, id string, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held[id] {
		return false, nil
	}
	l.held[id] = true
	return true, nil
}

func (l *stubLocks) Unlock(_ context.Context, id string) error {
	delete(l.held, id)
	l.unlocked = append(l.unlocked, id)
	return nil
}

type publishCall struct {
	routingKey string
	msg        *entity.Message
	headers    map[string]string
}

type stubPublisher struct {
	calls []publishCall
	err   error
}

var _ ingest.Publisher = (*stubPublisher)(nil)

func (p *stubPublisher) Publish(_ context.Context, key string, body []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	msg, err := entity.ParseMessage(body)
	if err != nil {
		return err
	}
	p.calls = append(p.calls, publishCall{routingKey: key, msg: msg, headers: headers})
	return nil
}

type fixture struct {
	svc       *ingest.Service
	requests  *stubRequests
	directory *stubDirectory
	locks     *stubLocks
	publisher *stubPublisher
}

func newFixture() *fixture {
	f := &fixture{
		requests: &stubRequests{byRequest: map[string]*entity.NotificationRequest{}},
		directory: &stubDirectory{contacts: map[string]*entity.Contact{
			userU1: {
				UserID:      userU1,
				Name:        "Ana",
				Email:       "ana@example.com",
				PushToken:   "fcm-token-1",
				Preferences: entity.Preferences{Email: true, Push: false},
			},
		}},
		locks:     &stubLocks{held: map[string]bool{}},
		publisher: &stubPublisher{},
	}
	f.svc = &ingest.Service{
		Requests:  f.requests,
		Directory: f.directory,
		Locks:     f.locks,
		Publisher: f.publisher,
	}
	return f
}

func welcomeRequest(ch entity.Channel, requestID string) *entity.NotificationRequest {
	return &entity.NotificationRequest{
		RequestID:    requestID,
		Channel:      ch,
		UserID:       userU1,
		TemplateCode: "welcome_email",
		Variables:    map[string]any{"name": "Ana"},
	}
}

/*──────────────────────── テスト ────────────────────────*/

func TestSubmit_QueuesEmail(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_a"))
	require.NoError(t, err)

	assert.Equal(t, ingest.OutcomeQueued, res.Outcome)
	assert.Equal(t, entity.StatusQueued, res.Request.Status)
	assert.Equal(t, entity.DeriveNotificationID("req_a"), res.Request.NotificationID)
	assert.Equal(t, entity.StatusQueued, f.requests.byRequest["req_a"].Status)

	require.Len(t, f.publisher.calls, 1)
	call := f.publisher.calls[0]
	assert.Equal(t, "email", call.routingKey)
	assert.Equal(t, "req_a", call.headers[ingest.HeaderRequestID])
	assert.Equal(t, "ana@example.com", call.msg.Destination)
	assert.Equal(t, res.Request.NotificationID, call.msg.NotificationID)
	assert.Equal(t, "en", call.msg.Language)
	assert.Equal(t, 1, call.msg.Priority)
	assert.Equal(t, "Ana", call.msg.Variables["name"])
	assert.Equal(t, "ana@example.com", call.msg.Variables["email"])

	assert.Equal(t, []string{"req_a"}, f.locks.unlocked)
}

func TestSubmit_QueuesPush(t *testing.T) {
	f := newFixture()
	f.directory.contacts[userU1].Preferences.Push = true

	_, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelPush, "req_p"))
	require.NoError(t, err)

	require.Len(t, f.publisher.calls, 1)
	call := f.publisher.calls[0]
	assert.Equal(t, "push", call.routingKey)
	assert.Equal(t, "fcm-token-1", call.msg.Destination)
	assert.Equal(t, "welcome_email", call.msg.Metadata["template_code"])
}

func TestSubmit_GeneratesRequestID(t *testing.T) {
	f := newFixture()

	res, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, ""))
	require.NoError(t, err)
	assert.Regexp(t, `^req_[0-9a-f]{12}$`, res.Request.RequestID)
}

func TestSubmit_DuplicateReturnsExisting(t *testing.T) {
	f := newFixture()

	first, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_dup"))
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_dup"))
	require.NoError(t, err)

	assert.Equal(t, ingest.OutcomeAlreadyExists, second.Outcome)
	assert.Equal(t, first.Request.NotificationID, second.Request.NotificationID)
	assert.Equal(t, 1, f.requests.creates)
	assert.Len(t, f.publisher.calls, 1, "a duplicate is never re-published")
	assert.Equal(t, 1, f.directory.calls)
}

func TestSubmit_DuplicateRaceOnCreate(t *testing.T) {
	f := newFixture()
	nid := entity.DeriveNotificationID("req_race")
	f.requests.createErr = entity.ErrDuplicateRequest

	// 他のゲートウェイが先にコミットした状態を再現する
	f.svc.Requests = &racingRequests{stubRequests: f.requests, winner: &entity.NotificationRequest{
		RequestID: "req_race", NotificationID: nid, Status: entity.StatusQueued,
	}}

	res, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_race"))
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeAlreadyExists, res.Outcome)
	assert.Empty(t, f.publisher.calls)
}

// racingRequests reports no record on the first lookup and the winner's record afterwards.
type racingRequests struct {
	*stubRequests
	winner  *entity.NotificationRequest
	lookups int
}

func (r *racingRequests) GetByRequestID(_ context.Context, _ string) (*entity.NotificationRequest, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func TestSubmit_PreferenceDisabled(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelPush, "req_c"))

	require.ErrorIs(t, err, entity.ErrPreferenceDisabled)
	assert.Empty(t, f.publisher.calls, "never published to any queue")
	assert.Zero(t, f.requests.creates)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, req *entity.NotificationRequest)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing variables",
			mutate: func(_ *fixture, req *entity.NotificationRequest) { req.Variables = nil },
			check:  func(t *testing.T, err error) { assert.True(t, entity.IsValidationError(err)) },
		},
		{
			name:   "missing required variable",
			mutate: func(_ *fixture, req *entity.NotificationRequest) { req.Variables = map[string]any{"other": 1} },
			check:  func(t *testing.T, err error) { assert.True(t, entity.IsValidationError(err)) },
		},
		{
			name:   "unknown user",
			mutate: func(f *fixture, _ *entity.NotificationRequest) { delete(f.directory.contacts, userU1) },
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, entity.ErrUserNotFound) },
		},
		{
			name:   "directory unreachable",
			mutate: func(f *fixture, _ *entity.NotificationRequest) { f.directory.err = errors.New("dial tcp: i/o timeout") },
			check:  func(t *testing.T, err error) { assert.True(t, entity.IsDependencyError(err)) },
		},
		{
			name: "no email address",
			mutate: func(f *fixture, _ *entity.NotificationRequest) {
				f.directory.contacts[userU1].Email = ""
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ingest.ErrNoDestination) },
		},
		{
			name: "concurrent submission",
			mutate: func(f *fixture, req *entity.NotificationRequest) {
				f.locks.held[req.RequestID] = true
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ingest.ErrRequestInProgress) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := welcomeRequest(entity.ChannelEmail, "req_r")
			tt.mutate(f, req)

			res, err := f.svc.Submit(context.Background(), req)

			require.Error(t, err)
			assert.Nil(t, res)
			tt.check(t, err)
			assert.Empty(t, f.publisher.calls)
			assert.Zero(t, f.requests.creates)
		})
	}
}

func TestSubmit_PublishFailureMarksFailed(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("broker unreachable after 3 attempts")

	res, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_q"))

	require.ErrorIs(t, err, ingest.ErrQueueFailed)
	assert.Nil(t, res, "no false queued acknowledgment")
	stored := f.requests.byRequest["req_q"]
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Equal(t, ingest.ErrQueueFailed.Error(), stored.ErrorMessage)
}

func TestSubmit_LockUnavailableFailsOpen(t *testing.T) {
	f := newFixture()
	f.locks.err = errors.New("redis: connection refused")

	res, err := f.svc.Submit(context.Background(), welcomeRequest(entity.ChannelEmail, "req_l"))
	require.NoError(t, err)
	assert.Equal(t, ingest.OutcomeQueued, res.Outcome)
	assert.Empty(t, f.locks.unlocked)
}
