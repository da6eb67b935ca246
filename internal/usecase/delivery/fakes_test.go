package delivery_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"notification-pipeline/internal/domain/entity"
	"notification-pipeline/internal/repository"
	"notification-pipeline/internal/usecase/delivery"
	tplUC "notification-pipeline/internal/usecase/template"
)

/*──────────────────────── インメモリスタブ ────────────────────────*/

const testUserID = "0b6d3c1e-8a4f-4e2b-9c7d-1f2e3a4b5c6d"

func messageBody(requestID string) []byte {
	msg := &entity.Message{
		NotificationID: entity.DeriveNotificationID(requestID),
		RequestID:      requestID,
		UserID:         testUserID,
		Destination:    "ana@example.com",
		TemplateCode:   "welcome_email",
		Language:       "en",
		Variables:      map[string]any{"name": "Ana", "link": "https://example.com/start"},
		Priority:       1,
		Metadata:       map[string]any{"campaign": "onboarding"},
	}
	b, _ := json.Marshal(msg)
	return b
}

type stubNotificationRepo struct {
	mu      sync.Mutex
	records map[string]*entity.ChannelNotification
	saves   int
	saveErr error
	upsErr  error
}

var _ repository.ChannelNotificationRepository = (*stubNotificationRepo)(nil)

func newStubNotificationRepo() *stubNotificationRepo {
	return &stubNotificationRepo{records: map[string]*entity.ChannelNotification{}}
}

func clone(n *entity.ChannelNotification) *entity.ChannelNotification {
	c := *n
	for _, p := range []**time.Time{&c.NextRetryAt, &c.ReportedAt, &c.DeliveredAt} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return &c
}

func (r *stubNotificationRepo) Upsert(_ context.Context, n *entity.ChannelNotification) (*entity.ChannelNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsErr != nil {
		return nil, r.upsErr
	}
	if existing, ok := r.records[n.NotificationID]; ok {
		return clone(existing), nil
	}
	r.records[n.NotificationID] = clone(n)
	return clone(n), nil
}

func (r *stubNotificationRepo) Get(_ context.Context, id string) (*entity.ChannelNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.records[id]; ok {
		return clone(n), nil
	}
	return nil, nil
}

func (r *stubNotificationRepo) Save(_ context.Context, n *entity.ChannelNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	stored := clone(n)
	stored.UpdatedAt = time.Now()
	r.records[n.NotificationID] = stored
	return nil
}

func (r *stubNotificationRepo) ClaimRetry(_ context.Context, id string, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.records[id]
	if !ok || !claimable(n, staleBefore) {
		return false, nil
	}
	n.NextRetryAt = nil
	n.UpdatedAt = time.Now()
	return true, nil
}

func claimable(n *entity.ChannelNotification, staleBefore time.Time) bool {
	if n.Status != entity.StatusPending {
		return false
	}
	return n.NextRetryAt != nil || (n.RetryCount > 0 && !n.UpdatedAt.After(staleBefore))
}

func (r *stubNotificationRepo) ListDueRetries(_ context.Context, ch entity.Channel, before, staleBefore time.Time, limit int) ([]*entity.ChannelNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ChannelNotification
	for _, n := range r.records {
		if n.Channel != ch || n.Status != entity.StatusPending {
			continue
		}
		due := n.NextRetryAt != nil && !n.NextRetryAt.After(before)
		stale := n.NextRetryAt == nil && n.RetryCount > 0 && !n.UpdatedAt.After(staleBefore)
		if due || stale {
			out = append(out, clone(n))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubNotificationRepo) ListUnreported(_ context.Context, ch entity.Channel, limit int) ([]*entity.ChannelNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ChannelNotification
	for _, n := range r.records {
		if n.Channel == ch && n.NeedsReport() {
			out = append(out, clone(n))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubNotificationRepo) MarkReported(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.records[id]; ok {
		n.ReportedAt = &at
	}
	return nil
}

func (r *stubNotificationRepo) put(n *entity.ChannelNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[n.NotificationID] = clone(n)
}

func (r *stubNotificationRepo) get(id string) *entity.ChannelNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.records[id])
}

type stubLogRepo struct {
	mu        sync.Mutex
	entries   []*entity.DeliveryLog
	appendErr error
}

var _ repository.DeliveryLogRepository = (*stubLogRepo)(nil)

func (r *stubLogRepo) Append(_ context.Context, log *entity.DeliveryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	c := *log
	r.entries = append(r.entries, &c)
	return nil
}

func (r *stubLogRepo) ListByNotification(_ context.Context, id string) ([]*entity.DeliveryLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.DeliveryLog
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].NotificationID == id {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

type stubResolver struct {
	content *entity.RenderedContent
	err     error
	calls   int
}

var _ tplUC.Resolver = (*stubResolver)(nil)

func (s *stubResolver) Resolve(_ context.Context, _, _ string, _ map[string]any) (*entity.RenderedContent, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.content, nil
}

type sendCall struct {
	destination string
	content     *entity.RenderedContent
	data        map[string]any
}

type stubProvider struct {
	err   error
	calls []sendCall
}

var _ delivery.Provider = (*stubProvider)(nil)

func (p *stubProvider) Send(_ context.Context, destination string, content *entity.RenderedContent, data map[string]any) (*entity.Receipt, error) {
	p.calls = append(p.calls, sendCall{destination: destination, content: content, data: data})
	if p.err != nil {
		return nil, p.err
	}
	return &entity.Receipt{MessageID: "msg-1", Response: "250 OK"}, nil
}

type stubReporter struct {
	mu      sync.Mutex
	reports []*entity.StatusReport
	err     error
}

var _ delivery.Reporter = (*stubReporter)(nil)

func (r *stubReporter) Report(_ context.Context, report *entity.StatusReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reports = append(r.reports, report)
	return nil
}

func (r *stubReporter) statuses() []entity.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Status, 0, len(r.reports))
	for _, rep := range r.reports {
		out = append(out, rep.Status)
	}
	return out
}

type published struct {
	routingKey string
	body       []byte
	headers    map[string]string
}

type stubPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

var _ delivery.Publisher = (*stubPublisher)(nil)

func (p *stubPublisher) Publish(_ context.Context, routingKey string, body []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{routingKey: routingKey, body: body, headers: headers})
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

type scheduled struct {
	notificationID string
	delay          time.Duration
}

type stubScheduler struct {
	calls []scheduled
}

var _ delivery.RetryScheduler = (*stubScheduler)(nil)

func (s *stubScheduler) Schedule(n *entity.ChannelNotification, delay time.Duration) {
	s.calls = append(s.calls, scheduled{notificationID: n.NotificationID, delay: delay})
}

type stubRedeliverer struct {
	ids []string
	won bool
	err error
}

var _ delivery.Redeliverer = (*stubRedeliverer)(nil)

func (r *stubRedeliverer) Redeliver(_ context.Context, id, source string) (bool, error) {
	r.ids = append(r.ids, id+"/"+source)
	return r.won, r.err
}

/*──────────────────────── ハーネス ────────────────────────*/

type harness struct {
	worker    *delivery.Worker
	repo      *stubNotificationRepo
	logs      *stubLogRepo
	resolver  *stubResolver
	provider  *stubProvider
	reporter  *stubReporter
	publisher *stubPublisher
	scheduler *stubScheduler
	clock     time.Time
}

func newHarness(ch entity.Channel) *harness {
	h := &harness{
		repo:      newStubNotificationRepo(),
		logs:      &stubLogRepo{},
		resolver:  &stubResolver{content: &entity.RenderedContent{Subject: "Welcome", Body: "Hi Ana"}},
		provider:  &stubProvider{},
		reporter:  &stubReporter{},
		publisher: &stubPublisher{},
		scheduler: &stubScheduler{},
		clock:     time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
	h.worker = &delivery.Worker{
		Channel:     ch,
		Repo:        h.repo,
		Logs:        h.logs,
		Templates:   h.resolver,
		Provider:    h.provider,
		Reporter:    h.reporter,
		Publisher:   h.publisher,
		Scheduler:   h.scheduler,
		BackoffBase: time.Minute,
		BackoffCap:  time.Hour,
		Now:         func() time.Time { return h.clock },
	}
	return h
}
