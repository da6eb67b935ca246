package db

import (
	"database/sql"
)

var tables = []string{
	`
CREATE TABLE IF NOT EXISTS notification_requests (
    id                BIGSERIAL PRIMARY KEY,
    request_id        VARCHAR(255) NOT NULL UNIQUE,
    notification_id   VARCHAR(64)  NOT NULL UNIQUE,
    notification_type VARCHAR(16)  NOT NULL,
    user_id           UUID         NOT NULL,
    template_code     VARCHAR(100) NOT NULL,
    language          VARCHAR(10)  NOT NULL DEFAULT 'en',
    variables         JSONB        NOT NULL DEFAULT '{}',
    priority          INTEGER      NOT NULL DEFAULT 1,
    metadata          JSONB        NOT NULL DEFAULT '{}',
    status            VARCHAR(16)  NOT NULL DEFAULT 'pending',
    error_message     TEXT,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS channel_notifications (
    notification_id   VARCHAR(64)  PRIMARY KEY,
    channel           VARCHAR(16)  NOT NULL,
    request_id        VARCHAR(255) NOT NULL,
    user_id           UUID         NOT NULL,
    destination       TEXT         NOT NULL,
    template_code     VARCHAR(100) NOT NULL,
    language          VARCHAR(10)  NOT NULL DEFAULT 'en',
    variables         JSONB        NOT NULL DEFAULT '{}',
    priority          INTEGER      NOT NULL DEFAULT 1,
    metadata          JSONB        NOT NULL DEFAULT '{}',
    status            VARCHAR(16)  NOT NULL,
    retry_count       INTEGER      NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
    max_retries       INTEGER      NOT NULL DEFAULT 3,
    last_error        TEXT,
    last_error_code   VARCHAR(64),
    processed_subject TEXT,
    processed_body    TEXT,
    next_retry_at     TIMESTAMPTZ,
    reported_at       TIMESTAMPTZ,
    delivered_at      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    CHECK (retry_count <= max_retries)
)`,
	`
CREATE TABLE IF NOT EXISTS delivery_logs (
    id                BIGSERIAL PRIMARY KEY,
    notification_id   VARCHAR(64) NOT NULL,
    channel           VARCHAR(16) NOT NULL,
    attempt           INTEGER     NOT NULL,
    status            VARCHAR(16) NOT NULL,
    message_id        TEXT,
    provider_response TEXT,
    error_code        VARCHAR(64),
    error_message     TEXT,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS error_logs (
    id              BIGSERIAL PRIMARY KEY,
    notification_id VARCHAR(64)  NOT NULL,
    service_name    VARCHAR(100) NOT NULL,
    error_code      VARCHAR(64)  NOT NULL DEFAULT '',
    error_message   TEXT         NOT NULL DEFAULT '',
    retry_count     INTEGER      NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
)`,
	`
CREATE TABLE IF NOT EXISTS templates (
    id            BIGSERIAL PRIMARY KEY,
    template_code VARCHAR(100) NOT NULL,
    language      VARCHAR(10)  NOT NULL DEFAULT 'en',
    subject       TEXT         NOT NULL DEFAULT '',
    body          TEXT         NOT NULL,
    version       INTEGER      NOT NULL DEFAULT 1,
    is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (template_code, language, version)
)`,
}

var indexes = []string{
	// 最新順の監査ログ参照用
	`CREATE INDEX IF NOT EXISTS idx_delivery_logs_notification ON delivery_logs(notification_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_error_logs_notification ON error_logs(notification_id, created_at DESC)`,
	// sweeper: due retries per channel
	`CREATE INDEX IF NOT EXISTS idx_channel_notifications_retry ON channel_notifications(channel, next_retry_at) WHERE next_retry_at IS NOT NULL`,
	// sweeper: claimed retries whose attempt never started
	`CREATE INDEX IF NOT EXISTS idx_channel_notifications_claimed ON channel_notifications(channel, updated_at) WHERE status = 'pending' AND next_retry_at IS NULL`,
	// sweeper: terminal rows not yet reported
	`CREATE INDEX IF NOT EXISTS idx_channel_notifications_unreported ON channel_notifications(channel, updated_at) WHERE reported_at IS NULL AND status IN ('delivered', 'failed')`,
	`CREATE INDEX IF NOT EXISTS idx_templates_lookup ON templates(template_code, language, version DESC) WHERE is_active = TRUE`,
}

// MigrateUp creates the schema. Every statement is idempotent so each process may run it on start.
func MigrateUp(db *sql.DB) error {
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}
