package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-monitor/internal/domain"
)

// MailSettingsRepository loads the single mailbox configuration row.
type MailSettingsRepository interface {
	Get(ctx context.Context) (*domain.MailSettings, error)
}

type mailSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewMailSettingsRepository builds repository.
func NewMailSettingsRepository(pool *pgxpool.Pool) MailSettingsRepository {
	return &mailSettingsRepository{pool: pool}
}

func (r *mailSettingsRepository) Get(ctx context.Context) (*domain.MailSettings, error) {
	const query = `
        SELECT id, server, port, email, COALESCE(username, ''), encrypted_password, use_ssl, active,
               check_interval_minutes, COALESCE(smtp_server, ''), COALESCE(smtp_port, 0), smtp_use_ssl, updated_at
        FROM mail_settings ORDER BY updated_at DESC LIMIT 1`

	var settings domain.MailSettings
	if err := r.pool.QueryRow(ctx, query).Scan(
		&settings.ID,
		&settings.Server,
		&settings.Port,
		&settings.Email,
		&settings.Username,
		&settings.EncryptedPassword,
		&settings.UseSSL,
		&settings.Active,
		&settings.CheckIntervalMinutes,
		&settings.SMTPServer,
		&settings.SMTPPort,
		&settings.SMTPUseSSL,
		&settings.UpdatedAt,
	); err != nil {
		return nil, err
	}
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return &settings, nil
}
