package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaigner/internal/domain"
	"campaigner/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const campaignColumns = `
	id, name, message_template, target_tags, status, scheduled_at,
	sent_count, delivered_count, failed_count, read_count, created_at, updated_at
`

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.MessageTemplate, &c.TargetTags, &c.Status, &c.ScheduledAt,
		&c.SentCount, &c.DeliveredCount, &c.FailedCount, &c.ReadCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Campaign{}, false, nil
		}
		return domain.Campaign{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+campaignColumns+` FROM campaigns ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListDueCampaigns returns scheduled campaigns whose scheduled_at has
// arrived on the current calendar day.
func (s *Store) ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status='scheduled'
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at <= $1
		  AND scheduled_at::date = $1::date
		ORDER BY scheduled_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TryMarkRunning claims a campaign for a fresh run. The conditional UPDATE
// is the mutual-exclusion guard against overlapping triggers: only one
// caller observes claimed=true. Counters are reset as part of the claim.
func (s *Store) TryMarkRunning(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status='running', sent_count=0, delivered_count=0, failed_count=0, updated_at=$2
		WHERE id=$1 AND status IN ('draft','scheduled')
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// TryMarkCompleted short-circuits a campaign with no matching recipients
// straight to completed, under the same claim condition as TryMarkRunning.
func (s *Store) TryMarkCompleted(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET status='completed', updated_at=$2
		WHERE id=$1 AND status IN ('draft','scheduled')
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) SaveProgress(ctx context.Context, in store.ProgressUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE campaigns
		SET sent_count=$2, delivered_count=$3, failed_count=$4, updated_at=$5
		WHERE id=$1
	`, in.CampaignID, in.Sent, in.Delivered, in.Failed, in.Now)
	return err
}

func (s *Store) MarkStatus(ctx context.Context, id string, status domain.CampaignStatus, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE campaigns SET status=$2, updated_at=$3 WHERE id=$1
	`, id, status, now)
	return err
}

// RecipientsByTags resolves the target set. An empty tag list targets
// everyone; otherwise set-overlap semantics via the array && operator.
func (s *Store) RecipientsByTags(ctx context.Context, tags []string) ([]domain.Recipient, error) {
	if tags == nil {
		tags = []string{}
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, phone, company, attributes, tags
		FROM recipients
		WHERE cardinality($1::text[]) = 0 OR tags && $1::text[]
		ORDER BY id
	`, tags)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		var attrsJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.Company, &attrsJSON, &r.Tags); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attrsJSON, &r.Attributes)
		out = append(out, r)
	}
	return out, rows.Err()
}

// FindOrCreateOpenConversation returns the recipient's open conversation,
// creating one with newID when none exists. The partial unique index on
// (recipient_id) WHERE status='open' makes this a single upsert.
func (s *Store) FindOrCreateOpenConversation(ctx context.Context, recipientID, newID string, now time.Time) (string, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO conversations (id, recipient_id, status, created_at, updated_at)
		VALUES ($1, $2, 'open', $3, $3)
		ON CONFLICT (recipient_id) WHERE status='open'
		DO UPDATE SET updated_at=EXCLUDED.updated_at
		RETURNING id
	`, newID, recipientID, now)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// BulkInsertMessages writes the collected log records in one CopyFrom
// rather than one INSERT per send.
func (s *Store) BulkInsertMessages(ctx context.Context, records []store.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ID, r.CampaignID, r.RecipientID, r.ConversationID,
			nullIfEmpty(r.ChannelMessageID), r.Body, "outbound", r.CreatedAt,
		})
	}
	_, err := s.DB.CopyFrom(ctx,
		pgx.Identifier{"message_log"},
		[]string{"id", "campaign_id", "recipient_id", "conversation_id", "channel_message_id", "body", "direction", "created_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
