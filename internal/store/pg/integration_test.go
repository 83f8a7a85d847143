//go:build integration
// +build integration

package pg_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"campaigner/internal/dispatch"
	"campaigner/internal/domain"
	"campaigner/internal/personalize"
	"campaigner/internal/providers/waba"
	"campaigner/internal/store/pg"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	require.NoError(t, pg.Migrate(dsn))

	db, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Exec(context.Background(),
		`TRUNCATE message_log, conversations, recipients, campaigns CASCADE`)
	require.NoError(t, err)
	return db
}

func seedCampaign(t *testing.T, db *pgxpool.Pool, id string, status domain.CampaignStatus, tags []string) {
	t.Helper()
	if tags == nil {
		tags = []string{}
	}
	_, err := db.Exec(context.Background(), `
		INSERT INTO campaigns (id, name, message_template, target_tags, status)
		VALUES ($1, 'Autumn Sale', 'Hello {{name}}, our autumn sale starts today at {{company}}!', $2, $3)
	`, id, tags, status)
	require.NoError(t, err)
}

func seedRecipient(t *testing.T, db *pgxpool.Pool, id, name, phone string, tags []string) {
	t.Helper()
	if tags == nil {
		tags = []string{}
	}
	attrs, _ := json.Marshal(map[string]string{})
	_, err := db.Exec(context.Background(), `
		INSERT INTO recipients (id, name, phone, company, attributes, tags)
		VALUES ($1, $2, $3, 'Acme', $4, $5)
	`, id, name, phone, attrs, tags)
	require.NoError(t, err)
}

func TestDispatchEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := pg.New(db)

	seedCampaign(t, db, "cmp_1", domain.StatusScheduled, []string{"vip"})
	seedRecipient(t, db, "rcp_1", "Ana", "+15550000001", []string{"vip"})
	seedRecipient(t, db, "rcp_2", "Ben", "+15550000002", []string{"vip", "beta"})
	seedRecipient(t, db, "rcp_3", "Cid", "+15550000003", []string{"other"})

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req waba.SendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.To == "+15550000002" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(waba.SendResponse{MessageID: "wamid_" + req.To, Status: "accepted"})
	}))
	defer gw.Close()

	d := &dispatch.Dispatcher{
		Store:        store,
		Sender:       &waba.Client{APIKey: "k", BaseURL: gw.URL, HTTP: gw.Client()},
		Personalizer: &personalize.Personalizer{},
		Stagger:      time.Millisecond,
	}

	summary, err := d.Run(ctx, "cmp_1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.Resolved, "tag overlap excludes rcp_3")
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, 1, summary.Failed)

	c, found, err := store.GetCampaign(ctx, "cmp_1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.StatusCompleted, c.Status)
	require.Equal(t, 1, c.SentCount)
	require.Equal(t, 1, c.DeliveredCount)
	require.Equal(t, 1, c.FailedCount)

	var logged int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT count(*) FROM message_log WHERE campaign_id='cmp_1'`).Scan(&logged))
	require.Equal(t, 1, logged)

	var conversations int
	require.NoError(t, db.QueryRow(ctx,
		`SELECT count(*) FROM conversations WHERE status='open'`).Scan(&conversations))
	require.Equal(t, 1, conversations)
}

func TestTryMarkRunningIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := pg.New(db)

	seedCampaign(t, db, "cmp_1", domain.StatusScheduled, nil)

	first, err := store.TryMarkRunning(ctx, "cmp_1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.TryMarkRunning(ctx, "cmp_1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, second, "second claim loses the conditional update")
}

func TestListDueCampaigns(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := pg.New(db)

	now := time.Now().UTC()
	seedCampaign(t, db, "cmp_due", domain.StatusScheduled, nil)
	seedCampaign(t, db, "cmp_future", domain.StatusScheduled, nil)
	seedCampaign(t, db, "cmp_draft", domain.StatusDraft, nil)

	_, err := db.Exec(ctx, `UPDATE campaigns SET scheduled_at=$1 WHERE id='cmp_due'`, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = db.Exec(ctx, `UPDATE campaigns SET scheduled_at=$1 WHERE id='cmp_future'`, now.Add(48*time.Hour))
	require.NoError(t, err)

	due, err := store.ListDueCampaigns(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "cmp_due", due[0].ID)
}

func TestFindOrCreateOpenConversation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := pg.New(db)

	seedRecipient(t, db, "rcp_1", "Ana", "+15550000001", nil)

	now := time.Now().UTC()
	first, err := store.FindOrCreateOpenConversation(ctx, "rcp_1", "cnv_a", now)
	require.NoError(t, err)
	require.Equal(t, "cnv_a", first)

	second, err := store.FindOrCreateOpenConversation(ctx, "rcp_1", "cnv_b", now)
	require.NoError(t, err)
	require.Equal(t, "cnv_a", second, "existing open conversation is reused")
}
