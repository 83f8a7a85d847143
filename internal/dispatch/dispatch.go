package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"campaigner/internal/domain"
	"campaigner/internal/observability"
	"campaigner/internal/providers/waba"
	"campaigner/internal/store"
	"campaigner/internal/util"
)

const (
	DefaultBatchSize   = 10
	DefaultStagger     = 200 * time.Millisecond
	DefaultSendTimeout = 6 * time.Second
)

type Store interface {
	GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error)
	TryMarkRunning(ctx context.Context, id string, now time.Time) (bool, error)
	TryMarkCompleted(ctx context.Context, id string, now time.Time) (bool, error)
	SaveProgress(ctx context.Context, in store.ProgressUpdate) error
	MarkStatus(ctx context.Context, id string, status domain.CampaignStatus, now time.Time) error
	RecipientsByTags(ctx context.Context, tags []string) ([]domain.Recipient, error)
	FindOrCreateOpenConversation(ctx context.Context, recipientID, newID string, now time.Time) (string, error)
	BulkInsertMessages(ctx context.Context, records []store.MessageRecord) error
}

type GatewaySender interface {
	SendMessage(ctx context.Context, req waba.SendRequest) (waba.SendResponse, int, []byte, error)
}

type Personalizer interface {
	Personalize(ctx context.Context, template string, r domain.Recipient, campaignName string) string
}

// Dispatcher executes one campaign end-to-end: resolve recipients,
// personalize, send in bounded-concurrency batches, checkpoint progress
// after each batch, finalize status. It is the single writer of a
// campaign's status and counters for the duration of a run.
type Dispatcher struct {
	Store        Store
	Sender       GatewaySender
	Personalizer Personalizer
	Limiter      *rate.Limiter
	Breaker      *gobreaker.CircuitBreaker

	BatchSize   int
	Stagger     time.Duration
	SendTimeout time.Duration

	Now               func() time.Time
	NewMessageID      func() string
	NewConversationID func() string
}

// Run dispatches a single campaign. A campaign that is not in draft or
// scheduled state is rejected before any work begins; the conditional
// store transition is the backstop against overlapping triggers.
func (d *Dispatcher) Run(ctx context.Context, campaignID string) (domain.DispatchSummary, error) {
	summary := domain.DispatchSummary{CampaignID: campaignID}

	campaign, found, err := d.Store.GetCampaign(ctx, campaignID)
	if err != nil {
		return summary, &domain.DispatchError{CampaignID: campaignID, Stage: "load", Err: err}
	}
	if !found {
		return summary, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, campaignID)
	}
	if !campaign.Status.Dispatchable() {
		observability.DispatchRuns.WithLabelValues("rejected").Inc()
		return summary, fmt.Errorf("campaign %s is %s: %w", campaignID, campaign.Status, domain.ErrAlreadyDispatched)
	}

	recipients, err := d.Store.RecipientsByTags(ctx, campaign.TargetTags)
	if err != nil {
		return summary, d.fail(ctx, campaignID, "resolve", err)
	}
	summary.Resolved = len(recipients)

	// Zero matching recipients is a valid outcome, not an error.
	if len(recipients) == 0 {
		claimed, err := d.Store.TryMarkCompleted(ctx, campaignID, d.now())
		if err != nil {
			return summary, d.fail(ctx, campaignID, "finalize", err)
		}
		if !claimed {
			observability.DispatchRuns.WithLabelValues("rejected").Inc()
			return summary, fmt.Errorf("campaign %s: %w", campaignID, domain.ErrAlreadyDispatched)
		}
		observability.DispatchRuns.WithLabelValues("empty").Inc()
		slog.Info("campaign completed with no matching recipients", "campaign_id", campaignID)
		return summary, nil
	}

	// Claim before any sends so concurrent readers observe the transition
	// and a second overlapping dispatch loses the conditional update.
	claimed, err := d.Store.TryMarkRunning(ctx, campaignID, d.now())
	if err != nil {
		return summary, d.fail(ctx, campaignID, "claim", err)
	}
	if !claimed {
		observability.DispatchRuns.WithLabelValues("rejected").Inc()
		return summary, fmt.Errorf("campaign %s: %w", campaignID, domain.ErrAlreadyDispatched)
	}

	slog.Info("campaign dispatch started",
		"campaign_id", campaignID,
		"recipients", len(recipients),
		"batch_size", d.batchSize(),
	)

	var records []store.MessageRecord
	batchSize := d.batchSize()

	// Batches run strictly sequentially; only sends inside one batch are
	// concurrent. Each batch ends with a persisted checkpoint, so a crash
	// mid-run leaves counters reflecting whole batches only.
	for start := 0; start < len(recipients); start += batchSize {
		end := min(start+batchSize, len(recipients))
		outcomes, batchRecords := d.sendBatch(ctx, campaign, recipients[start:end])

		for _, o := range outcomes {
			if o.Err != nil {
				summary.Failed++
				slog.Warn("recipient send failed",
					"campaign_id", campaignID,
					"recipient_id", o.RecipientID,
					"err", o.Err,
				)
				continue
			}
			summary.Sent++
			summary.Delivered++
		}
		records = append(records, batchRecords...)

		if err := d.Store.SaveProgress(ctx, store.ProgressUpdate{
			CampaignID: campaignID,
			Sent:       summary.Sent,
			Delivered:  summary.Delivered,
			Failed:     summary.Failed,
			Now:        d.now(),
		}); err != nil {
			return summary, d.fail(ctx, campaignID, "checkpoint", err)
		}
		observability.Checkpoints.Inc()
	}

	if err := d.Store.BulkInsertMessages(ctx, records); err != nil {
		return summary, d.fail(ctx, campaignID, "message_log", err)
	}
	if err := d.Store.MarkStatus(ctx, campaignID, domain.StatusCompleted, d.now()); err != nil {
		return summary, d.fail(ctx, campaignID, "finalize", err)
	}

	observability.DispatchRuns.WithLabelValues("ok").Inc()
	slog.Info("campaign dispatch completed",
		"campaign_id", campaignID,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

// sendBatch processes one batch with bounded parallelism equal to the
// batch size. Outcomes are indexed by position; log records for
// successful sends are collected for the post-run bulk insert.
func (d *Dispatcher) sendBatch(ctx context.Context, campaign domain.Campaign, batch []domain.Recipient) ([]domain.SendOutcome, []store.MessageRecord) {
	outcomes := make([]domain.SendOutcome, len(batch))
	records := make([]store.MessageRecord, 0, len(batch))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, r := range batch {
		wg.Add(1)
		go func(pos int, r domain.Recipient) {
			defer wg.Done()

			// Staggered start smooths the burst against the gateway's
			// own rate limit; not a correctness requirement.
			if d.stagger() > 0 && pos > 0 {
				select {
				case <-time.After(time.Duration(pos) * d.stagger()):
				case <-ctx.Done():
					outcomes[pos] = domain.SendOutcome{RecipientID: r.ID, Err: ctx.Err()}
					return
				}
			}

			body := d.Personalizer.Personalize(ctx, campaign.MessageTemplate, r, campaign.Name)

			msgID, err := d.send(ctx, r.Phone, body)
			if err != nil {
				outcomes[pos] = domain.SendOutcome{RecipientID: r.ID, Err: err}
				return
			}
			outcomes[pos] = domain.SendOutcome{RecipientID: r.ID, Delivered: true, ChannelMessageID: msgID}

			convID, err := d.Store.FindOrCreateOpenConversation(ctx, r.ID, d.newConversationID(), d.now())
			if err != nil {
				// The message left the gateway; losing the log row must
				// not fail the recipient or the run.
				slog.Warn("conversation link failed, skipping log record",
					"campaign_id", campaign.ID, "recipient_id", r.ID, "err", err)
				return
			}

			mu.Lock()
			records = append(records, store.MessageRecord{
				ID:               d.newMessageID(),
				CampaignID:       campaign.ID,
				RecipientID:      r.ID,
				ConversationID:   convID,
				ChannelMessageID: msgID,
				Body:             body,
				CreatedAt:        d.now(),
			})
			mu.Unlock()
		}(i, r)
	}
	wg.Wait()

	return outcomes, records
}

// send performs one gateway call behind the shared limiter and breaker.
// There are no per-recipient retries within a run: a failed recipient is
// simply not sent again this cycle.
func (d *Dispatcher) send(ctx context.Context, to, body string) (string, error) {
	if d.Limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := d.Limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			observability.ChannelSend.WithLabelValues("rate_limited_local").Inc()
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	call := func() (any, error) {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
		defer cancel()
		resp, _, _, err := d.Sender.SendMessage(sendCtx, waba.SendRequest{To: to, Body: body})
		if err != nil {
			return nil, err
		}
		return resp.MessageID, nil
	}

	start := time.Now()
	var res any
	var err error
	if d.Breaker != nil {
		res, err = d.Breaker.Execute(call)
	} else {
		res, err = call()
	}
	if err != nil {
		observability.ChannelSend.WithLabelValues("error").Inc()
		return "", err
	}
	observability.ChannelSend.WithLabelValues("ok").Inc()
	observability.ChannelLatency.Observe(time.Since(start).Seconds())
	return res.(string), nil
}

// fail transitions the campaign to paused and wraps the error with the
// campaign id and failure stage. Paused campaigns are not retried
// automatically; an operator resumes them.
func (d *Dispatcher) fail(ctx context.Context, campaignID, stage string, err error) error {
	observability.DispatchRuns.WithLabelValues("paused").Inc()
	if perr := d.Store.MarkStatus(ctx, campaignID, domain.StatusPaused, d.now()); perr != nil {
		slog.Error("could not mark campaign paused", "campaign_id", campaignID, "err", perr)
	}
	return &domain.DispatchError{CampaignID: campaignID, Stage: stage, Err: err}
}

func (d *Dispatcher) batchSize() int {
	if d.BatchSize > 0 {
		return d.BatchSize
	}
	return DefaultBatchSize
}

func (d *Dispatcher) stagger() time.Duration {
	if d.Stagger > 0 {
		return d.Stagger
	}
	return DefaultStagger
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.SendTimeout > 0 {
		return d.SendTimeout
	}
	return DefaultSendTimeout
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return util.NowUTC()
}

func (d *Dispatcher) newMessageID() string {
	if d.NewMessageID != nil {
		return d.NewMessageID()
	}
	return util.NewMessageID()
}

func (d *Dispatcher) newConversationID() string {
	if d.NewConversationID != nil {
		return d.NewConversationID()
	}
	return util.NewConversationID()
}
