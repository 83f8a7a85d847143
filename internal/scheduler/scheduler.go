package scheduler

import (
	"context"
	"log/slog"
	"time"

	"campaigner/internal/domain"
	"campaigner/internal/util"
)

type CampaignSource interface {
	ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error)
}

type Runner interface {
	Run(ctx context.Context, campaignID string) (domain.DispatchSummary, error)
}

// Gateway is the thin orchestration loop in front of the dispatcher. It
// scans for due campaigns and runs each as an independent sequential job.
type Gateway struct {
	Store      CampaignSource
	Dispatcher Runner
	Now        func() time.Time
}

// RunDue dispatches every campaign due at the current time. One
// campaign's failure is logged and does not stop the rest; Processed
// counts attempted campaigns, not only successful ones.
func (g *Gateway) RunDue(ctx context.Context, source string) (domain.RunDueSummary, error) {
	now := g.now()
	due, err := g.Store.ListDueCampaigns(ctx, now)
	if err != nil {
		return domain.RunDueSummary{}, err
	}

	var summary domain.RunDueSummary
	for _, c := range due {
		summary.Processed++
		res, err := g.Dispatcher.Run(ctx, c.ID)
		if err != nil {
			slog.Error("due campaign dispatch failed",
				"campaign_id", c.ID,
				"source", source,
				"err", err,
			)
			continue
		}
		summary.Sent += res.Sent
	}

	slog.Info("due campaign scan finished",
		"source", source,
		"due", len(due),
		"processed", summary.Processed,
		"sent", summary.Sent,
	)
	return summary, nil
}

// RunSingle dispatches one campaign by id. Not-found and
// already-running/completed preconditions surface as descriptive errors
// from the dispatcher before any sends happen.
func (g *Gateway) RunSingle(ctx context.Context, campaignID string) (domain.DispatchSummary, error) {
	return g.Dispatcher.Run(ctx, campaignID)
}

func (g *Gateway) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return g.Store.ListCampaigns(ctx)
}

func (g *Gateway) GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error) {
	return g.Store.GetCampaign(ctx, id)
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return util.NowUTC()
}
