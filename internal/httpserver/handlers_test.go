package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campaigner/internal/domain"
	"campaigner/internal/scheduler"
)

type fakeSource struct {
	campaigns []domain.Campaign
}

func (f *fakeSource) ListDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeSource) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return f.campaigns, nil
}

func (f *fakeSource) GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error) {
	for _, c := range f.campaigns {
		if c.ID == id {
			return c, true, nil
		}
	}
	return domain.Campaign{}, false, nil
}

type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, campaignID string) (domain.DispatchSummary, error) {
	switch campaignID {
	case "cmp_ok":
		return domain.DispatchSummary{CampaignID: campaignID, Resolved: 3, Sent: 3, Delivered: 3}, nil
	case "cmp_running":
		return domain.DispatchSummary{}, fmt.Errorf("campaign %s is running: %w", campaignID, domain.ErrAlreadyDispatched)
	default:
		return domain.DispatchSummary{}, fmt.Errorf("%w: %s", domain.ErrCampaignNotFound, campaignID)
	}
}

func newTestServer(campaigns ...domain.Campaign) *httptest.Server {
	s := New()
	api := &API{Gateway: &scheduler.Gateway{
		Store:      &fakeSource{campaigns: campaigns},
		Dispatcher: fakeRunner{},
	}}
	api.Register(s.Mux)
	return httptest.NewServer(s.Mux)
}

func TestDispatchEndpoint(t *testing.T) {
	srv := newTestServer(domain.Campaign{ID: "cmp_ok", Status: domain.StatusScheduled})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/campaigns/cmp_ok/dispatch", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary domain.DispatchSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	require.Equal(t, 3, summary.Sent)
	require.Equal(t, summary.Sent, summary.Delivered)
}

func TestDispatchEndpointNotFound(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/campaigns/cmp_missing/dispatch", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDispatchEndpointConflict(t *testing.T) {
	srv := newTestServer(domain.Campaign{ID: "cmp_running", Status: domain.StatusRunning})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/campaigns/cmp_running/dispatch", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunDueEndpoint(t *testing.T) {
	srv := newTestServer(domain.Campaign{ID: "cmp_ok", Status: domain.StatusScheduled})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/campaigns/run-due", "application/json",
		strings.NewReader(`{"source":"ops"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary domain.RunDueSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 3, summary.Sent)
}

func TestListCampaignsEndpoint(t *testing.T) {
	srv := newTestServer(
		domain.Campaign{ID: "cmp_a", Name: "A", Status: domain.StatusCompleted, SentCount: 10},
		domain.Campaign{ID: "cmp_b", Name: "B", Status: domain.StatusScheduled},
	)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/campaigns")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []domain.Campaign
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	require.Equal(t, 10, out[0].SentCount)
}

func TestGetCampaignEndpoint(t *testing.T) {
	srv := newTestServer(domain.Campaign{ID: "cmp_a", Name: "A", Status: domain.StatusDraft})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/campaigns/cmp_a")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	missing, err := http.Get(srv.URL + "/v1/campaigns/cmp_zzz")
	require.NoError(t, err)
	missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}
