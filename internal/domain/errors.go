package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrAlreadyDispatched = errors.New("campaign already running or completed")
)

// DispatchError identifies which stage of a run failed for which campaign.
type DispatchError struct {
	CampaignID string
	Stage      string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch campaign %s: stage %s: %v", e.CampaignID, e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
