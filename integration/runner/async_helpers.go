package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/wintersim/muonio/pkg/scenario"
)

const (
	// PollInterval is how often to check the API for a stored run
	PollInterval = 250 * time.Millisecond
	// RunVisibleTimeout is max time to wait for a run to appear in the API
	RunVisibleTimeout = 10 * time.Second
)

// errRunNotFound is returned by GetRun on a 404.
var errRunNotFound = errors.New("run not found")

// CheckHealth calls the API health endpoint and fails unless it reports healthy.
func CheckHealth(ctx context.Context, client *http.Client, baseURL string) error {
	url := fmt.Sprintf("%s/health", baseURL)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send health request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// GetRun retrieves a stored run record
func GetRun(ctx context.Context, client *http.Client, baseURL string, runID uuid.UUID) (*scenario.Record, error) {
	url := fmt.Sprintf("%s/v1/runs/%s", baseURL, runID.String())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create run request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send run request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errRunNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("runs endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var rec scenario.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode run: %w", err)
	}

	return &rec, nil
}

// PollForRun polls the API until the run is visible or RunVisibleTimeout passes.
func PollForRun(ctx context.Context, client *http.Client, baseURL string, runID uuid.UUID) (*scenario.Record, error) {
	timeout := time.After(RunVisibleTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		rec, err := GetRun(ctx, client, baseURL, runID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, errRunNotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for run %s to appear (waited %v)", runID, RunVisibleTimeout)
		case <-ticker.C:
		}
	}
}
