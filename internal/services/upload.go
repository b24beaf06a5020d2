package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"time"

	"github.com/kelsos/collector-sync/internal/client"
	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/machine"
	"github.com/kelsos/collector-sync/internal/models"
)

// ErrSimulatedFailure is returned by SimulatedUploader when it decides to fail.
var ErrSimulatedFailure = errors.New("simulated upload failure")

// HTTPUploader submits tasks to the collection API
type HTTPUploader struct {
	client *client.APIClient
}

// NewHTTPUploader creates an uploader on top of the given API client
func NewHTTPUploader(apiClient *client.APIClient) *HTTPUploader {
	return &HTTPUploader{client: apiClient}
}

// Submit uploads every asset that is not done yet and then the task record
func (u *HTTPUploader) Submit(ctx context.Context, task models.Task, report machine.Reporter) (any, error) {
	assetsEndpoint := fmt.Sprintf("/tasks/%s/assets", url.PathEscape(task.ID))

	for _, id := range sortedAssetIDs(task.Assets) {
		asset := task.Assets[id]
		if asset.State == models.TaskStateDone {
			continue
		}

		report.Progress(id, 0)
		var response models.APIResponse[models.AssetResult]
		if err := u.client.Post(ctx, assetsEndpoint, asset, &response); err != nil {
			return nil, fmt.Errorf("failed to upload asset %s: %w", id, err)
		}
		report.Uploaded(id, response.Result)
		logger.Debug("Uploaded asset %s of task %s", id, task.ID)
	}

	var response models.APIResponse[models.SubmitResult]
	if err := u.client.Post(ctx, "/tasks", task, &response); err != nil {
		return nil, fmt.Errorf("failed to submit task %s: %w", task.ID, err)
	}

	logger.Info("Submitted task %s", task.ID)
	return response.Result, nil
}

// SimulatedUploader pretends to upload by waiting, optionally failing at random
type SimulatedUploader struct {
	Delay     time.Duration
	ErrorRate float64
}

// Submit waits for Delay, moving progress of unfinished assets forward in steps
func (u *SimulatedUploader) Submit(ctx context.Context, task models.Task, report machine.Reporter) (any, error) {
	const steps = 4
	var ids []string
	for _, id := range sortedAssetIDs(task.Assets) {
		if task.Assets[id].State != models.TaskStateDone {
			ids = append(ids, id)
		}
	}

	for step := 1; step <= steps; step++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(u.Delay / steps):
		}

		for _, id := range ids {
			if step == steps {
				report.Uploaded(id, models.AssetResult{AssetID: id})
				continue
			}
			report.Progress(id, float64(step)/steps)
		}
	}

	if u.ErrorRate > 0 && rand.Float64() < u.ErrorRate {
		return nil, ErrSimulatedFailure
	}

	return models.SubmitResult{TaskID: task.ID, ReceivedAt: time.Now().Unix()}, nil
}

func sortedAssetIDs(assets map[string]models.Asset) []string {
	ids := make([]string, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
