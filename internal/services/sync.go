package services

import (
	"context"
	"fmt"

	"github.com/kelsos/collector-sync/internal/client"
	"github.com/kelsos/collector-sync/internal/config"
	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/machine"
	"github.com/kelsos/collector-sync/internal/storage"
	"github.com/kelsos/collector-sync/internal/utils"
)

const apiReadyAttempts = 3

// SyncService wires storage, uploader and the task manager together
type SyncService struct {
	config  *config.Config
	client  *client.APIClient
	store   machine.Store
	manager *machine.Manager
}

// NewSyncService creates a new sync service with all dependencies
func NewSyncService(cfg *config.Config) (*SyncService, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	var apiClient *client.APIClient
	var submitter machine.Submitter
	if cfg.BaseURL != "" {
		apiClient = client.NewAPIClient(cfg)
		submitter = NewHTTPUploader(apiClient)
	} else {
		logger.Info("No base URL configured, using simulated uploads")
		submitter = &SimulatedUploader{Delay: cfg.SimulatedDelay, ErrorRate: cfg.SimulatedErrors}
	}

	return NewSyncServiceWith(cfg, store, submitter, apiClient), nil
}

// NewSyncServiceWith builds the service around explicit collaborators
func NewSyncServiceWith(cfg *config.Config, store machine.Store, submitter machine.Submitter, apiClient *client.APIClient) *SyncService {
	manager := machine.NewManager(store, submitter,
		machine.WithRetryDelay(cfg.RetryDelay),
		machine.WithRemoveDelay(cfg.RemoveDelay),
	)

	return &SyncService{
		config:  cfg,
		client:  apiClient,
		store:   store,
		manager: manager,
	}
}

// NewStore picks the in-memory fixture in mocked mode and the file store otherwise
func NewStore(cfg *config.Config) (machine.Store, error) {
	if cfg.Mocked {
		logger.Info("Using mocked demo tasks")
		return storage.NewFixtureStore(storage.DemoTasks()), nil
	}

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	return store, nil
}

// Start checks the API when one is configured and starts the manager
func (s *SyncService) Start(ctx context.Context) error {
	if s.client != nil {
		// An unreachable API is not fatal, uploads keep retrying.
		if !utils.WaitForAPIReady(ctx, s.client.Ping, apiReadyAttempts, s.config.RetryDelay) {
			logger.Warn("Collection API is not reachable yet, uploads will retry")
		}
	}

	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task manager: %w", err)
	}
	return nil
}

// Manager returns the running task manager
func (s *SyncService) Manager() *machine.Manager {
	return s.manager
}

// Cleanup stops the manager and every task machine
func (s *SyncService) Cleanup() {
	if s.manager != nil {
		s.manager.Stop()
	}
}
