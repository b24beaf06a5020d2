package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/collector-sync/internal/backup"
	"github.com/kelsos/collector-sync/internal/config"
	"github.com/kelsos/collector-sync/internal/logger"
	"github.com/kelsos/collector-sync/internal/machine"
	"github.com/kelsos/collector-sync/internal/models"
	"github.com/kelsos/collector-sync/internal/process"
	"github.com/kelsos/collector-sync/internal/services"
	"github.com/kelsos/collector-sync/internal/storage"
	"github.com/kelsos/collector-sync/internal/tui"
	"github.com/kelsos/collector-sync/internal/utils"
)

// parseFields turns repeated key=value flags into task data. Numbers and
// booleans keep their type, everything else stays a string.
func parseFields(fields []string) (map[string]any, error) {
	data := make(map[string]any, len(fields))
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", field)
		}

		if n, err := strconv.ParseFloat(value, 64); err == nil {
			data[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			data[key] = b
		} else {
			data[key] = value
		}
	}
	return data, nil
}

// printTasks writes one line per task, oldest first.
func printTasks(w io.Writer, tasks models.Tasks) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No saved tasks")
		return
	}

	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := tasks[a].CollectedOn.Compare(tasks[b].CollectedOn); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	for _, id := range ids {
		task := tasks[id]
		fmt.Fprintf(w, "%-36s  %-9s  %s  %d fields  %d assets\n",
			id, task.State, task.CollectedOn.Local().Format("2006-01-02 15:04"), len(task.Data), len(task.Assets))
	}
}

// showTask prints a single saved task as indented JSON.
func showTask(ctx context.Context, w io.Writer, store *storage.FileStore, id string) error {
	task, err := store.GetTask(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no saved task with id %s", id)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", id, err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// logPath places a relative log directory inside the data directory.
func logPath(cfg *config.Config) (string, error) {
	if filepath.IsAbs(cfg.LogDir) {
		return cfg.LogDir, nil
	}
	dataDir, err := storage.ResolveDataDir(cfg.DataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, cfg.LogDir), nil
}

// runHeadless logs manager progress and returns once every task is uploaded
// or a signal arrives.
func runHeadless(ctx context.Context, manager *machine.Manager) {
	drained := make(chan struct{})
	go func() {
		updates, unsubscribe := manager.Subscribe()
		defer unsubscribe()

		var lastState machine.ManagerStateName
		lastCount := -1
		for snap := range updates {
			if snap.State != lastState || len(snap.Tasks) != lastCount {
				logger.Info("Manager %s with %d tasks", snap.State, len(snap.Tasks))
				lastState, lastCount = snap.State, len(snap.Tasks)
			}
			if snap.Matches(machine.ManagerIdle) && !snap.HasTasks() {
				logger.Info("All tasks uploaded")
				close(drained)
				return
			}
		}
	}()

	process.WaitForExit(ctx, drained)
}

func main() {
	logger.Init()
	utils.LoadEnvironment()

	var (
		dataDir         string
		baseURL         string
		logLevel        string
		mocked          bool
		headless        bool
		retryDelay      int
		removeDelay     int
		simulatedErrors float64
	)

	loadConfig := func(cmd *cobra.Command) (*config.Config, error) {
		if logLevel != "" {
			logger.SetLevel(logLevel)
		}

		cfg := config.NewConfig()
		cfg.LoadFromEnvironment()

		flags := cmd.Flags()
		if flags.Changed("data-dir") {
			cfg.DataDir = dataDir
		}
		if flags.Changed("mocked") {
			cfg.Mocked = mocked
		}
		if flags.Changed("base-url") {
			cfg.BaseURL = baseURL
		}
		if flags.Changed("retry-delay") {
			cfg.RetryDelay = time.Duration(retryDelay) * time.Millisecond
		}
		if flags.Changed("remove-delay") {
			cfg.RemoveDelay = time.Duration(removeDelay) * time.Millisecond
		}
		if flags.Changed("simulated-errors") {
			cfg.SimulatedErrors = simulatedErrors
		}

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	openStore := func(cmd *cobra.Command) (*storage.FileStore, error) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		return storage.NewFileStore(cfg.DataDir)
	}

	rootCmd := &cobra.Command{
		Use:   "collector-sync",
		Short: "Upload collected tasks and retry the ones that fail",
		Long: `collector-sync loads the tasks saved on this device and uploads each one,
retrying failed uploads until they succeed.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				logger.Fatal("%v", err)
			}

			if !headless {
				dir, err := logPath(cfg)
				if err != nil {
					logger.Fatal("Failed to resolve log directory: %v", err)
				}
				logFile, err := logger.InitFileOnly(dir)
				if err != nil {
					logger.Fatal("Failed to open log file: %v", err)
				}
				defer logger.Close()
				logger.SetLevel(logLevel)
				logger.Info("Logging to %s", logFile)
			}

			service, err := services.NewSyncService(cfg)
			if err != nil {
				logger.Fatal("Failed to create sync service: %v", err)
			}
			defer service.Cleanup()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if err := service.Start(ctx); err != nil {
				logger.Fatal("Failed to start sync service: %v", err)
			}

			if headless {
				runHeadless(ctx, service.Manager())
				return
			}

			monitor := tui.NewSyncMonitor(service.Manager())
			if err := monitor.Start(); err != nil {
				logger.Fatal("Failed to start monitor: %v", err)
			}
			if err := monitor.Run(ctx); err != nil {
				logger.Error("Monitor exited with error: %v", err)
			}
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Save the demo tasks to the data directory",
		Run: func(cmd *cobra.Command, args []string) {
			store, err := openStore(cmd)
			if err != nil {
				logger.Fatal("Failed to open task store: %v", err)
			}
			for _, task := range storage.DemoTasks() {
				if err := store.SaveTask(cmd.Context(), task); err != nil {
					logger.Fatal("Failed to save task %s: %v", task.ID, err)
				}
			}
			logger.Info("Saved demo tasks to %s", store.Dir())
		},
	}

	var (
		fields    []string
		latitude  float64
		longitude float64
	)
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Save a new pending task",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := parseFields(fields)
			if err != nil {
				logger.Fatal("%v", err)
			}
			store, err := openStore(cmd)
			if err != nil {
				logger.Fatal("Failed to open task store: %v", err)
			}

			task := models.NewTask(data, models.Geometry{Latitude: latitude, Longitude: longitude})
			if err := store.SaveTask(cmd.Context(), task); err != nil {
				logger.Fatal("Failed to save task: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), task.ID)
		},
	}
	addCmd.Flags().StringArrayVarP(&fields, "field", "f", nil, "Task field as key=value (repeatable)")
	addCmd.Flags().Float64Var(&latitude, "lat", 0, "Latitude where the task was collected")
	addCmd.Flags().Float64Var(&longitude, "lon", 0, "Longitude where the task was collected")

	listCmd := &cobra.Command{
		Use:   "list [task-id]",
		Short: "List the saved tasks or show one of them",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store, err := openStore(cmd)
			if err != nil {
				logger.Fatal("Failed to open task store: %v", err)
			}
			if len(args) == 1 {
				if err := showTask(cmd.Context(), cmd.OutOrStdout(), store, args[0]); err != nil {
					logger.Fatal("%v", err)
				}
				return
			}
			tasks, err := store.LoadTasks(cmd.Context())
			if err != nil {
				logger.Fatal("Failed to load tasks: %v", err)
			}
			printTasks(cmd.OutOrStdout(), tasks)
		},
	}

	var backupDir string
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the saved tasks",
		Long:  `Create a zip archive of the task files in the data directory.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				logger.Fatal("%v", err)
			}
			target := cfg.BackupDir
			if backupDir != "" {
				target = backupDir
			}
			backupFile, err := backup.CreateBackup(cfg.DataDir, target)
			if err != nil {
				logger.Fatal("Failed to create backup: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), backupFile)
		},
	}
	backupCmd.Flags().StringVarP(&backupDir, "backup-dir", "", "", "Directory where the backup will be stored (default: ~/backups)")

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "", "", "Directory where tasks are saved (default: ~/.collector-sync)")
	rootCmd.PersistentFlags().BoolVarP(&mocked, "mocked", "m", false, "Use the in-memory demo tasks instead of the data directory")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&baseURL, "base-url", "u", "", "Collection API base URL (simulated uploads when empty)")
	rootCmd.Flags().BoolVarP(&headless, "headless", "", false, "Log progress instead of showing the monitor")
	rootCmd.Flags().IntVarP(&retryDelay, "retry-delay", "d", 1000, "Delay before a failed upload is retried in milliseconds")
	rootCmd.Flags().IntVarP(&removeDelay, "remove-delay", "", 200, "Delay before an uploaded task is removed in milliseconds")
	rootCmd.Flags().Float64VarP(&simulatedErrors, "simulated-errors", "", 0, "Failure rate of simulated uploads between 0 and 1")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(backupCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Failed to execute command: %v", err)
	}
}
