package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/elonfeng/sentiradar/internal/config"
	"github.com/elonfeng/sentiradar/internal/logging"
	"github.com/elonfeng/sentiradar/internal/scheduler"
	"github.com/elonfeng/sentiradar/internal/store"
	"github.com/elonfeng/sentiradar/pkg/alert"
	"github.com/elonfeng/sentiradar/pkg/refresh"
	"github.com/elonfeng/sentiradar/pkg/sentiment"
	"github.com/elonfeng/sentiradar/pkg/server"
	"github.com/elonfeng/sentiradar/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.SQLStore, error) {
	dsn := cfg.Database.Path
	if cfg.Database.Driver == "postgres" {
		dsn = cfg.Database.DSN
	}
	db, err := store.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers, cfg.Alerts.NotifySuccess)
}

// buildRunner validates the config, seeds the configured subreddits and wires
// the pipeline.
func buildRunner(ctx context.Context, cfg *config.Config, db store.Store) (*refresh.Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := db.EnsureCommunities(ctx, cfg.Reddit.Subreddits); err != nil {
		return nil, fmt.Errorf("seed communities: %w", err)
	}

	rc := cfg.Reddit
	tokens := source.NewTokenManager(source.Credentials{
		ClientID:     rc.ClientID,
		ClientSecret: rc.ClientSecret,
		Username:     rc.Username,
		Password:     rc.Password,
		UserAgent:    rc.UserAgent,
		TokenURL:     rc.TokenURL,
	}, nil)
	client := source.NewClient(tokens, source.ClientOptions{
		BaseURL:        rc.APIBaseURL,
		UserAgent:      rc.UserAgent,
		Timeout:        rc.ParseTimeout(),
		RetryBaseDelay: rc.ParseRetryBaseDelay(),
	})
	processor := refresh.NewProcessor(client, sentiment.NewVader(), refresh.ProcessorOptions{
		PostLimit:    rc.PostLimit,
		CommentLimit: rc.CommentLimit,
		RequestDelay: rc.ParseRequestDelay(),
	})

	var notifier refresh.Notifier
	if mgr := buildAlertManager(cfg); mgr.HasNotifiers() {
		notifier = mgr
	}
	return refresh.NewRunner(db, tokens, processor, notifier), nil
}

func runRefresh(timeframe, keyword string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner, err := buildRunner(ctx, cfg, db)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "refreshing %d subreddits (%s)...\n", len(cfg.Reddit.Subreddits), timeframe)
	res, err := runner.Run(ctx, refresh.Request{Timeframe: timeframe, Keyword: keyword})
	if res == nil {
		return err
	}

	if jsonOutput {
		if encErr := printJSON(res); encErr != nil {
			return encErr
		}
		return err
	}

	fmt.Printf("run:        %s\n", res.RunID)
	fmt.Printf("status:     %s\n", res.Status)
	fmt.Printf("posts:      %d\n", res.Counts.Posts)
	fmt.Printf("comments:   %d\n", res.Counts.Comments)
	fmt.Printf("sentiments: %d\n", res.Counts.Sentiments)
	fmt.Printf("duration:   %s\n", res.Duration.Round(time.Millisecond))
	for _, w := range res.Warnings {
		fmt.Printf("warning:    %s\n", w)
	}
	return err
}

func runStatus(id string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.GetRun(context.Background(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(run)
	}

	fmt.Printf("run:        %s\n", run.ID)
	fmt.Printf("status:     %s\n", run.Status)
	fmt.Printf("timeframe:  %s\n", run.Timeframe)
	if run.Keyword != nil {
		fmt.Printf("keyword:    %s\n", *run.Keyword)
	}
	fmt.Printf("triggered:  %s\n", run.TriggeredAt.Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Printf("finished:   %s\n", run.FinishedAt.Format(time.RFC3339))
		fmt.Printf("duration:   %s\n", time.Duration(run.DurationMS)*time.Millisecond)
	}
	fmt.Printf("posts:      %d\n", run.PostsProcessed)
	fmt.Printf("comments:   %d\n", run.CommentsProcessed)
	fmt.Printf("sentiments: %d\n", run.SentimentsProcessed)
	if run.Error != nil {
		fmt.Printf("error:      %s\n", *run.Error)
	}
	return nil
}

func runRuns(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs yet (try: sentiradar refresh)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMEFRAME\tSTATUS\tPOSTS\tCOMMENTS\tTRIGGERED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Timeframe, r.Status, r.PostsProcessed, r.CommentsProcessed,
			r.TriggeredAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runAggregates(timeframe, community string, limit int, jsonOutput bool) error {
	if timeframe != "" {
		if _, err := refresh.ParseTimeframe(timeframe); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.ListAggregates(context.Background(), store.AggregateListOpts{
		Timeframe: timeframe,
		Community: community,
		Limit:     limit,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Println("no aggregates found (try: sentiradar refresh)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tSUBREDDIT\tTIMEFRAME\tPOS\tNEU\tNEG\tTOTAL")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.BucketStart, r.CommunityName, r.Timeframe,
			r.Positive, r.Neutral, r.Negative, r.ActivityCount)
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return serve(cfg, port, cfg.Schedule.Enabled)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return serve(cfg, port, true)
}

func serve(cfg *config.Config, port int, schedule bool) error {
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner, err := buildRunner(ctx, cfg, db)
	if err != nil {
		return err
	}

	if schedule {
		sched := scheduler.New(runner, cfg.Schedule.Timeframes, cfg.Schedule.ParseInterval())
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("scheduler stopped")
			}
		}()
		logging.Info().Str("timeframes", strings.Join(cfg.Schedule.Timeframes, ",")).Msg("scheduler enabled")
	}

	srv := server.New(db, runner, port, cfg.Server.TriggerRateLimit)
	return srv.ListenAndServe(ctx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
