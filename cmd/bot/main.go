package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/siegecorps/siegebot/internal/aggregator"
	"github.com/siegecorps/siegebot/internal/config"
	"github.com/siegecorps/siegebot/internal/handlers"
	"github.com/siegecorps/siegebot/internal/i18n"
	"github.com/siegecorps/siegebot/internal/middleware"
	"github.com/siegecorps/siegebot/internal/orchestrator"
	"github.com/siegecorps/siegebot/internal/persona"
	"github.com/siegecorps/siegebot/internal/prompt"
	"github.com/siegecorps/siegebot/internal/scheduler"
	"github.com/siegecorps/siegebot/internal/services/admin"
	"github.com/siegecorps/siegebot/internal/services/ai"
	"github.com/siegecorps/siegebot/internal/services/cache"
	"github.com/siegecorps/siegebot/internal/services/directory"
	"github.com/siegecorps/siegebot/internal/services/lookup"
	"github.com/siegecorps/siegebot/internal/services/storage"
	"github.com/siegecorps/siegebot/pkg/logger"
	"github.com/siegecorps/siegebot/pkg/random"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "siegebot",
	Short:         "Siege Corps group chat bot",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine
		_ = godotenv.Load(envFile)

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		log, err := logger.NewLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")
	rootCmd.AddCommand(classifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	log.Info("Starting bot...")

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")
	transport := handlers.NewTelegram(bot, bot.Self, log)

	metrics := middleware.NewMetrics()

	store, err := storage.NewManager(cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		return fmt.Errorf("failed to initialize i18n: %w", err)
	}

	provider, err := ai.NewProvider(ctx, cfg.Generation, log)
	if err != nil {
		return fmt.Errorf("failed to initialize generation provider: %w", err)
	}
	gateway := ai.NewGateway(provider, cfg.Generation.Timeout, cfg.Generation.MaxRetries, metrics, log)

	sources := aggregator.Sources{Cache: cache.NewCache(cfg, metrics, log)}
	if cfg.Lookups.Wikipedia.Enabled {
		sources.Encyclopedia = lookup.NewWikipediaClient(cfg.Lookups.Wikipedia, cfg.Lookups.Timeout, log)
	}
	if cfg.Lookups.Web.Enabled {
		sources.Web = lookup.NewWebExtractor(cfg.Lookups.Web, cfg.Lookups.Timeout, log)
	}
	var dir *directory.Directory
	if cfg.Lookups.Directory.Enabled {
		dir = directory.NewDirectory(log)
		if err := dir.Load(ctx, cfg.Lookups.Directory.Path); err != nil {
			log.WithError(err).Error("Failed to load business directory, continuing without it")
			dir = nil
		} else {
			sources.Directory = dir
			log.WithField("entries", dir.Len()).Info("Business directory loaded")
		}
	}

	loc, err := time.LoadLocation(cfg.Context.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	admins := admin.NewRegistry(cfg.Admin, transport, log)
	personas := persona.NewRegistry(store, cfg.Persona.Mode, cfg.Persona.Default, log)
	chatLimiter, userLimiter := middleware.NewRateLimiters(cfg, log)

	seed := cfg.Persona.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	orch := orchestrator.New(orchestrator.Deps{
		ChatLimiter: chatLimiter,
		UserLimiter: userLimiter,
		Security:    middleware.NewSecurityMiddleware(log, cfg.Pipeline.MaxReply),
		Aggregator: aggregator.New(admins, store, sources, aggregator.Options{
			LookupTimeout:   cfg.Lookups.Timeout,
			HistoryCapacity: cfg.Context.HistoryCapacity,
			Location:        loc,
			BotUsername:     bot.Self.UserName,
		}, metrics, log),
		Personas: personas,
		Admin:    admins,
		Prompts: prompt.NewBuilder(prompt.Options{
			ShortTokens: cfg.Generation.ShortTokens,
			LongTokens:  cfg.Generation.LongTokens,
			Turns:       cfg.Context.PromptTurns,
		}),
		Generator: gateway,
		Transport: transport,
		Store:     store,
		Localizer: localizer,
		Rand:      random.NewLocked(seed),
		Metrics:   metrics,
		Logger:    log,
	}, orchestrator.Options{
		Bot:           transport.Identity(),
		CommandPrefix: cfg.Bot.CommandPrefix,
		Operators:     cfg.Bot.Operators,
		Notice:        cfg.RateLimit.Notice,
		NoticeWindow:  cfg.RateLimit.User.Window,
		MaxReply:      cfg.Pipeline.MaxReply,
	})

	dispatcher := orchestrator.NewDispatcher(ctx, orch, cfg.Pipeline.QueueSize, cfg.Pipeline.WorkerIdle)
	defer dispatcher.Close()

	targets := scheduler.Targets{
		Limiters: []scheduler.Limiter{chatLimiter, userLimiter},
		Admin:    admins,
		Storage:  store,
		Personas: personas,
		Workers:  dispatcher,
	}
	if dir != nil {
		targets.Directory = dir
	}
	janitor, err := scheduler.New(targets, scheduler.Options{
		EvictInterval: cfg.RateLimit.EvictInterval,
		IdleWindows:   cfg.RateLimit.IdleWindows,
	}, metrics, log)
	if err != nil {
		return err
	}
	if err := janitor.Start(ctx); err != nil {
		return err
	}
	defer janitor.Stop()

	g, ctx := errgroup.WithContext(ctx)

	var servers []*http.Server
	if cfg.Monitoring.Metrics.Enabled {
		servers = append(servers, middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path))
	}

	var updates <-chan tgbotapi.Update
	if cfg.Bot.Webhook.Enabled {
		hookPath := "/" + bot.Token
		webhook, err := tgbotapi.NewWebhook(cfg.Bot.Webhook.URL + hookPath)
		if err != nil {
			return fmt.Errorf("failed to create webhook: %w", err)
		}
		if _, err := bot.Request(webhook); err != nil {
			return fmt.Errorf("failed to set webhook: %w", err)
		}
		defer func() {
			if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
				log.WithError(err).Error("Failed to delete webhook")
			}
		}()

		ch := make(chan tgbotapi.Update, bot.Buffer)
		router := mux.NewRouter()
		router.Handle(hookPath, handlers.WebhookHandler(bot.HandleUpdate, ch, log)).Methods(http.MethodPost)
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Bot.Webhook.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		})
		updates = ch
		log.WithField("url", cfg.Bot.Webhook.URL).Info("Webhook set")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout
		updates = bot.GetUpdatesChan(u)
		defer bot.StopReceivingUpdates()
		log.Info("Using long polling")
	}

	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.WithField("addr", srv.Addr).Info("Starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return transport.Run(ctx, updates, dispatcher)
	})

	err = g.Wait()
	log.Info("Shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
