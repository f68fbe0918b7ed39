package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/config"
	"github.com/LingJien0709/shiny-carnival/internal/domain"
	"github.com/LingJien0709/shiny-carnival/internal/httpapi"
	"github.com/LingJien0709/shiny-carnival/internal/notify"
	"github.com/LingJien0709/shiny-carnival/internal/parking"
	"github.com/LingJien0709/shiny-carnival/internal/scheduler"
	"github.com/LingJien0709/shiny-carnival/internal/store"
)

const tickTimeout = 50 * time.Second // a cycle must finish before the next minute tick

// App owns the collaborator handles and the process lifecycle.
type App struct {
	cfg      config.Config
	log      *zap.Logger
	cal      *domain.Calendar
	notifier *notify.Telegram
	repo     *store.SQLiteRepo
	httpSrv  *http.Server
}

// New validates the timezone, connects the messaging bot, and prepares the
// HTTP server. Storage is opened in Run.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cal := domain.NewCalendar(loc, cfg.Holidays)

	notifier, err := notify.NewTelegram(cfg.BotToken, cfg.AnnounceChatID, log)
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, log: log, cal: cal, notifier: notifier}, nil
}

// Run starts the HTTP server and the cron jobs, then blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting parking-reminder",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.cfg.Timezone),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	clock := domain.SystemClock{}
	svc := parking.NewService(repo, a.cal, clock, a.log)
	dispatcher := scheduler.New(repo, a.cal, clock, a.notifier, a.log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	httpapi.NewHandler(repo, svc, a.notifier, a.log, a.cfg.WebhookSecret).Register(engine)

	a.httpSrv = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      engine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	jobs := cron.New()
	if _, err := jobs.AddFunc("* * * * *", func() {
		tctx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		dispatcher.Poll(tctx)
	}); err != nil {
		return err
	}
	if _, err := jobs.AddFunc("@hourly", func() {
		tctx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		dispatcher.Housekeep(tctx)
	}); err != nil {
		return err
	}
	jobs.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	<-jobs.Stop().Done()

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
	return nil
}
