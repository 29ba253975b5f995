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

	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/card"
	cardrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/card/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Infow("starting user service", "addr", cfg.HTTPAddr, "db_driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	cards := cardrepo.NewCardRepo(db)
	// users first: payment_cards references it
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	if err := cards.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure payment_cards table: %v", err)
	}

	c, closeCache := cache.Open(ctx, cfg.Cache, sugar)
	defer func() {
		if err := closeCache(); err != nil {
			sugar.Warnf("cache close failed: %v", err)
		}
	}()

	shared := cache.NewCoherent(c)

	key, err := cfg.SigningKey()
	if err != nil {
		sugar.Fatalf("jwt secret: %v", err)
	}

	handler := router.New(router.Deps{
		Users:    user.NewUserService(db, shared, users, cards).WithLogger(sugar),
		Cards:    card.NewCardService(db, shared, cards).WithLogger(sugar),
		Verifier: auth.NewVerifier(key),
		Policy:   auth.DefaultPolicy(),
		Logger:   sugar,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}
