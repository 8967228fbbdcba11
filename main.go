package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	raven "github.com/getsentry/raven-go"

	"github.com/localpass/site-backend/api"
	"github.com/localpass/site-backend/captcha"
	"github.com/localpass/site-backend/config"
	"github.com/localpass/site-backend/metrics"
	"github.com/localpass/site-backend/relay"
)

// newAPI builds the API described by cfg.
func newAPI(cfg config.Config) *api.API {
	a := &api.API{
		Relay:          relay.NewClient(cfg.FormspreeBaseURL, cfg.RelayTimeout),
		FormID:         cfg.FormspreeFormID,
		StudioFormID:   cfg.FormspreeStudioFormID,
		SiteKey:        cfg.TurnstileSiteKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Rate:           api.NewRate(cfg.RateLimit, cfg.RatePeriod),

		TrustForwardHeader: cfg.TrustForwardHeader,
	}
	if cfg.CaptchaEnabled {
		a.Captcha = captcha.NewVerifier(cfg.TurnstileSecret, cfg.TurnstileVerifyURL, cfg.CaptchaTimeout)
	}
	return a
}

// serve runs server until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, server *http.Server) error {
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatal(err)
	}
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		raven.CaptureErrorAndWait(err, nil)
		log.Fatal(err)
	}

	a := newAPI(cfg)
	log.Printf("Captcha enabled: %t, studio applications enabled: %t", a.Captcha != nil, a.StudioFormID != "")

	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      a.RegisterHandlers(http.NewServeMux()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      metrics.Handler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			log.Printf("Serving metrics on %s", cfg.MetricsAddr)
			if err := serve(ctx, metricsServer); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics listener: %v", err)
			}
		}()
	}

	log.Printf("Listening on %s", cfg.Port)
	if err := serve(ctx, server); err != nil && err != http.ErrServerClosed {
		raven.CaptureErrorAndWait(err, nil)
		log.Fatal(err)
	}
	log.Println("Server shutdown complete")
}
