// Command send-magic-links issues a login link to every approved address.
package main

import (
	"context"
	"docgate/config"
	"docgate/gate"
	"docgate/identity"
	"docgate/models"
	"docgate/utils"
	"log"
	"os"
	"strings"

	"golang.org/x/time/rate"
)

func main() {
	os.Exit(run())
}

func run() int {
	config.LoadEnv()
	cfg := config.Load()
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		log.Println("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY must be set")
		return 1
	}

	emails, err := config.Allowlist(cfg.AllowlistFile)
	if err != nil {
		log.Println(err)
		return 1
	}

	issuer := &Issuer{
		Client:     identity.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, nil),
		RedirectTo: strings.TrimRight(cfg.SiteURL, "/") + gate.LandingPath,
		Mailer:     logMailer{},
		Limiter:    rate.NewLimiter(rate.Limit(max(cfg.LinkRatePerSec, 1)), 1),
	}
	if cfg.SendGridKey != "" {
		issuer.Mailer = sendgridMailer{apiKey: cfg.SendGridKey, from: cfg.MailFrom}
	}

	if cfg.DatabaseURL != "" {
		dbPool, err := utils.OpenDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			return 1
		}
		defer dbPool.Close()
		if err := utils.EnsureIssuanceSchema(context.Background(), dbPool); err != nil {
			log.Printf("Failed to prepare database: %v", err)
			return 1
		}
		issuer.Record = func(ctx context.Context, issuance models.Issuance) error {
			return utils.RecordIssuance(ctx, dbPool, issuance)
		}
	}

	results := issuer.Issue(context.Background(), emails)
	if failed := Failed(results); failed > 0 {
		log.Printf("%d of %d addresses failed", failed, len(results))
		return 1
	}
	return 0
}
