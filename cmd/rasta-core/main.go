// rasta-core is the payment-gated fulfillment and reward service: cart
// checkout and event registration payments, post-payment fulfillment, and
// the XP reward ledger.
package main

import (
	"log"
	"os"

	"github.com/devsharmatech/easy-rasta-sub001/internal/api"
	"github.com/devsharmatech/easy-rasta-sub001/internal/config"
	"github.com/devsharmatech/easy-rasta-sub001/internal/fulfill"
	"github.com/devsharmatech/easy-rasta-sub001/internal/gateway"
	"github.com/devsharmatech/easy-rasta-sub001/internal/notify"
	"github.com/devsharmatech/easy-rasta-sub001/internal/payment"
	"github.com/devsharmatech/easy-rasta-sub001/internal/reward"
	"github.com/devsharmatech/easy-rasta-sub001/internal/store"
	"github.com/devsharmatech/easy-rasta-sub001/pkg/rastacore"
)

func main() {
	flags := rastacore.ParseFlags("rasta-core")

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if flags.Port != 0 {
		cfg.Port = flags.Port
	}
	flags.Port = cfg.Port

	server := rastacore.NewServer(flags)
	memStore := store.New()

	// Remote gateway when configured, in-process sandbox otherwise.
	var gw gateway.Client
	if cfg.Gateway.BaseURL != "" {
		gw = gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.Secret)
	} else {
		gw = gateway.NewSandbox(cfg.Gateway.Secret)
		server.Logger.Info("no gateway base_url configured, using sandbox gateway")
	}

	sender := notify.NewDispatcher(memStore, notify.Config{
		URL:    cfg.Push.URL,
		Secret: cfg.Push.Secret,
		Logger: server.Logger,
		Async:  true,
	})

	rewards := reward.NewLedger(memStore, sender, server.Logger, cfg.LevelThresholds)
	engine := fulfill.NewEngine(memStore, rewards, server.Logger)
	coordinator := payment.NewCoordinator(memStore, gw, engine, server.Logger)

	handler := api.NewHandler(memStore, coordinator, engine, server.Logger, cfg.AuthSecret, cfg.LevelThresholds)
	handler.Routes(server.Router)

	if flags.SeedFile != "" {
		data, err := os.ReadFile(flags.SeedFile)
		if err != nil {
			log.Fatalf("failed to read seed file: %v", err)
		}
		if err := memStore.LoadState(data); err != nil {
			log.Fatalf("failed to load seed data: %v", err)
		}
		server.Logger.Info("loaded seed data", "file", flags.SeedFile)
	} else {
		memStore.SeedDefaults()
	}

	server.Logger.Info("rasta-core ready",
		"port", cfg.Port,
		"gateway", cfg.Gateway.BaseURL,
		"push_url", cfg.Push.URL,
	)

	if err := server.Serve(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
