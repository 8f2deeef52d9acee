package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"addonsync/internal/account"
	"addonsync/internal/collection"
	"addonsync/internal/config"
	"addonsync/internal/events"
	"addonsync/internal/fetch"
	"addonsync/internal/health"
	"addonsync/internal/notify"
	"addonsync/internal/updates"
	"addonsync/internal/version"
)

const appVersion = "1.2.0"

func main() {
	email := flag.String("email", "", "Account email (alternative to -authkey)")
	password := flag.String("password", "", "Account password")
	authKey := flag.String("authkey", "", "Existing auth key (skips login)")
	check := flag.Bool("check", false, "Check every installed addon for updates")
	installURL := flag.String("install", "", "Install the addon at this transport URL")
	removeURL := flag.String("remove", "", "Remove the addon with this transport URL")
	reinstallURL := flag.String("reinstall", "", "Reinstall the addon with this transport URL")
	listAddons := flag.Bool("list", false, "List the addon collection")
	interval := flag.Int("interval", 0, "Re-run -check every N seconds (0 for single run)")
	showVersion := flag.Bool("version", false, "Show version")
	flag.Parse()

	if *showVersion {
		fmt.Printf("addonsync v%s\n", appVersion)
		if info, err := version.NewChecker(appVersion, "addonsync", "addonsync").Check(); err == nil && info.UpdateAvailable {
			fmt.Printf("A newer release is available: v%s (%s)\n", info.LatestVersion, info.ReleaseURL)
		}
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime)
	cfg := config.Load()

	source := cfg.Source
	if source == "" {
		source = "addonsync/" + uuid.NewString()
	}

	bus := events.NewBus()
	if len(cfg.NotifyURLs) > 0 {
		dispatcher := notify.NewDispatcher(bus, nil, notify.Options{
			URLs:        cfg.NotifyURLs,
			MinSeverity: events.SeverityInfo,
			Cooldown:    cfg.NotifyCooldown,
		})
		dispatcher.Start()
		defer dispatcher.Stop()
	}

	client := account.NewClient(cfg.APIBase, source, 30*time.Second)
	fetcher := fetch.New(fetch.Options{
		RelayURL:      cfg.RelayURL,
		DirectOrigins: cfg.DirectOrigins,
		Retries:       cfg.FetchRetries,
		CacheWindow:   cfg.CacheWindow,
		Timeout:       cfg.FetchTimeout,
		Source:        source,
	})
	probe := health.NewProbe(cfg.ProbeTimeout)
	checker := updates.NewChecker(probe, fetcher, bus, updates.Options{
		BatchSize:   cfg.BatchSize,
		CoalesceTTL: cfg.CoalesceTTL,
	})
	reconciler := collection.NewReconciler(client, fetcher, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	key := *authKey
	if key == "" {
		if *email == "" || *password == "" {
			log.Fatal("Either -authkey or -email and -password are required")
		}
		session, err := client.Login(ctx, *email, *password)
		if err != nil {
			log.Fatalf("Login failed: %v", err)
		}
		key = session.AuthKey
		log.Printf("Logged in as %s", session.User.Email)
	}

	switch {
	case *installURL != "":
		a, err := reconciler.InstallAddon(ctx, key, *installURL)
		if err != nil {
			log.Fatalf("Install failed: %v", err)
		}
		log.Printf("Installed %q v%s", a.Manifest.Name, a.Manifest.Version)

	case *removeURL != "":
		if err := reconciler.RemoveAddon(ctx, key, *removeURL); err != nil {
			log.Fatalf("Remove failed: %v", err)
		}

	case *reinstallURL != "":
		a, err := reconciler.ReinstallAddon(ctx, key, *reinstallURL)
		if err != nil {
			log.Fatalf("Reinstall failed: %v", err)
		}
		log.Printf("Reinstalled %q v%s", a.Manifest.Name, a.Manifest.Version)

	case *listAddons:
		list, err := reconciler.GetAddons(ctx, key)
		if err != nil {
			log.Fatalf("List failed: %v", err)
		}
		for _, a := range list {
			state := ""
			if a.Hidden() {
				state = " (disabled)"
			}
			if a.Flags.Protected {
				state += " (protected)"
			}
			fmt.Printf("%-40s v%-10s %s%s\n", a.Manifest.Name, a.Manifest.Version, a.TransportURL, state)
		}

	case *check:
		runCheck(ctx, reconciler, checker, key)
		if *interval > 0 {
			ticker := time.NewTicker(time.Duration(*interval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					runCheck(ctx, reconciler, checker, key)
				}
			}
		}

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runCheck(ctx context.Context, reconciler *collection.Reconciler, checker *updates.Checker, authKey string) {
	list, err := reconciler.GetAddons(ctx, authKey)
	if err != nil {
		log.Printf("Fetching collection failed: %v", err)
		return
	}
	log.Printf("Checking %d add-ons for updates...", len(list))

	results := checker.CheckUpdates(ctx, list)

	updatesFound := 0
	for _, r := range results {
		switch {
		case !r.Health.IsOnline:
			log.Printf("  OFFLINE  %s (%s)", r.Name, r.TransportURL)
		case r.HasUpdate:
			updatesFound++
			log.Printf("  UPDATE   %s: %s -> %s", r.Name, r.InstalledVersion, r.LatestVersion)
		default:
			log.Printf("  ok       %s v%s", r.Name, r.InstalledVersion)
		}
	}
	log.Printf("Done: %d checked, %d updates available", len(results), updatesFound)
}
