// migrate applies the embedded postgres schema migrations and optionally rewrites legacy plaintext
// identities into identity tokens. Run via go run ./cmd/migrate [-direction up|down|version] [-upgrade-identities].
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dm-relay/internal/config"
	"dm-relay/internal/db/migrate"
	"dm-relay/internal/security"
	"dm-relay/internal/storage"
	"dm-relay/internal/upgrade"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	upgradeIdentities := flag.Bool("upgrade-identities", false, "Rewrite plaintext identity fields into identity tokens after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		res, err := migrate.Run(cfg.DatabaseDSN(), *direction)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		switch {
		case res.Empty:
			fmt.Println("schema: no migrations applied")
		case res.Dirty:
			fmt.Fprintf(os.Stderr, "schema: version %d is dirty; fix it and force the version\n", res.Version)
			os.Exit(1)
		default:
			fmt.Printf("schema: version %d\n", res.Version)
		}
	case config.DriverSQLite:
		fmt.Println("schema: sqlite schema is created when the store is opened")
	default:
		fmt.Fprintf(os.Stderr, "migrate: nothing to migrate for driver %s\n", cfg.DatabaseDriver)
		os.Exit(1)
	}

	if !*upgradeIdentities {
		return
	}
	if *direction == migrate.Down {
		fmt.Fprintln(os.Stderr, "upgrade: refusing to upgrade identities after migrating down")
		os.Exit(1)
	}

	ctx := context.Background()
	stores, err := storage.Open(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db:", err)
		os.Exit(1)
	}
	defer stores.Close()

	hasher := security.NewIdentityHasher(cfg.IdentityHashCost)
	keys := security.NewLookupKeyer(cfg.IdentityLookupPepper)
	upgrader := upgrade.NewUpgrader(stores.Sessions, stores.Transcripts, hasher, keys, security.IsToken)
	upgrader.Timeout = cfg.StoreTimeoutDuration()
	report, err := upgrader.UpgradeLegacyIdentities(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "upgrade:", err)
		os.Exit(1)
	}
	if report.Failures > 0 {
		os.Exit(2)
	}
}
