package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lootcase-api/internal/app"
	"lootcase-api/internal/config"
	"lootcase-api/internal/logging"
	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
	"lootcase-api/internal/service"
	"lootcase-api/pkg/keyhash"
	"lootcase-api/pkg/money"
	"lootcase-api/pkg/uid"
)

func main() {
	cfg := config.MustLoad()
	logging.Setup(cfg.App.LogLevel, cfg.App.Environment)

	root := &cobra.Command{
		Use:          "lootctl",
		Short:        "Operator tooling for the lootcase API",
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(cfg),
		newHashKeyCmd(),
		newIssueTokenCmd(cfg),
		newPruneAuditCmd(cfg),
		newSeedCmd(cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:       "migrate [store|audit]",
		Short:     "Apply pending schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{app.TargetStore, app.TargetAudit},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := app.TargetStore
			if len(args) == 1 {
				target = args[0]
			}

			db, set, err := app.OpenMigrationDB(cfg, target)
			if err != nil {
				return err
			}
			defer db.Close()

			if status {
				lines, err := repository.MigrationStatus(cmd.Context(), db, set)
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
				return nil
			}

			n, err := repository.Migrate(cmd.Context(), db, set)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d migration(s) applied\n", target, n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print migration status instead of applying")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an admin login key for ADMIN_LOGIN_KEY_HASH",
		Long:  "Hash an admin login key with argon2id. The key is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key: %w", err)
				}
				key = line
			}

			key = strings.TrimSpace(key)
			if len(key) < 16 {
				return fmt.Errorf("key must be at least 16 characters")
			}

			encoded, err := keyhash.Hash(key, keyhash.DefaultParams)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}

func newIssueTokenCmd(cfg *config.Config) *cobra.Command {
	var userID, ip string

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a session token for a player",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if cfg.Session.Secret == "" {
				return fmt.Errorf("SESSION_SECRET must be set so the API accepts the token")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			// Sessions have to land where the API reads them.
			client, err := app.OpenRedis(ctx, cfg)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("REDIS_HOST must be set; in-memory sessions are private to the API process")
			}
			defer client.Close()

			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions := service.NewSessionService(service.SessionConfig{
				Secret: []byte(cfg.Session.Secret),
				Issuer: cfg.Session.Issuer,
				TTL:    cfg.Session.TTL,
			}, service.NewCacheSessionStore(app.NewCache(cfg, client)), store)

			token, session, err := sessions.Issue(ctx, userID, ip)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s expires %s\n", session.ID, session.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "player id")
	cmd.Flags().StringVar(&ip, "ip", "", "client address recorded on the session")
	return cmd
}

func newPruneAuditCmd(cfg *config.Config) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune-audit",
		Short: "Delete audit entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			auditRepo, closeAudit, err := app.OpenAudit(ctx, cfg, store)
			if err != nil {
				return err
			}
			defer closeAudit()

			scheduler, err := service.NewCleanupScheduler(auditRepo, service.CleanupConfig{
				AuditRetention: retention,
				Schedule:       cfg.Jobs.AuditPruneSchedule,
			})
			if err != nil {
				return err
			}

			n, err := scheduler.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d audit entries\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", cfg.Jobs.AuditRetention, "keep entries newer than this")
	return cmd
}

// seedValues are the per-rarity base values of seeded items.
var seedValues = map[model.Rarity]float64{
	model.RarityCommon:    0.35,
	model.RarityUncommon:  1.20,
	model.RarityRare:      4.75,
	model.RarityEpic:      18.40,
	model.RarityLegendary: 62.00,
	model.RarityMythic:    240.00,
}

var seedColors = map[model.Rarity]string{
	model.RarityCommon:    "#b0c3d9",
	model.RarityUncommon:  "#5e98d9",
	model.RarityRare:      "#4b69ff",
	model.RarityEpic:      "#8847ff",
	model.RarityLegendary: "#d32ce6",
	model.RarityMythic:    "#eb4b4b",
}

func newSeedCmd(cfg *config.Config) *cobra.Command {
	var (
		userID     string
		username   string
		referredBy string
		balance    float64
		perRarity  int
		rarities   []string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a player with a starter inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			if !money.IsValidAmount(balance) {
				return fmt.Errorf("--balance must be a finite amount between 0 and %.0f", money.MaxAmount)
			}

			selected := model.Rarities
			if len(rarities) > 0 {
				selected = model.ParseRarities(rarities)
				if len(selected) == 0 {
					return fmt.Errorf("no known rarity in %v", rarities)
				}
			}

			balanceCents, err := money.ToCents(money.FromFloat(balance))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			player := &model.PlayerStats{
				UserID:       userID,
				Username:     username,
				BalanceCents: balanceCents,
				InventoryMax: cfg.Economy.CapacityStart,
				Level:        1,
				CreatedAt:    time.Now().UTC(),
			}
			if referredBy != "" {
				player.ReferredBy = &referredBy
			}
			if err := store.CreatePlayer(ctx, player); err != nil {
				return err
			}

			items := make([]model.InventoryItem, 0, len(selected)*perRarity)
			for _, r := range selected {
				for i := 0; i < perRarity; i++ {
					items = append(items, model.InventoryItem{
						ID:         uid.New(),
						UserID:     userID,
						Name:       fmt.Sprintf("%s Case Drop #%d", r, i+1),
						Rarity:     r,
						Color:      seedColors[r],
						Value:      money.Float(money.FromFloat(seedValues[r] * float64(i+1))),
						Source:     "seed",
						AcquiredAt: time.Now().UTC(),
					})
				}
			}
			if err := store.InsertItems(ctx, items); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s with %d item(s)\n", userID, len(items))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "player id")
	cmd.Flags().StringVar(&username, "username", "", "display name")
	cmd.Flags().StringVar(&referredBy, "referred-by", "", "referrer player id")
	cmd.Flags().Float64Var(&balance, "balance", 0, "starting balance")
	cmd.Flags().IntVar(&perRarity, "per-rarity", 3, "items per rarity")
	cmd.Flags().StringSliceVar(&rarities, "rarity", nil, "rarities to seed (default all)")
	return cmd
}
