package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scenestudio/internal/adapter/mongostore"
	"scenestudio/internal/adapter/repo"
	"scenestudio/internal/domain"
	"scenestudio/internal/infra"
)

func main() {
	var (
		idFlag        string
		storeFlag     string
		tierFlag      string
		statusFlag    string
		creditsFlag   int
		keepUsageFlag bool
	)

	flag.StringVar(&idFlag, "id", "", "user ID to update")
	flag.StringVar(&storeFlag, "store", infra.StoreDriverPostgres, "user store (postgres or mongo)")
	flag.StringVar(&tierFlag, "tier", string(domain.TierPro), "tier to assign (none, basic, pro, business, enterprise)")
	flag.StringVar(&statusFlag, "status", string(domain.BillingStatusActive), "billing status (active, inactive, past_due)")
	flag.IntVar(&creditsFlag, "credits", 0, "image credits to grant in addition to the plan change")
	flag.BoolVar(&keepUsageFlag, "keep-usage", false, "preserve operations used this period instead of starting a new one")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	if userID == "" {
		exitWithError(errors.New("-id must be provided"))
	}
	tier := domain.Tier(strings.ToLower(strings.TrimSpace(tierFlag)))
	if !tier.Valid() {
		exitWithError(fmt.Errorf("unsupported tier %q", tierFlag))
	}
	status := domain.BillingStatus(strings.ToLower(strings.TrimSpace(statusFlag)))
	switch status {
	case domain.BillingStatusActive, domain.BillingStatusInactive, domain.BillingStatusPastDue:
	default:
		exitWithError(fmt.Errorf("unsupported billing status %q", statusFlag))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tiers, err := infra.LoadTierCatalog(os.Getenv("TIERS_FILE"))
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "userplan").Logger()
	users, closeStore, err := openStore(ctx, strings.ToLower(storeFlag), tiers, logger)
	if err != nil {
		exitWithError(err)
	}
	defer closeStore()

	if _, err := users.GetUser(ctx, userID); err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}
	updated, err := users.SetPlan(ctx, userID, tier, status, !keepUsageFlag)
	if err != nil {
		exitWithError(fmt.Errorf("failed to update user plan: %w", err))
	}
	if creditsFlag > 0 {
		ref := fmt.Sprintf("cli-%s-%d", userID, time.Now().UnixNano())
		left, err := users.GrantCredits(ctx, userID, creditsFlag, ref)
		if err != nil {
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
		updated.Credits = left
	}

	fmt.Printf("User %s (%s) updated to tier %s (%s)\n", updated.ID, updated.Email, updated.Tier, updated.BillingStatus)
	fmt.Printf("allowance=%d\n", updated.Allowance(tiers))
	fmt.Printf("operations_used=%d\n", updated.Usage.OperationsUsed)
	fmt.Printf("period_start=%s\n", updated.Usage.PeriodStart.Format(time.RFC3339))
	fmt.Printf("credits=%d\n", updated.Credits)
}

func openStore(ctx context.Context, driver string, tiers domain.TierCatalog, logger infra.Logger) (domain.UserStore, func(), error) {
	switch driver {
	case infra.StoreDriverPostgres:
		dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if dbURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect database: %w", err)
		}
		return repo.NewUserRepository(infra.NewSQLRunner(pool, logger)), pool.Close, nil

	case infra.StoreDriverMongo:
		cfg := &infra.Config{
			MongoURI:      os.Getenv("MONGO_URI"),
			MongoDatabase: os.Getenv("MONGO_DATABASE"),
		}
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return nil, nil, errors.New("MONGO_URI and MONGO_DATABASE are required")
		}
		client, db, err := infra.NewMongoDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return mongostore.NewUserStore(db, tiers), closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store %q", driver)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
