// Command grantpro grants or revokes a pro entitlement directly against the
// configured record store, bypassing the payment webhook.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shotpack/internal/infra"
	"shotpack/internal/kv"
	"shotpack/internal/quota"
	"shotpack/internal/storage"
)

func main() {
	var (
		identityFlag string
		monthsFlag   int
		revokeFlag   bool
	)

	flag.StringVar(&identityFlag, "identity", "", "identity string to update")
	flag.IntVar(&monthsFlag, "months", 1, "months of pro to grant")
	flag.BoolVar(&revokeFlag, "revoke", false, "revoke the pro entitlement instead of granting")
	flag.Parse()

	identityStr := strings.TrimSpace(identityFlag)
	if identityStr == "" {
		exitWithError(errors.New("-identity is required"))
	}
	if !revokeFlag && monthsFlag <= 0 {
		exitWithError(errors.New("-months must be positive"))
	}

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "grantpro").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := openRecordStore(ctx, cfg)
	if err != nil {
		exitWithError(fmt.Errorf("failed to open record store: %w", err))
	}

	ledger := quota.NewLedger(records, quota.Policy{
		FreePackLimit:     cfg.FreePackLimit,
		ChargeOnAdmission: true,
	}, logger)

	if revokeFlag {
		if err := ledger.RevokeIdentity(ctx, identityStr); err != nil {
			exitWithError(fmt.Errorf("failed to revoke: %w", err))
		}
		fmt.Printf("Identity %s downgraded to free\n", identityStr)
		return
	}

	if err := ledger.GrantIdentity(ctx, identityStr, monthsFlag); err != nil {
		exitWithError(fmt.Errorf("failed to grant: %w", err))
	}
	fmt.Printf("Identity %s granted pro for %d month(s)\n", identityStr, monthsFlag)
}

func openRecordStore(ctx context.Context, cfg *infra.Config) (kv.Store, error) {
	switch cfg.StoreDriver {
	case "object":
		switch cfg.StorageDriver {
		case "oss":
			blobs, err := storage.NewOSSStore(storage.OSSOptions{
				Endpoint:        cfg.OSSEndpoint,
				Bucket:          cfg.OSSBucket,
				AccessKeyID:     cfg.OSSAccessKeyID,
				AccessKeySecret: cfg.OSSAccessKeySecret,
			})
			if err != nil {
				return nil, err
			}
			return kv.NewObjectStore(blobs), nil
		case "fs":
			blobs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, cfg.StorageSignSecret)
			if err != nil {
				return nil, err
			}
			return kv.NewObjectStore(blobs), nil
		default:
			return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
		}
	case "redis":
		return kv.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "postgres":
		return kv.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "memory":
		return nil, errors.New("memory store holds no persistent records")
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
