// Command cli holds operator tasks that run against the same database as the
// server: listing payments that still need reconciliation and setting a
// user's KYC tier.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/amirasaad/remittance/infra/initializer"
	"github.com/amirasaad/remittance/pkg/app"
	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/domain/kyc"
	"github.com/google/uuid"
)

const usage = `Usage: cli <command> [arguments]
Commands:
  unreconciled [limit]                      list payments awaiting a provider notification
  kyc set-level <user_id> <level> <status>  level: bronze|silver|gold, status: pending|approved|rejected`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	deps, cleanup, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	a, err := app.New(deps, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "unreconciled":
		limit := 100
		if len(args) > 1 {
			if limit, err = strconv.Atoi(args[1]); err != nil || limit < 1 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
		}
		return listUnreconciled(ctx, a, limit)
	case "kyc":
		if len(args) != 5 || args[1] != "set-level" {
			fmt.Println(usage)
			return nil
		}
		userID, err := uuid.Parse(args[2])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		rec, err := a.KYC.SetLevel(ctx, userID, kyc.Level(args[3]), kyc.Status(args[4]))
		if err != nil {
			return err
		}
		fmt.Printf("KYC for %s: level=%s status=%s limit=%d %s\n",
			rec.UserID, rec.Level, rec.Status, rec.MonthlySendLimit, rec.Currency)
		return nil
	default:
		fmt.Println(usage)
		return nil
	}
}

func listUnreconciled(ctx context.Context, a *app.App, limit int) error {
	list, err := a.Reconciler.ListUnreconciled(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAYMENT\tGATEWAY\tSTATUS\tAMOUNT\tCREATED")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Gateway, p.Status, p.Amount.String(), p.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
