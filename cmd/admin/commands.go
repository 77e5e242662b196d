package admin

import (
	"encoding/hex"
	"fmt"

	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/spf13/cobra"
)

var (
	deriveCmd = &cobra.Command{
		Use:   "derive [commit]...",
		Short: "Derives data for the given commits and their ancestors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}
			for _, r := range engine.DeriveAll(cmd.Context(), commits, t) {
				if r.Err != nil {
					fmt.Printf("commit=%s type=%s error=%v\n", r.Commit.Short(), t, r.Err)
				} else {
					fmt.Printf("commit=%s type=%s value=%s\n", r.Commit.Short(), t, hex.EncodeToString(r.Value))
				}
			}
			return nil
		},
	}
	rederiveCmd = &cobra.Command{
		Use:   "rederive [commit]",
		Short: "Discards the derived data for a commit and derives it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}
			value, err := engine.Rederive(cmd.Context(), commits[0], t)
			if err != nil {
				return err
			}
			fmt.Printf("commit=%s type=%s value=%s\n", commits[0].Short(), t, hex.EncodeToString(value))
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [commit]...",
		Short: "Reports the derivation state for the given commits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}
			for _, r := range engine.ExistsAll(commits, t) {
				if r.Err != nil {
					fmt.Printf("commit=%s type=%s error=%v\n", r.Commit.Short(), t, r.Err)
				} else {
					fmt.Printf("commit=%s type=%s state=%s\n", r.Commit.Short(), t, r.State)
				}
			}
			return nil
		},
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch [commit]...",
		Short: "Reads already derived data without triggering derivation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}
			for _, r := range engine.FetchAll(cmd.Context(), commits, t) {
				switch {
				case r.Err != nil:
					fmt.Printf("commit=%s type=%s error=%v\n", r.Commit.Short(), t, r.Err)
				case !r.Ok:
					fmt.Printf("commit=%s type=%s derived=false\n", r.Commit.Short(), t)
				default:
					fmt.Printf("commit=%s type=%s value=%s\n", r.Commit.Short(), t, hex.EncodeToString(r.Value))
				}
			}
			return nil
		},
	}
	countUnderivedCmd = &cobra.Command{
		Use:   "count-underived [commit]...",
		Short: "Counts the commits a derivation would have to visit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}
			for _, r := range engine.CountUnderivedAll(cmd.Context(), commits, t) {
				if r.Err != nil {
					fmt.Printf("commit=%s type=%s error=%v\n", r.Commit.Short(), t, r.Err)
				} else {
					fmt.Printf("commit=%s type=%s underived=%d\n", r.Commit.Short(), t, r.Count)
				}
			}
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify-manifests [commit-or-bookmark]...",
		Short: "Recomputes derived data and compares it against the records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opType()
			if err != nil {
				return err
			}
			commits, err := resolveArgs(args)
			if err != nil {
				return err
			}

			dirty := false
			for _, cid := range commits {
				report, err := validator.Verify(cmd.Context(), cid, []id.DerivedDataType{t})
				if err != nil {
					return err
				}
				fmt.Printf("commit=%s checked=%d skipped=%d clean=%v\n",
					cid.Short(), len(report.Checked), len(report.Skipped), report.Clean())
				for _, m := range report.Mismatches {
					dirty = true
					fmt.Printf("  mismatch: %s\n", m)
				}
			}
			if dirty {
				return fmt.Errorf("verification found diverged derived data")
			}
			return nil
		},
	}
)
