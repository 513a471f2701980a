// ABOUTME: chance and capacity subcommands for per-chat settings
// ABOUTME: Validates ranges before writing through the responder

package cli

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"
)

func newChanceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chance",
		Short: "Manage a chat's autoreply probability",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <chat> <probability>",
		Short: "Set the probability (0 to 1) that a matching rule fires",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.ParseFloat(args[1], 64)
			if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
				return fmt.Errorf("probability must be a number between 0 and 1 (got %q)", args[1])
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			core, st, err := openResponder(cmd, cfg, quietLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer st.Close()

			if err := core.SetFireProbability(cmd.Context(), args[0], p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Autoreply chance for %s set to %v\n", args[0], p)
			return nil
		},
	})
	return cmd
}

func newCapacityCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Manage how many items a chat remembers per category",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <chat> <count>",
		Short: "Set the per-category item history length",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 0 {
				return fmt.Errorf("count must be a non-negative integer (got %q)", args[1])
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			core, st, err := openResponder(cmd, cfg, quietLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer st.Close()

			if err := core.SetRecencyCapacity(cmd.Context(), args[0], n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now remembers %d items per category\n", args[0], n)
			return nil
		},
	})
	return cmd
}
