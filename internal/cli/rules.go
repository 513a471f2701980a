// ABOUTME: rules subcommands for listing and adding autoreply rules offline
// ABOUTME: Goes through the responder so patterns and names are validated

package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/store"
)

func newRulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage autoreply rules",
	}
	cmd.AddCommand(newRulesListCmd(opts), newRulesAddCmd(opts))
	return cmd
}

func newRulesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <chat>",
		Short: "List a chat's rules in registration order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			core, st, err := openResponder(cmd, cfg, quietLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer st.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATTERN\tKIND\tVALUE")
			for _, rule := range core.Rules(args[0]) {
				kind, value := describeResponse(rule.Response())
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rule.Name(), rule.Pattern(), kind, value)
			}
			return tw.Flush()
		},
	}
}

func newRulesAddCmd(opts *rootOptions) *cobra.Command {
	var text, item string

	cmd := &cobra.Command{
		Use:   "add <chat> <name> <pattern>",
		Short: "Add a rule answering with --text or --item",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response autoreply.Response
			switch {
			case text != "" && item != "":
				return errors.New("set only one of --text and --item")
			case item != "":
				response = autoreply.ItemRef{ID: item}
			case text != "":
				response = autoreply.Literal{Text: text}
			default:
				return errors.New("--text or --item is required")
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

			chatID, name, pattern := args[0], args[1], args[2]
			if err := core.RegisterRule(cmd.Context(), chatID, name, pattern, response); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added rule %s to %s\n", name, chatID)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Reply text")
	cmd.Flags().StringVar(&item, "item", "", "Item reference to send, e.g. a sticker mxc:// URI")
	return cmd
}

func describeResponse(resp autoreply.Response) (kind, value string) {
	switch resp := resp.(type) {
	case autoreply.Literal:
		return store.ResponseKindLiteral, resp.Text
	case autoreply.ItemRef:
		return store.ResponseKindItem, resp.ID
	default:
		return "unknown", ""
	}
}
