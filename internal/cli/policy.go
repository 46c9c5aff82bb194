package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/smallbiznis/hera/internal/posting"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/spf13/cobra"
)

func NewPolicyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage posting policies",
	}
	cmd.AddCommand(newPolicyCheckCommand(opts))
	cmd.AddCommand(newPolicyApplyCommand(opts))
	return cmd
}

func newPolicyCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Parse a policy file without contacting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())
			file, err := posting.LoadPolicyFile(args[0])
			if err != nil {
				return p.failure(ExitFailure, err)
			}
			return p.success(file, func(w io.Writer) { printPolicyFile(w, file) })
		},
	}
}

func newPolicyApplyCommand(opts *RootOptions) *cobra.Command {
	flags := &scopeFlags{}
	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Create or replace a branch posting policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())
			file, err := posting.LoadPolicyFile(args[0])
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			actorID, err := parseID("actor", flags.actor)
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			orgID, err := parseID("org", flags.org)
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			client, err := opts.client()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}

			policy, err := client.ApplyPolicy(cmd.Context(), actorID, orgID, file)
			if err != nil {
				return p.failure(ExitFailure, err)
			}
			return p.success(policy, func(w io.Writer) {
				fmt.Fprintf(w, "applied %s entity=%s timezone=%s\n", policy.Code, policy.EntityID, policy.Timezone)
			})
		},
	}
	flags.register(cmd, false)
	return cmd
}

func printPolicyFile(w io.Writer, file postingdomain.PolicyFile) {
	branch := file.Branch
	if branch == "" {
		branch = "(organization default)"
	}
	fmt.Fprintf(w, "branch:   %s\n", branch)
	if file.Timezone != "" {
		fmt.Fprintf(w, "timezone: %s\n", file.Timezone)
	}
	fmt.Fprintf(w, "clearing: %s\n", file.ClearingAccount)

	categories := make([]string, 0, len(file.Accounts))
	for category := range file.Accounts {
		categories = append(categories, string(category))
	}
	sort.Strings(categories)
	for _, category := range categories {
		fmt.Fprintf(w, "  %-16s %s\n", category, file.Accounts[postingdomain.Category(category)])
	}
}
