package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/pkg/heraclient"
	"github.com/spf13/cobra"
)

type scopeFlags struct {
	actor  string
	org    string
	branch string
	day    string
}

func (f *scopeFlags) register(cmd *cobra.Command, withBranch bool) {
	cmd.Flags().StringVar(&f.actor, "actor", "", "actor user id")
	cmd.Flags().StringVar(&f.org, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("org")
	if withBranch {
		cmd.Flags().StringVar(&f.branch, "branch", "", "branch entity id")
		cmd.Flags().StringVar(&f.day, "day", "", "business date YYYY-MM-DD (default yesterday UTC)")
		_ = cmd.MarkFlagRequired("branch")
	}
}

func (f *scopeFlags) input() (heraclient.PostDailyInput, error) {
	var in heraclient.PostDailyInput
	var err error
	if in.ActorUserID, err = parseID("actor", f.actor); err != nil {
		return in, err
	}
	if in.OrganizationID, err = parseID("org", f.org); err != nil {
		return in, err
	}
	if f.branch != "" {
		if in.BranchID, err = parseID("branch", f.branch); err != nil {
			return in, err
		}
	}
	in.Day = strings.TrimSpace(f.day)
	if in.Day == "" {
		in.Day = time.Now().UTC().AddDate(0, 0, -1).Format(postingdomain.DayLayout)
	}
	if _, err := time.Parse(postingdomain.DayLayout, in.Day); err != nil {
		return in, fmt.Errorf("invalid --day %q: want YYYY-MM-DD", in.Day)
	}
	return in, nil
}

func parseID(name, value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid --%s %q", name, value)
	}
	return id, nil
}

func NewPostDailyCommand(opts *RootOptions) *cobra.Command {
	flags := &scopeFlags{}
	cmd := &cobra.Command{
		Use:   "post-daily",
		Short: "Post the daily sales journal for one branch-day",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())
			in, err := flags.input()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			client, err := opts.client()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}

			result, err := client.PostDaily(cmd.Context(), in)
			if err != nil {
				return p.failure(ExitFailure, err)
			}
			return p.success(result, func(w io.Writer) {
				fmt.Fprintf(w, "posted %s journal=%s debit=%d credit=%d\n",
					result.TransactionCode, result.JournalID, result.DebitTotal, result.CreditTotal)
				if result.Summary != nil {
					printSummary(w, result.Summary)
				}
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func NewSummarizeCommand(opts *RootOptions) *cobra.Command {
	flags := &scopeFlags{}
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Show the category totals of a branch-day without posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())
			in, err := flags.input()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}
			client, err := opts.client()
			if err != nil {
				return p.failure(ExitCommandError, err)
			}

			summary, err := client.Summarize(cmd.Context(), in)
			if err != nil {
				return p.failure(ExitFailure, err)
			}
			return p.success(summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}
	flags.register(cmd, true)
	return cmd
}

func printSummary(w io.Writer, s *postingdomain.Summary) {
	fmt.Fprintf(w, "%s %s (%s): %d transactions\n", s.BranchID, s.BusinessDate, s.Timezone, s.TransactionCount)
	for _, category := range postingdomain.Categories {
		if amount := s.Totals[category]; amount != 0 {
			fmt.Fprintf(w, "  %-16s %d\n", category, amount)
		}
	}
}
