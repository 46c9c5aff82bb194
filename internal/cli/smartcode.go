package cli

import (
	"fmt"
	"io"

	"github.com/smallbiznis/hera/internal/smartcode"
	"github.com/spf13/cobra"
)

func NewSmartCodeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartcode",
		Short: "Work with smart codes",
	}
	cmd.AddCommand(newSmartCodeValidateCommand(opts))
	return cmd
}

func newSmartCodeValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>...",
		Short: "Check smart codes against the grammar without contacting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrinter(opts, cmd.OutOrStdout())

			results := make(map[string]smartcode.Result, len(args))
			invalid := 0
			for _, code := range args {
				res := smartcode.Validate(code)
				results[code] = res
				if !res.Valid {
					invalid++
				}
			}

			err := p.success(results, func(w io.Writer) {
				for _, code := range args {
					res := results[code]
					if res.Valid {
						fmt.Fprintf(w, "ok      %s\n", res.Normalized)
						continue
					}
					fmt.Fprintf(w, "invalid %s\n", code)
					for _, v := range res.Errors {
						fmt.Fprintf(w, "  %s: %s\n", v.Rule, v.Message)
					}
				}
			})
			if err != nil {
				return err
			}
			if invalid > 0 {
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%d of %d smart codes invalid", invalid, len(args))}
			}
			return nil
		},
	}
}
