package main

import (
	"context"

	"github.com/spf13/cobra"
)

// rotateCommands defines "rotate-keys", which re-seals stored account fields under
// the active encryption key after a new key is added to the ring.
func rotateCommands(a *app) *cobra.Command {
	var (
		institutionCode  int
		fromDate, toDate string
	)

	cmd := &cobra.Command{
		Use:   "rotate-keys",
		Short: "re-encrypt stored transactions and conciliations with the active key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if toDate == "" {
				toDate = fromDate
			}
			report, err := a.conciliation.RotateKeys(context.Background(), institutionCode, fromDate, toDate)
			if err != nil {
				return err
			}
			printJSON(report)
			return nil
		},
	}

	cmd.Flags().IntVar(&institutionCode, "institution", 0, "institution code, every institution when omitted")
	cmd.Flags().StringVar(&fromDate, "from", "", "first day as YYYY-MM-DD")
	cmd.Flags().StringVar(&toDate, "to", "", "last day as YYYY-MM-DD, defaults to --from")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}
