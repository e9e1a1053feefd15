package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/conciliation/model"
)

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Error printing result: %v", err)
	}
}

// defaultCutOffDate is yesterday in the configured business time zone.
func defaultCutOffDate(a *app) string {
	return time.Now().In(a.cnf.Location()).AddDate(0, 0, -1).Format(model.DateLayout)
}

// runCommands defines "run", which executes one conciliation from the command line.
func runCommands(a *app) *cobra.Command {
	var (
		institutionCode int
		cutOffDate      string
		save            bool
		enqueue         bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run a conciliation for one institution and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if cutOffDate == "" {
				cutOffDate = defaultCutOffDate(a)
			}

			if enqueue {
				taskID, err := a.conciliation.EnqueueRun(ctx, institutionCode, cutOffDate)
				if err != nil {
					return err
				}
				fmt.Printf("Queued conciliation run %s\n", taskID)
				return nil
			}

			if save {
				header, id, err := a.conciliation.ProcessCompletely(ctx, institutionCode, cutOffDate)
				if header != nil {
					printJSON(header)
				}
				if err != nil {
					return err
				}
				fmt.Printf("Saved conciliation %d\n", id)
				return nil
			}

			header, err := a.conciliation.Run(ctx, institutionCode, cutOffDate)
			if err != nil {
				return err
			}
			printJSON(header)
			return nil
		},
	}

	cmd.Flags().IntVar(&institutionCode, "institution", 0, "institution code")
	cmd.Flags().StringVar(&cutOffDate, "date", "", "cut-off date as YYYY-MM-DD, defaults to yesterday")
	cmd.Flags().BoolVar(&save, "save", false, "refresh the institution side and save the result")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the run for the workers instead of running it here")
	_ = cmd.MarkFlagRequired("institution")

	return cmd
}

// syncCommands defines "sync switch" and "sync institution".
func syncCommands(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "copy source transactions into the conciliation store",
	}

	var fromDate, toDate string
	cmd.PersistentFlags().StringVar(&fromDate, "from", "", "first day as YYYY-MM-DD")
	cmd.PersistentFlags().StringVar(&toDate, "to", "", "last day as YYYY-MM-DD, defaults to --from")

	dates := func() (string, string) {
		if toDate == "" {
			return fromDate, fromDate
		}
		return fromDate, toDate
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "switch",
		Short: "import switch ledger movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to := dates()
			n, err := a.conciliation.SyncSwitchTransactions(context.Background(), from, to)
			if err != nil {
				return err
			}
			fmt.Printf("Synchronized %d switch transactions\n", n)
			return nil
		},
	})

	var institutionCode int
	var services []string
	institutionCmd := &cobra.Command{
		Use:   "institution",
		Short: "pull institution movements from its transaction service",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to := dates()
			n, err := a.conciliation.SyncInstitutionTransactions(context.Background(), institutionCode, from, to, services)
			if err != nil {
				return err
			}
			fmt.Printf("Synchronized %d transactions for institution %d\n", n, institutionCode)
			return nil
		},
	}
	institutionCmd.Flags().IntVar(&institutionCode, "institution", 0, "institution code")
	institutionCmd.Flags().StringSliceVar(&services, "services", nil, "service codes, defaults to the configured list")
	_ = institutionCmd.MarkFlagRequired("institution")
	cmd.AddCommand(institutionCmd)

	return cmd
}
