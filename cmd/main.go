/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/conciliation"
	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/database"
	"github.com/jerry-enebeli/conciliation/internal/notification"
)

// CLI wraps the root cobra command.
type CLI struct {
	cmd *cobra.Command
}

// app carries what preRun builds for the subcommands.
type app struct {
	conciliation *conciliation.Conciliation
	cnf          *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file and wires the service before any command runs.
func preRun(a *app, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		c, err := setupConciliation(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		a.conciliation = c
		a.cnf = cnf
		return nil
	}
}

func setupConciliation(cfg *config.Configuration) (*conciliation.Conciliation, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	c, err := conciliation.NewConciliation(db)
	if err != nil {
		return nil, fmt.Errorf("error creating conciliation service: %v", err)
	}
	return c, nil
}

func NewCLI() *CLI {
	var configFile string
	a := &app{}

	var rootCmd = &cobra.Command{
		Use:   "conciliation",
		Short: "Switch and institution transaction conciliation",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./conciliation.json", "Configuration file")
	rootCmd.PersistentPreRunE = preRun(a, &configFile)

	rootCmd.AddCommand(serverCommands(a))
	rootCmd.AddCommand(workerCommands(a))
	rootCmd.AddCommand(migrateCommands(a))
	rootCmd.AddCommand(runCommands(a))
	rootCmd.AddCommand(syncCommands(a))
	rootCmd.AddCommand(rotateCommands(a))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
