package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/conciliation/config"
)

const redacted = "********"

// redactConfig returns a copy of cfg with secrets masked.
func redactConfig(cfg config.Configuration) config.Configuration {
	if cfg.Server.SecretKey != "" {
		cfg.Server.SecretKey = redacted
	}
	if cfg.Encryption.Key != "" {
		cfg.Encryption.Key = redacted
	}
	if len(cfg.Encryption.Keys) > 0 {
		keys := make(map[string]string, len(cfg.Encryption.Keys))
		for id := range cfg.Encryption.Keys {
			keys[id] = redacted
		}
		cfg.Encryption.Keys = keys
	}
	return cfg
}

func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instance's computed configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactConfig(*cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}
