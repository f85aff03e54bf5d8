package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentinela-br/sentinela/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store credentials and write the default config file",
	Long: `Prompts for the LLM API key and stores it in the OS keychain when
available, falling back to the config file. Also writes a starter
config.yaml under ~/.sentinela.`,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("LLM provider [%s]: ", cfg.LLM.Provider)
	if provider := readLine(reader); provider != "" {
		cfg.LLM.Provider = provider
	}

	fmt.Printf("API key for %s (leave empty to skip): ", cfg.LLM.Provider)
	apiKey := readLine(reader)

	if apiKey != "" {
		km := config.NewKeyringManager()
		if km.IsAvailable() {
			if err := km.SaveAPIKey(cfg.LLM.Provider, apiKey); err != nil {
				return err
			}
			fmt.Println("API key stored in OS keychain.")
		} else {
			cfg.LLM.APIKey = apiKey
			fmt.Println("Keychain unavailable; key will be written to the config file.")
		}
	}

	fmt.Printf("Portal da Transparência API key (leave empty to skip): ")
	if portalKey := readLine(reader); portalKey != "" {
		cfg.Sources.PortalTransparencia.APIKey = portalKey
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	path := filepath.Join(homeDir, ".sentinela", "config.yaml")
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Printf("Current API key: %s\n", config.MaskAPIKey(cfg.LLM.APIKey))
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
