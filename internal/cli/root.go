package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pratik-mahalle/bibleplan/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	apiClient    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "bibleplan",
	Short: "Bible Plan CLI - daily credits, paid tier and promo codes",
	Long: `bibleplan talks to the Bible Plan API: check today's credits,
spend one on a study action, redeem a promotional code, or review
your consume history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "auth" {
			return initClient()
		}
		return initAuthenticatedClient()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.bibleplan/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides config)")

	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newEntitlementCmd())
	rootCmd.AddCommand(newChatCmd())
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".bibleplan"), nil
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return
		}
		_ = os.MkdirAll(dir, 0700)
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BIBLEPLAN")
	viper.AutomaticEnv()

	viper.SetDefault("server_url", "http://localhost:8080")

	_ = viper.ReadInConfig()
}

func initClient() error {
	url := viper.GetString("server_url")
	if serverURL != "" {
		url = serverURL
	}

	apiClient = client.NewClient(client.Config{BaseURL: url})
	return nil
}

func initAuthenticatedClient() error {
	if err := initClient(); err != nil {
		return err
	}

	token := viper.GetString("auth.token")
	if token == "" {
		return fmt.Errorf("not authenticated. Run 'bibleplan auth login' first")
	}

	apiClient.SetToken(token)
	return nil
}

// getOutputFormat resolves the flag, then the config file, then falls back
// to a table on a terminal and JSON when piped.
func getOutputFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	if f := viper.GetString("output"); f != "" {
		return f
	}
	return defaultOutputFormat(term.IsTerminal(int(os.Stdout.Fd())))
}

func defaultOutputFormat(isTerminal bool) string {
	if isTerminal {
		return "table"
	}
	return "json"
}
