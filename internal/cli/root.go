package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/siteintent/internal/config"
)

// Version is set at build time with -ldflags
var Version = "v0.1.0"

var (
	cfgFile    string
	verbose    bool
	httpProxy  string
	httpsProxy string
	noProxy    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "siteintent",
	Short: "siteintent - resolve small business site facts into profile fields",
	Long: `siteintent turns facts scraped from a small business website into a
fixed set of named profile fields.

Each field is resolved by the strategy its intent map rule declares
(deterministic, LLM, deterministic then LLM, or derived), checked against
the rule's constraints, and scored for coverage. A resolve gate and a
publish gate decide whether the record is good enough to push.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("siteintent " + Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.siteintent/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	rootCmd.PersistentFlags().StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
	rootCmd.PersistentFlags().StringVar(&noProxy, "no-proxy", "", "hosts to reach directly (overrides NO_PROXY env var)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".siteintent"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	config.BindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig decodes the global viper state, which already carries file,
// env and bound flag values
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if verbose && cfg.Logging.Level == "info" {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func proxySettings() config.Proxy {
	return config.Proxy{HTTP: httpProxy, HTTPS: httpsProxy, NoProxy: noProxy}
}
