package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paramond",
	Short: "Paramond versions ML model parameters",
	Long: `Paramond is the server side of a collaborative versioning system for
machine learning model parameters.

Clients create commits through a multi-step protocol: each commit carries a
zero-knowledge training proof, and each protocol step is gated by a
short-lived capability token minted by the previous one.
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("store.dir", ".paramon/meta")
	viper.SetDefault("blob.dir", ".paramon/objects")
	viper.SetDefault("token.ttl", 10*time.Minute)
	viper.SetDefault("governor.block", 2*time.Minute)
	viper.SetDefault("sweep.interval", 5*time.Minute)
	viper.SetDefault("sweep.retention", time.Hour)
	viper.SetDefault("auth.header", "X-Identity")
	viper.SetDefault("log.level", "info")

	if cfg := os.Getenv("PARAMON_CONFIG"); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.paramon")
		viper.AddConfigPath("/etc/paramon")
		viper.SetConfigName("paramond")
	}

	viper.SetEnvPrefix("PARAMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Println("cannot read config file:", err)
			os.Exit(1)
		}
	}
}
