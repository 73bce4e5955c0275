package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"lingopaste/cfg"
	"lingopaste/svc/client"
	"lingopaste/svc/util"
)

var (
	apiURL   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "lingopaste",
	Short:         "Paste text once, read it in any language",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Paste API base URL (default: $API_URL or http://localhost:8080/api)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default: $LOG_LEVEL or info)")
	rootCmd.AddCommand(serveCmd, createCmd, viewCmd, healthCmd)
}

// loadClientCfg reads configuration for the commands that talk to a
// running service. Logs go to stderr so stdout stays clean for output.
func loadClientCfg() (*cfg.Cfg, error) {
	c, err := cfg.Load()
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		c.Client.APIURL = apiURL
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := cfg.ValidateClient(c); err != nil {
		return nil, err
	}
	util.InitLogTo(os.Stderr, c.LogLevel, false)
	return c, nil
}
func newClients(c *cfg.Cfg) (*client.PasteClient, *client.TranslateClient, error) {
	pc, err := client.NewPasteClient(c.Client.APIURL, &http.Client{Timeout: c.Client.RequestTimeout})
	if err != nil {
		return nil, nil, err
	}
	tc, err := client.NewTranslateClient(c.Client.APIURL, &http.Client{},
		client.WithTimeout(c.Client.TranslateTimeout),
		client.WithRPM(c.Client.RPM),
	)
	if err != nil {
		return nil, nil, err
	}
	return pc, tc, nil
}
func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
