/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	historyPath string
	engineURL   string
	engineKey   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tuneid",
	Short: "Internet radio player with song recognition",
	Long: `tuneid plays internet radio streams and identifies what is playing.

While a stream plays, the decoded audio is mirrored into a recognition
session; ask it to identify the current track and it reports a match,
a no-match, or an error. Recognized tracks are kept in a local history.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		// .env is optional; flags and real env vars win over it.
		if err := godotenv.Load(); err == nil {
			log.Debug("Loaded .env file")
		}
		if engineURL == "" {
			engineURL = os.Getenv("TUNEID_ENGINE_URL")
		}
		if engineKey == "" {
			engineKey = os.Getenv("TUNEID_ENGINE_KEY")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", defaultHistoryPath(), "history database path (empty disables history)")
	rootCmd.PersistentFlags().StringVar(&engineURL, "engine-url", "", "recognition service endpoint (or TUNEID_ENGINE_URL)")
	rootCmd.PersistentFlags().StringVar(&engineKey, "engine-key", "", "recognition service API key (or TUNEID_ENGINE_KEY)")
}

func defaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tuneid-history.db"
	}
	return filepath.Join(dir, "tuneid", "history.db")
}
