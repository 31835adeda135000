// benkictl exercises the Benkinet session core from a terminal: log in,
// inspect the session, list and switch roles, and issue authenticated calls
// through the same pipeline the mobile app uses.
package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/internal/config"
)

func main() {
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if os.Getenv("DEBUG") == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cfg := config.New()

	root := &cobra.Command{
		Use:           "benkictl",
		Short:         "Benkinet session and role tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetHelpTemplate(banner(cfg.GetAppName()) + root.HelpTemplate())

	root.AddCommand(
		loginCommand(cfg),
		verifyOTPCommand(cfg),
		whoamiCommand(cfg),
		rolesCommand(cfg),
		switchRoleCommand(cfg),
		logoutCommand(cfg),
		callCommand(cfg),
	)
	return root
}

func banner(appName string) string {
	return figure.NewFigure(appName, "cybermedium", true).String() + "\n"
}
