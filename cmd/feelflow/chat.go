package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/feelflow/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Starts an interactive chat. Lines are sent to the bot; commands start with a slash:
/new, /list, /switch <n|id>, /check, /yes, /no, /help and /quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")

		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		width := 0
		interactive := term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
		if interactive {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				width = w
			}
		}

		return cli.RunChat(ctx, app, cli.ChatOptions{
			In:          cmd.InOrStdin(),
			Out:         cmd.OutOrStdout(),
			JSON:        jsonMode,
			Headless:    headless,
			Interactive: interactive,
			Width:       width,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, hints or typing indicator)")
	chatCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")

	// Chat is the default if no command is provided.
	rootCmd.RunE = chatCmd.RunE
	rootCmd.Flags().AddFlagSet(chatCmd.Flags())
}
