package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/muesli/termenv"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/internal/presentation/tui"
	"github.com/aretw0/feelflow/pkg/runner"
)

// ChatOptions selects how the terminal chat talks to the user.
type ChatOptions struct {
	In  io.Reader
	Out io.Writer

	JSON        bool // NDJSON events instead of text
	Headless    bool // no banner, hints or typing indicator
	Interactive bool // Out is a terminal: banner and markdown rendering
	Width       int  // word wrap for rendered messages, 0 for default
}

// RunChat drives the engine from a line-oriented terminal until quit, EOF or cancellation.
func RunChat(ctx context.Context, app *App, opts ChatOptions) error {
	runnerOpts := []runner.Option{
		runner.WithLogger(app.Logger),
		runner.WithHeadless(opts.Headless),
		runner.WithSanitizer(app.Sanitizer),
		runner.WithInputHandler(createHandler(opts)),
	}

	if opts.Interactive && !opts.JSON && !opts.Headless {
		tui.PrintBanner(opts.Out, feelflow.Version)
	}

	r := runner.NewRunner(app.Engine, runnerOpts...)
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}
	return nil
}

func createHandler(opts ChatOptions) runner.IOHandler {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out)
	}

	handlerOpts := []runner.TextHandlerOption{}
	if opts.Interactive {
		out := termenv.NewOutput(opts.Out)
		handlerOpts = append(handlerOpts,
			runner.WithTextHandlerRenderer(tui.NewRenderer(opts.Width)),
			runner.WithTypingIndicator(out.String("…").Faint().String()),
		)
	}
	if opts.Headless {
		handlerOpts = append(handlerOpts, runner.WithTypingIndicator(""))
	}
	return runner.NewTextHandler(opts.In, opts.Out, handlerOpts...)
}
