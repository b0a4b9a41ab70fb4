/*
Package runner implements the terminal chat loop for the feelflow engine.

It reads lines from an IOHandler, turns slash commands into engine gestures and
everything else into SubmitText, and prints the bot's replies.

# Commands

	/new            open a new chat
	/list           list chats
	/switch <n|id>  switch to a chat by position or id
	/check          start the cycle check ("Do you still feel ...?")
	/yes, /no       answer the cycle check
	/quit           leave

# Usage

	r := runner.NewRunner(engine,
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)
	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
