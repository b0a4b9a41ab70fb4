/*
Package feelflow is a scripted conversational engine for short reflective check-ins.

A conversation starts by choosing a path: talking about how you feel, or starting
with a goal. Each path is a fixed sequence of questions that ends in a keyword-matched
reflection and an offer to start over. While the user describes a feeling, a nested
cycle check ("Do you still feel X?") can be opened to revisit it before the script moves on.

# Concept

The Engine is the single context object behind every surface (terminal chat, HTTP API,
MCP server). It owns:

  - Sessions: independent, append-only transcripts with one active selection.
  - The dialogue state machine: (path, step) + input -> reply + next step.
  - The cycle check: a process-wide sub-dialogue bound to one session.
  - The typing signal: raised while a reply is pending; text is rejected meanwhile.

Every user message is answered by exactly one bot message after a simulated typing
delay. A pending reply always lands on the session it was computed for, even if the
active session changed in between.

# Usage

	eng, err := feelflow.New(feelflow.WithTypingDelay(0))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.CreateSession(ctx); err != nil {
		log.Fatal(err)
	}

	turn, err := eng.SubmitText(ctx, "", "1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(turn.Bot.Content) // How/What are you feeling right now?

Adapters that only receive a context.Context can reach the engine through
NewContext and FromContext.
*/
package feelflow
