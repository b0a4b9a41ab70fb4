package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/pkg/domain"
	"github.com/aretw0/feelflow/pkg/runner"
)

func newEngine(t *testing.T) *feelflow.Engine {
	t.Helper()
	eng, err := feelflow.New(feelflow.WithTypingDelay(0), feelflow.WithDebounce(0))
	require.NoError(t, err)
	return eng
}

func run(t *testing.T, eng *feelflow.Engine, input string, opts ...runner.Option) string {
	t.Helper()
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader(input), &out, runner.WithTypingIndicator(""))
	r := runner.NewRunner(eng, append([]runner.Option{runner.WithInputHandler(handler)}, opts...)...)
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestRunner_FeelingConversation(t *testing.T) {
	eng := newEngine(t)

	out := run(t, eng, "1\nanxious\n/quit\n")

	assert.Contains(t, out, "How do you want to start today?")
	assert.Contains(t, out, domain.PromptFeelingPath)
	assert.Contains(t, out, "Feel anxious — what does anxious feel like?")
	assert.Contains(t, out, "[Bye!]")

	s, err := eng.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StepFeelingDetail, s.Step)
}

func TestRunner_EOFEndsQuietly(t *testing.T) {
	eng := newEngine(t)
	out := run(t, eng, "2")
	assert.Contains(t, out, domain.PromptGoalPath)
	assert.NotContains(t, out, "Bye!")
}

func TestRunner_CycleCommands(t *testing.T) {
	eng := newEngine(t)

	out := run(t, eng, strings.Join([]string{
		"/check",
		"feel",
		"stressed",
		"tight",
		"/check",
		"/yes",
		"/no",
		"/no",
		"/no",
		"/quit",
	}, "\n")+"\n")

	assert.Contains(t, out, "[Nothing to check in on yet.]")
	assert.Contains(t, out, "[Type /check to revisit how you feel.]")
	assert.Equal(t, 2, strings.Count(out, "Do you still feel tight?"))
	assert.Contains(t, out, "Do you still feel stressed?")
	assert.Contains(t, out, "[No check-in in progress.]")

	s, _ := eng.Current(context.Background())
	assert.Equal(t, domain.StepNowFeeling, s.Step)
}

func TestRunner_SessionCommands(t *testing.T) {
	eng := newEngine(t)

	out := run(t, eng, "1\n/new\n/list\n/switch 1\n/switch nope\n/switch\n/bogus\n/quit\n")

	assert.Contains(t, out, "[Opened Chat 2]")
	assert.Contains(t, out, "  1. Chat 1")
	assert.Contains(t, out, "* 2. Chat 2")
	assert.Contains(t, out, "[Switched to Chat 1]")
	assert.Contains(t, out, "> 1\n", "switching replays the transcript")
	assert.Contains(t, out, "[No chat nope]")
	assert.Contains(t, out, "[Usage: /switch <n|id>]")
	assert.Contains(t, out, "[Unknown command /bogus. Type /help.]")

	s, _ := eng.Current(context.Background())
	assert.Equal(t, "Chat 1", s.Title)
}

func TestRunner_RendererAppliesToBotMessages(t *testing.T) {
	eng := newEngine(t)
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader("1\n"), &out,
		runner.WithTypingIndicator("..."),
		runner.WithTextHandlerRenderer(func(s string) (string, error) {
			return "**" + s + "**", nil
		}),
	)

	require.NoError(t, runner.NewRunner(eng, runner.WithInputHandler(handler)).Run(context.Background()))

	assert.Contains(t, out.String(), "**"+domain.PromptFeelingPath+"**")
	assert.Contains(t, out.String(), "...\n")
}

func TestRunner_HeadlessSkipsHintsAndTyping(t *testing.T) {
	eng := newEngine(t)
	var out bytes.Buffer
	handler := runner.NewTextHandler(strings.NewReader("1\nstressed\ntight\n"), &out)

	r := runner.NewRunner(eng, runner.WithInputHandler(handler), runner.WithHeadless(true))
	require.NoError(t, r.Run(context.Background()))

	assert.NotContains(t, out.String(), "…")
	assert.NotContains(t, out.String(), "/check")
}

func TestRunner_RejectsOversizedInput(t *testing.T) {
	eng := newEngine(t)

	out := run(t, eng, "this line is too long\n1\n", runner.WithSanitizer(runner.Sanitizer{MaxSize: 8}))
	assert.Contains(t, out, "[message is too long: 21 bytes, limit is 8. Please try again.]")
	assert.Contains(t, out, domain.PromptFeelingPath)
}

func TestRunner_CleansInputBeforeDispatch(t *testing.T) {
	eng := newEngine(t)

	run(t, eng, "\x1b[1m1\x1b[0m\n   \n\x1b[31manxious\x1b[0m\n")

	s, err := eng.Current(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Messages, 5, "the blank line is skipped")
	assert.Equal(t, "1", s.Messages[1].Content)
	assert.Equal(t, "anxious", s.Messages[3].Content)
	assert.Equal(t, domain.StepFeelingDetail, s.Step)
}

func TestRunner_JSONHandler(t *testing.T) {
	eng := newEngine(t)
	var out bytes.Buffer
	handler := runner.NewJSONHandler(strings.NewReader(`"1"`+"\nanxious\n/quit\n"), &out)

	require.NoError(t, runner.NewRunner(eng, runner.WithInputHandler(handler)).Run(context.Background()))

	var events []runner.Event
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var ev runner.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, "message", events[0].Type)
	assert.Equal(t, domain.Greeting, events[0].Message.Content)

	var bot []string
	signals := 0
	for _, ev := range events {
		switch ev.Type {
		case "message":
			bot = append(bot, ev.Message.Content)
		case "signal":
			assert.Equal(t, runner.SignalTyping, ev.Name)
			signals++
		}
	}
	assert.Equal(t, []string{domain.Greeting, domain.PromptFeelingPath, "Feel anxious — what does anxious feel like?"}, bot)
	assert.Equal(t, 2, signals)
	assert.Equal(t, runner.Event{Type: "system", Text: "Bye!"}, events[len(events)-1])
}
