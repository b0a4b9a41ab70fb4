package domain

// Fixed script texts.
const (
	Greeting = "How do you want to start today?\n\n1. How you feel\n2. Start with a goal"

	PromptFeelingPath = "How/What are you feeling right now?"
	PromptGoalPath    = "What is your goal?"
	PromptClarify     = "I didn't understand. Please choose either 'How you feel' or 'Start with a goal'."
	PromptNowFeeling  = "How are you feeling about this now?"
	PromptOpposite    = "What would the opposite of that feel like? How do you want to feel?"

	// RestartOffer is appended to every closing reflection.
	RestartOffer = "Would you like to start another conversation? (yes/no)"

	NoticeEnded = "This conversation has ended. Start a new chat whenever you're ready."
)

// Labels recorded as user messages for cycle gestures, which carry no typed text.
const (
	GestureCheckIn = "Check in"
	GestureYes     = "Yes"
	GestureNo      = "No"
)

// Farewells is the fixed set of closing messages used when the user declines a restart.
var Farewells = []string{
	"Thank you for chatting with me today! Take care and come back anytime.",
	"It was great talking with you. Wishing you a wonderful day ahead!",
	"Thanks for the conversation. Hope to chat with you again soon!",
	"I enjoyed our talk. Have a lovely day and see you next time!",
}

// Affirmatives are the words that accept the restart offer when found anywhere in the reply.
var Affirmatives = []string{"yes", "ok", "sure", "yeah", "yep", "start", "again", "restart", "continue"}
