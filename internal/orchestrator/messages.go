// ABOUTME: User-facing message text for the orchestrator
// ABOUTME: Static strings sent into conversation threads, translated per conversation language

package orchestrator

import "fmt"

const (
	// separator divides the turn header from the assistant response.
	separator = "===================================================================="

	// threadCategory prefixes every generated conversation title.
	threadCategory = "Discussion"

	// errorThreadTitle names the thread created when a turn fails before a
	// conversation exists.
	errorThreadTitle = "FATAL ERROR OCCURRED"

	existingThreadHeader = "Trying to generate a helpful response..."

	newThreadHeader = "I will try to help you with your inquiry. Friendly reminder that I am just a bot and my responses are not guaranteed to work. Please ask a human helper for a higher guarantee of resolution should my response not help."

	botErrorMessage = "The help bot could not process the response. Please try again. The operator has been informed of the incident."

	maxTurnsReachedMessage = "You have reached the maximum number of messages for a single help thread. To continue further interactions, please create a new inquiry in a new thread."

	reviewSuccessMessage = "Thanks for leaving a review! Your review will help us focus on creating better responses in the future."

	reviewFailureMessage = "To leave a review, please ensure you are the help message author and ONLY provide a value between 1 (indicating inappropriate/inaccurate response) and 10 (perfect response)."

	permissionDeniedMessage = "You do not have permission to use this command."

	lastUpdateUnknownMessage = "The knowledge files have not been refreshed yet."
)

func newThreadGreeting(displayName string) string {
	return fmt.Sprintf("Hey, %s! %s", displayName, newThreadHeader)
}

func tooLongMessage(limit int) string {
	return fmt.Sprintf("Your message exceeds the platform limit of %d characters. Please shorten your message to be below the character limit.", limit)
}

func providerRateLimitMessage(limit, used, requested int, resetSeconds float64) string {
	return fmt.Sprintf("The assistant's rate limit has been met. Tokens per min (TPM): Limit %d, Used %d, Requested %d. Please try again in %.2f seconds.", limit, used, requested, resetSeconds)
}

func lastUpdateMessage(ts string) string {
	return fmt.Sprintf("The knowledge files were last updated on %s.", ts)
}
