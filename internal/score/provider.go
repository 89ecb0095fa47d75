package score

import "context"

// Provider sends a scoring prompt to an LLM and returns the raw text
// response. Used only by Engine and the cover-letter generator; not exported
// to the rest of the system.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
