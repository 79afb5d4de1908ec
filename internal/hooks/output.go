package hooks

import (
	"encoding/json"
	"io"

	"github.com/lazypower/tether/internal/suggest"
)

// ForegroundOutput is the JSON written to stdout by the foreground hook.
type ForegroundOutput struct {
	Event       string               `json:"event"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
}

// WriteForegroundOutput writes the foreground response to w. A nil list is
// written as an empty array so the shell always gets a well-formed reply.
func WriteForegroundOutput(w io.Writer, list []suggest.Suggestion) error {
	if list == nil {
		list = []suggest.Suggestion{}
	}
	return json.NewEncoder(w).Encode(ForegroundOutput{Event: EventForeground, Suggestions: list})
}
