package hooks

import (
	"encoding/json"
	"errors"

	"github.com/lazypower/tether/internal/suggest"
)

// foreground records the battery reading, if any, and prints the top
// suggestions. The reply is always written, empty on failure.
func (h *Handler) foreground(input *HookInput) error {
	var errs []error
	if input.BatteryLevel != nil {
		body, _ := json.Marshal(map[string]int{"level": *input.BatteryLevel})
		if _, err := h.Client.Put("/api/battery", body); err != nil {
			errs = append(errs, err)
		}
	}

	var resp struct {
		Suggestions []suggest.Suggestion `json:"suggestions"`
	}
	data, err := h.Client.Get("/api/suggestions")
	if err == nil {
		err = json.Unmarshal(data, &resp)
	}
	if err != nil {
		errs = append(errs, err)
		resp.Suggestions = nil
	}
	if n := input.limit(); len(resp.Suggestions) > n {
		resp.Suggestions = resp.Suggestions[:n]
	}

	if err := WriteForegroundOutput(h.Out, resp.Suggestions); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
