package hooks

// HookInput is the JSON the app shell sends on stdin to hook handlers.
// All fields are optional.
type HookInput struct {
	Event string `json:"event,omitempty"`

	// BatteryLevel is the social battery reading (0-100) captured by the
	// shell, if any.
	BatteryLevel *int `json:"battery_level,omitempty"`

	// Limit caps the suggestions returned on foreground; 0 means the default.
	Limit int `json:"limit,omitempty"`
}

const defaultForegroundLimit = 5

func (h *HookInput) limit() int {
	if h.Limit <= 0 {
		return defaultForegroundLimit
	}
	return h.Limit
}
