package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/importer"
	"github.com/lazypower/tether/internal/suggest"
)

// --- suggest command ---

var suggestCmd = &cobra.Command{
	Use:   "suggest [relationship-id]",
	Short: "Show current suggestions",
	Long:  "With no argument, lists the ranked suggestion for every tracked relationship. With an id, shows that relationship's suggestion.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if len(args) == 1 {
		s, err := a.eng.GenerateSuggestion(ctx, args[0])
		if err != nil {
			return err
		}
		var list []suggest.Suggestion
		if s != nil {
			list = append(list, *s)
		}
		renderSuggestions(cmd.OutOrStdout(), list)
		return nil
	}

	list, err := a.eng.ListSuggestions(ctx)
	if err != nil {
		return err
	}
	renderSuggestions(cmd.OutOrStdout(), list)
	return nil
}

// --- dismiss command ---

var dismissDays int

var dismissCmd = &cobra.Command{
	Use:   "dismiss <suggestion-id>",
	Short: "Dismiss a suggestion for its cooldown period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext()
		defer cancel()

		if err := a.eng.DismissSuggestion(ctx, args[0], dismissDays); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dismissed %s\n", args[0])
		return nil
	},
}

// --- evaluate / measure commands ---

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one notification scheduler pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext()
		defer cancel()

		res, err := a.eng.EvaluateAndSchedule(ctx)
		if err != nil {
			return err
		}
		renderResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measure pending outcomes that are ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext()
		defer cancel()

		sum, err := a.eng.MeasurePendingOutcomes(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "measured: %d, not ready: %d, failed: %d\n", sum.Measured, sum.NotReady, sum.Failed)
		return nil
	},
}

// --- prefs command ---

var (
	prefsFrequency    string
	prefsQuietStart   int
	prefsQuietEnd     int
	prefsBatteryAware bool
	prefsBattery      int
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or update notification preferences",
	Long:  "With no flags, prints the current preferences. Flags that are set are applied as a partial update.",
	RunE:  runPrefs,
}

func runPrefs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	flags := cmd.Flags()
	if flags.Changed("battery") {
		if err := a.eng.SetSocialBattery(ctx, prefsBattery); err != nil {
			return err
		}
	}

	var upd engine.PreferencesUpdate
	if flags.Changed("frequency") {
		f := domain.Frequency(prefsFrequency)
		upd.Frequency = &f
	}
	if flags.Changed("quiet-start") {
		upd.QuietStart = &prefsQuietStart
	}
	if flags.Changed("quiet-end") {
		upd.QuietEnd = &prefsQuietEnd
	}
	if flags.Changed("battery-aware") {
		upd.BatteryAware = &prefsBatteryAware
	}

	var prefs domain.NotificationPreferences
	if upd == (engine.PreferencesUpdate{}) {
		prefs, err = a.eng.GetNotificationPreferences(ctx)
	} else {
		prefs, err = a.eng.UpdateNotificationPreferences(ctx, upd)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, headingStyle.Render("## Notification preferences"))
	fmt.Fprintf(w, "frequency:     %s (%d/day)\n", prefs.Frequency, prefs.Frequency.DailyBudget())
	fmt.Fprintf(w, "quiet hours:   %02d:00-%02d:00\n", prefs.QuietStart, prefs.QuietEnd)
	fmt.Fprintf(w, "battery aware: %t\n", prefs.BatteryAware)
	if level, known, err := a.db.SocialBattery(ctx); err == nil && known {
		fmt.Fprintf(w, "battery:       %d\n", level)
	}
	return nil
}

// --- log command ---

var (
	logCategory   string
	logStatus     string
	logDate       string
	logVibe       int
	logNote       string
	logInitiator  string
	logSuggestion string
)

var logCmd = &cobra.Command{
	Use:   "log <relationship-id>...",
	Short: "Log an interaction with one or more relationships",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	in := engine.InteractionInput{
		RelationshipIDs: args,
		Category:        domain.Category(logCategory),
		Status:          domain.Status(logStatus),
		Note:            logNote,
		Initiator:       domain.Initiator(logInitiator),
		SuggestionID:    logSuggestion,
	}
	if logDate != "" {
		t, err := parseDate(logDate)
		if err != nil {
			return err
		}
		in.Date = t
	}
	if cmd.Flags().Changed("vibe") {
		in.Vibe = &logVibe
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	logged, err := a.eng.LogInteraction(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "logged %s (%s, %s)\n", logged.ID, logged.Category, logged.Status)
	return nil
}

// parseDate accepts RFC 3339 or a plain YYYY-MM-DD date in the local zone.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import <seed.jsonl>",
	Short: "Import relationships, interactions, and life events from a JSONL seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := importer.New(a.eng, a.log.Named("import")).ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"imported %d relationships (%d existing), %d interactions, %d life events, %d signal updates; skipped %d\n",
			st.Relationships, st.Existing, st.Interactions, st.LifeEvents, st.Signals, st.Skipped)
		return nil
	},
}

// --- reciprocity command ---

var reciprocityCmd = &cobra.Command{
	Use:   "reciprocity <relationship-id>",
	Short: "Show initiation balance and learned category effectiveness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext()
		defer cancel()

		rep, err := a.eng.ReciprocityReport(ctx, args[0])
		if err != nil {
			return err
		}
		renderReport(cmd.OutOrStdout(), rep)
		return nil
	},
}

func init() {
	dismissCmd.Flags().IntVar(&dismissDays, "days", 0, "Cooldown in days (default: the rule's own cooldown)")

	prefsCmd.Flags().StringVar(&prefsFrequency, "frequency", "", "light, moderate, or proactive")
	prefsCmd.Flags().IntVar(&prefsQuietStart, "quiet-start", 22, "Hour quiet hours begin (0-23)")
	prefsCmd.Flags().IntVar(&prefsQuietEnd, "quiet-end", 8, "Hour quiet hours end (0-23)")
	prefsCmd.Flags().BoolVar(&prefsBatteryAware, "battery-aware", true, "Gate notifications on social battery")
	prefsCmd.Flags().IntVar(&prefsBattery, "battery", 0, "Set the social battery level (0-100)")

	logCmd.Flags().StringVarP(&logCategory, "category", "c", string(domain.CategoryConversation), "Interaction category")
	logCmd.Flags().StringVar(&logStatus, "status", string(domain.StatusCompleted), "planned or completed")
	logCmd.Flags().StringVar(&logDate, "date", "", "When it happened (YYYY-MM-DD or RFC 3339; default now)")
	logCmd.Flags().IntVar(&logVibe, "vibe", 0, "How it went (1-5)")
	logCmd.Flags().StringVar(&logNote, "note", "", "Free-text reflection")
	logCmd.Flags().StringVar(&logInitiator, "initiator", "", "user, friend, or mutual")
	logCmd.Flags().StringVar(&logSuggestion, "suggestion", "", "Id of the suggestion this followed")
}
