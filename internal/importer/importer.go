// Package importer loads seed data from a JSONL file: one record per line,
// each tagged with its type.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/tether/internal/domain"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/observability"
	"github.com/lazypower/tether/internal/signals"
	"github.com/lazypower/tether/internal/store"
)

// Record types.
const (
	TypeRelationship = "relationship"
	TypeInteraction  = "interaction"
	TypeLifeEvent    = "life_event"
	TypeSignals      = "signals"
)

// Entry is a single line of a seed file.
type Entry struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// RelationshipRecord seeds one tracked person.
type RelationshipRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Tier        string  `json:"tier"`
	Archetype   string  `json:"archetype"`
	Score       float64 `json:"score"`
	Momentum    float64 `json:"momentum"`
	Dormant     bool    `json:"dormant"`
	Resilience  float64 `json:"resilience"`
	Birthday    string  `json:"birthday"`
	Anniversary string  `json:"anniversary"`
	CreatedAt   string  `json:"created_at"`
}

// LifeEventRecord seeds one dated life event.
type LifeEventRecord struct {
	RelationshipID string    `json:"relationship_id"`
	Label          string    `json:"label"`
	Date           time.Time `json:"date"`
}

// SignalsRecord overwrites the externally computed score fields.
type SignalsRecord struct {
	RelationshipID string  `json:"relationship_id"`
	Score          float64 `json:"score"`
	Momentum       float64 `json:"momentum"`
	Dormant        bool    `json:"dormant"`
}

// Stats counts what an import did.
type Stats struct {
	Relationships int `json:"relationships"`
	Interactions  int `json:"interactions"`
	LifeEvents    int `json:"life_events"`
	Signals       int `json:"signals"`
	Existing      int `json:"existing"`
	Skipped       int `json:"skipped"`
}

// Importer applies seed records through the engine so interactions get the
// same reciprocity and outcome handling as logged ones.
type Importer struct {
	eng *engine.Engine
	log *zap.Logger
}

// New creates an Importer.
func New(eng *engine.Engine, log *zap.Logger) *Importer {
	return &Importer{eng: eng, log: observability.OrNop(log)}
}

// ImportFile imports a JSONL seed file.
func (im *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

// Import reads records from r. Malformed lines and records that reference
// unknown relationships or fail validation are logged and skipped; store
// failures abort the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	var st Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.Record == nil {
			im.log.Warn("skip malformed line", zap.Int("line", lineNo), zap.Error(err))
			st.Skipped++
			continue
		}

		err := im.apply(ctx, entry, &st)
		if err == nil {
			continue
		}
		if skippable(err) {
			im.log.Warn("skip record", zap.Int("line", lineNo), zap.String("type", entry.Type), zap.Error(err))
			st.Skipped++
			continue
		}
		return st, fmt.Errorf("line %d: %w", lineNo, err)
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("scan seed file: %w", err)
	}

	im.log.Info("import complete",
		zap.Int("relationships", st.Relationships),
		zap.Int("interactions", st.Interactions),
		zap.Int("life_events", st.LifeEvents),
		zap.Int("signals", st.Signals),
		zap.Int("skipped", st.Skipped))
	return st, nil
}

// errBadRecord marks a record that cannot be applied as written.
var errBadRecord = errors.New("bad record")

func skippable(err error) bool {
	var verr *engine.ValidationError
	return errors.Is(err, errBadRecord) || errors.Is(err, store.ErrNotFound) || errors.As(err, &verr)
}

func (im *Importer) apply(ctx context.Context, e Entry, st *Stats) error {
	switch e.Type {
	case TypeRelationship:
		var rec RelationshipRecord
		if err := json.Unmarshal(e.Record, &rec); err != nil {
			return fmt.Errorf("%w: %v", errBadRecord, err)
		}
		created, err := im.relationship(ctx, rec)
		if err != nil {
			return err
		}
		if created {
			st.Relationships++
		} else {
			st.Existing++
		}

	case TypeInteraction:
		var in engine.InteractionInput
		if err := json.Unmarshal(e.Record, &in); err != nil {
			return fmt.Errorf("%w: %v", errBadRecord, err)
		}
		if _, err := im.eng.LogInteraction(ctx, in); err != nil {
			return err
		}
		st.Interactions++

	case TypeLifeEvent:
		var rec LifeEventRecord
		if err := json.Unmarshal(e.Record, &rec); err != nil {
			return fmt.Errorf("%w: %v", errBadRecord, err)
		}
		if err := im.lifeEvent(ctx, rec); err != nil {
			return err
		}
		st.LifeEvents++

	case TypeSignals:
		var rec SignalsRecord
		if err := json.Unmarshal(e.Record, &rec); err != nil {
			return fmt.Errorf("%w: %v", errBadRecord, err)
		}
		if rec.Score < 0 || rec.Score > 100 {
			return fmt.Errorf("%w: score %v out of range", errBadRecord, rec.Score)
		}
		if err := im.eng.DB.UpdateSignals(ctx, rec.RelationshipID, rec.Score, rec.Momentum, rec.Dormant); err != nil {
			return err
		}
		st.Signals++

	default:
		return fmt.Errorf("%w: unknown type %q", errBadRecord, e.Type)
	}
	return nil
}

// relationship creates rec unless a relationship with its id already exists.
func (im *Importer) relationship(ctx context.Context, rec RelationshipRecord) (bool, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return false, fmt.Errorf("%w: relationship name required", errBadRecord)
	}
	if rec.Score < 0 || rec.Score > 100 {
		return false, fmt.Errorf("%w: score %v out of range", errBadRecord, rec.Score)
	}
	for field, mmdd := range map[string]string{"birthday": rec.Birthday, "anniversary": rec.Anniversary} {
		if mmdd == "" {
			continue
		}
		if _, _, ok := signals.ParseAnnual(mmdd); !ok {
			return false, fmt.Errorf("%w: %s %q is not a valid MM-DD date", errBadRecord, field, mmdd)
		}
	}
	if rec.ID != "" {
		existing, err := im.eng.DB.GetRelationship(ctx, rec.ID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, nil
		}
	}

	r := &domain.Relationship{
		ID:            rec.ID,
		Name:          rec.Name,
		Tier:          domain.Tier(rec.Tier),
		Archetype:     domain.Archetype(rec.Archetype),
		CurrentScore:  rec.Score,
		MomentumScore: rec.Momentum,
		Dormant:       rec.Dormant,
		Resilience:    rec.Resilience,
		Birthday:      rec.Birthday,
		Anniversary:   rec.Anniversary,
	}
	if rec.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, rec.CreatedAt)
		if err != nil {
			return false, fmt.Errorf("%w: created_at: %v", errBadRecord, err)
		}
		r.CreatedAt = t
	}
	if err := im.eng.DB.CreateRelationship(ctx, r); err != nil {
		return false, err
	}
	return true, nil
}

func (im *Importer) lifeEvent(ctx context.Context, rec LifeEventRecord) error {
	if rec.Label == "" || rec.Date.IsZero() {
		return fmt.Errorf("%w: life event needs label and date", errBadRecord)
	}
	rel, err := im.eng.DB.GetRelationship(ctx, rec.RelationshipID)
	if err != nil {
		return err
	}
	if rel == nil {
		return fmt.Errorf("relationship %s: %w", rec.RelationshipID, store.ErrNotFound)
	}
	return im.eng.DB.CreateLifeEvent(ctx, &domain.LifeEvent{
		RelationshipID: rec.RelationshipID,
		Label:          rec.Label,
		Date:           rec.Date,
	})
}
