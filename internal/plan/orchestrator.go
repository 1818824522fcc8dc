package plan

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Diego-DPL/zypace/internal/errors"
)

// FallbackModel is reported in Meta.Model when the deterministic planner produced the schedule.
const FallbackModel = "fallback"

const defaultGenerationTimeout = 60 * time.Second

// ErrMalformedOutput is returned when a generation service reply holds no usable schedule payload.
var ErrMalformedOutput = errors.NewSentinel("malformed generation output")

// Strategy is one way of asking a generation service for a schedule.
type Strategy interface {
	// Name identifies the model behind the strategy in plan metadata.
	Name() string
	// Generate returns the raw reply text.
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// ErrorReporter receives upstream failures that are recovered from, e.g. to forward them to error tracking.
type ErrorReporter func(ctx context.Context, err error)

// Generator tries each strategy in order and falls back to Periodize when all of them fail.
type Generator struct {
	strategies []Strategy
	logger     *slog.Logger
	timeout    time.Duration
	report     ErrorReporter
}

// NewGenerator creates a Generator. Every strategy call is bounded by timeout. report may be nil.
func NewGenerator(logger *slog.Logger, timeout time.Duration, report ErrorReporter, strategies ...Strategy) *Generator {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	if report == nil {
		report = func(context.Context, error) {}
	}
	return &Generator{
		strategies: strategies,
		logger:     logger,
		timeout:    timeout,
		report:     report,
	}
}

// Generate returns a validated schedule from req.Start to the race date. Upstream failures never escape;
// they degrade to the deterministic planner and are disclosed in the returned Meta.
//
// A ValidationError is returned when the race date is not after the start date.
func (g *Generator) Generate(ctx context.Context, req Request) (Schedule, error) {
	start := normalizeDate(req.Start)
	end := normalizeDate(req.Race.Date)
	if !end.After(start) {
		return Schedule{}, &ValidationError{
			Date:   end.Format(dateFormat),
			Reason: "race date must be after " + start.Format(dateFormat),
		}
	}
	req.Start = start
	req.Config = req.Config.Normalize()
	prompt := buildPrompt(req)

	var meta Meta
	for _, s := range g.strategies {
		if err := ctx.Err(); err != nil {
			meta.LastError = err.Error()
			break
		}
		meta.Attempts++
		entries, err := g.try(ctx, s, prompt, start, end)
		if err != nil {
			meta.LastError = err.Error()
			g.logger.LogAttrs(ctx, slog.LevelWarn, "generation candidate failed",
				slog.String("model", s.Name()), slog.Int("attempt", meta.Attempts), errors.SlogError(err))
			g.report(ctx, err)
			continue
		}
		meta.Model = s.Name()
		g.logger.LogAttrs(ctx, slog.LevelInfo, "schedule generated",
			slog.String("model", meta.Model), slog.Int("attempts", meta.Attempts), slog.Int("days", len(entries)))
		return Schedule{Entries: entries, Meta: meta}, nil
	}

	entries := Periodize(start, req.Race, req.Goal, req.Config)
	if err := Validate(entries, start, end); err != nil {
		return Schedule{}, errors.Wrap(err, "validate fallback schedule")
	}
	Synthesize(entries)
	meta.Fallback = true
	meta.Model = FallbackModel
	g.logger.LogAttrs(ctx, slog.LevelInfo, "schedule generated by fallback planner",
		slog.Int("attempts", meta.Attempts), slog.Int("days", len(entries)), slog.String("last_error", meta.LastError))
	return Schedule{Entries: entries, Meta: meta}, nil
}

func (g *Generator) try(ctx context.Context, s Strategy, prompt Prompt, start, end time.Time) ([]Entry, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := s.Generate(callCtx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, "generate", slog.String("model", s.Name()))
	}
	entries, err := extractEntries(text)
	if err != nil {
		return nil, errors.Wrap(err, "extract schedule", slog.String("model", s.Name()))
	}
	if err = Validate(entries, start, end); err != nil {
		return nil, errors.Wrap(err, "validate schedule", slog.String("model", s.Name()))
	}
	Synthesize(entries)
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Date, b.Date) })
	return entries, nil
}

// extractEntries parses the text between the first '{' and the last '}' as a {"plan": [...]} payload.
func extractEntries(text string) ([]Entry, error) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return nil, errors.Wrap(ErrMalformedOutput, "no JSON object", slog.Int("length", len(text)))
	}
	var payload struct {
		Plan []Entry `json:"plan"`
	}
	if err := json.Unmarshal([]byte(text[first:last+1]), &payload); err != nil {
		return nil, errors.Wrap(errors.Join(ErrMalformedOutput, err), "decode JSON")
	}
	if len(payload.Plan) == 0 {
		return nil, errors.Wrap(ErrMalformedOutput, "empty plan array")
	}
	return payload.Plan, nil
}
