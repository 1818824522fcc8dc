package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Diego-DPL/zypace/internal/contexthelpers"
	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/sqlite"
	"github.com/Diego-DPL/zypace/internal/strava"
	"golang.org/x/sync/singleflight"
)

// Provider is the activity provider API used by the Service. *strava.Client implements it.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (strava.Token, error)
	Refresh(ctx context.Context, refreshToken string) (strava.Token, error)
	Activities(ctx context.Context, accessToken string, after time.Time, page, perPage int) ([]strava.Activity, error)
	Athlete(ctx context.Context, accessToken string) (strava.Athlete, error)
}

// Service connects runners to the activity provider and reconciles their workouts with recorded activities.
type Service struct {
	repo     *repository
	provider Provider
	cfg      MatchConfig
	logger   *slog.Logger
	report   func(context.Context, error)
	now      func() time.Time

	// refreshes lets concurrent runs of one runner share a single token refresh.
	refreshes singleflight.Group
}

// Config configures a Service.
type Config struct {
	// Provider is nil when the provider client is not configured. Every call then fails with
	// strava.ErrNotConfigured.
	Provider Provider
	Match    MatchConfig
	// Report receives provider failures. It may be nil.
	Report func(context.Context, error)
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewService creates a Service.
func NewService(db *sqlite.Database, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Report == nil {
		cfg.Report = func(context.Context, error) {}
	}
	return &Service{
		repo:      &repository{db: db},
		provider:  cfg.Provider,
		cfg:       cfg.Match.withDefaults(),
		logger:    logger,
		report:    cfg.Report,
		now:       cfg.Now,
		refreshes: singleflight.Group{},
	}
}

// AuthURL returns the provider consent page for the runner. state is echoed back to the callback.
func (s *Service) AuthURL(state string) (string, error) {
	if s.provider == nil {
		return "", strava.ErrNotConfigured
	}
	return s.provider.AuthCodeURL(state), nil
}

// Connect exchanges an authorization code and stores the credential with the scope the runner granted.
func (s *Service) Connect(ctx context.Context, code, scope string) (Credential, error) {
	if s.provider == nil {
		return Credential{}, strava.ErrNotConfigured
	}
	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.report(ctx, err)
		return Credential{}, fmt.Errorf("exchange code: %w", err)
	}
	cred := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		AthleteID:    tok.AthleteID,
		Scope:        scope,
	}
	if err = s.repo.upsertCredential(ctx, cred, s.now()); err != nil {
		return Credential{}, fmt.Errorf("store credential: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "provider connected",
		slog.Int64("athlete_id", cred.AthleteID), slog.String("scope", scope))
	return cred, nil
}

// Disconnect forgets the runner's credential. Imported activities are kept.
func (s *Service) Disconnect(ctx context.Context) error {
	if err := s.repo.deleteCredential(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "provider disconnected")
	return nil
}

// Sync imports new activities and completes the workouts they match.
//
// An expired credential is refreshed first and a failed refresh aborts the run. Activities imported before a
// failure or cancellation stay stored, so a later run resumes where this one stopped.
func (s *Service) Sync(ctx context.Context, opts Options) (Result, error) {
	if s.provider == nil {
		return Result{}, strava.ErrNotConfigured
	}
	cred, err := s.repo.credential(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load credential: %w", err)
	}
	if cred.expired(s.now()) {
		if cred, err = s.refresh(ctx); err != nil {
			return Result{}, fmt.Errorf("refresh credential: %w", err)
		}
	}

	now := s.now()
	lookback := opts.lookbackDays()
	since, err := s.since(ctx, now, lookback, opts.Reset)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Imported:          0,
		Fetched:           0,
		Matched:           0,
		LookbackDays:      lookback,
		Range:             Range{From: since.Format(dateFormat), To: now.UTC().Format(dateFormat)},
		MatchedRules:      nil,
		SampleActivityIDs: nil,
		StoredScope:       cred.Scope,
		Hint:              "",
		Athlete:           nil,
	}
	var after time.Time
	if !opts.NoAfter {
		after = since.Add(-afterSlack)
	}

	if err = s.fetch(ctx, cred, after, opts.Debug, &result); err != nil {
		return Result{}, err
	}
	if err = s.match(ctx, now, &result); err != nil {
		return Result{}, err
	}

	if opts.Debug {
		athlete, athleteErr := s.provider.Athlete(ctx, cred.AccessToken)
		if athleteErr != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "athlete lookup failed", errors.SlogError(athleteErr))
		} else {
			result.Athlete = &athlete
		}
	}
	result.Hint = hint(cred, result)

	s.logger.LogAttrs(ctx, slog.LevelInfo, "activities synced", slog.Any("result", result))
	return result, nil
}

// since is the lower bound of the fetched range. Without stored activities, or on reset, the full lookback is
// fetched, otherwise fetching starts at the most recent stored activity when that is later.
func (s *Service) since(ctx context.Context, now time.Time, lookbackDays int, reset bool) (time.Time, error) {
	since := now.UTC().AddDate(0, 0, -lookbackDays)
	if reset {
		return since, nil
	}
	latest, ok, err := s.repo.latestActivity(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("compute range: %w", err)
	}
	if ok && latest.After(since) {
		since = latest
	}
	return since, nil
}

func (s *Service) fetch(ctx context.Context, cred Credential, after time.Time, debug bool, result *Result) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("fetch canceled before page %d: %w", page, err)
		}
		fetched, err := s.provider.Activities(ctx, cred.AccessToken, after, page, pageSize)
		if err != nil {
			s.report(ctx, err)
			return fmt.Errorf("fetch activities: %w", err)
		}

		activities := make([]activity, 0, len(fetched))
		for _, a := range fetched {
			activities = append(activities, fromProvider(a))
			if debug && len(result.SampleActivityIDs) < sampleSize {
				result.SampleActivityIDs = append(result.SampleActivityIDs, a.ID)
			}
		}
		imported, err := s.repo.insertNew(ctx, activities)
		if err != nil {
			return fmt.Errorf("store page %d: %w", page, err)
		}
		result.Fetched += len(fetched)
		result.Imported += imported
		s.logger.LogAttrs(ctx, slog.LevelDebug, "fetched activity page",
			slog.Int("page", page), slog.Int("fetched", len(fetched)), slog.Int("imported", imported))

		if len(fetched) < pageSize {
			return nil
		}
		if result.Fetched >= maxFetched {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "activity fetch cap reached", slog.Int("fetched", result.Fetched))
			return nil
		}
	}
}

func (s *Service) match(ctx context.Context, now time.Time, result *Result) error {
	today := now.UTC()
	from := today.AddDate(0, 0, -s.cfg.LookbackDays).Format(dateFormat)
	to := today.AddDate(0, 0, s.cfg.LookaheadDays).Format(dateFormat)

	candidates, err := s.repo.openWorkouts(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load workouts: %w", err)
	}
	activities, err := s.repo.activitiesBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load activities: %w", err)
	}

	for _, m := range matchWorkouts(s.cfg, candidates, activities) {
		if err = ctx.Err(); err != nil {
			return fmt.Errorf("matching canceled: %w", err)
		}
		completed, completeErr := s.repo.complete(ctx, m.WorkoutID)
		if completeErr != nil {
			return completeErr
		}
		if !completed {
			continue
		}
		if result.MatchedRules == nil {
			result.MatchedRules = make(map[int]Rule)
		}
		result.MatchedRules[m.WorkoutID] = m.Rule
		result.Matched++
		s.logger.LogAttrs(ctx, slog.LevelDebug, "workout matched",
			slog.Int("workout_id", m.WorkoutID), slog.String("rule", string(m.Rule)))
	}
	return nil
}

// refresh renews the runner's token. Concurrent callers for the same runner share one provider call, and a
// conditional update keeps a second process from overwriting a newer pair.
func (s *Service) refresh(ctx context.Context) (Credential, error) {
	key := strconv.Itoa(contexthelpers.RunnerID(ctx))
	v, err, shared := s.refreshes.Do(key, func() (any, error) {
		// The flight outlives a caller that gives up.
		ctx := context.WithoutCancel(ctx)
		// Re-read, the token may have been refreshed since the caller loaded it.
		current, err := s.repo.credential(ctx)
		if err != nil {
			return Credential{}, err
		}
		if !current.expired(s.now()) {
			return current, nil
		}

		tok, err := s.provider.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return Credential{}, err
		}
		next := current
		next.AccessToken = tok.AccessToken
		next.ExpiresAt = tok.Expiry
		if tok.RefreshToken != "" {
			next.RefreshToken = tok.RefreshToken
		}
		swapped, err := s.repo.swapToken(ctx, current.RefreshToken, next, s.now())
		if err != nil {
			return Credential{}, err
		}
		if !swapped {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "credential refreshed concurrently, using stored token")
			return s.repo.credential(ctx)
		}
		s.logger.LogAttrs(ctx, slog.LevelInfo, "credential refreshed", slog.Time("expiry", next.ExpiresAt))
		return next, nil
	})
	if err != nil {
		if errors.Is(err, strava.ErrUpstream) {
			s.report(ctx, err)
		}
		return Credential{}, err
	}
	if shared {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "shared credential refresh")
	}
	cred, ok := v.(Credential)
	if !ok {
		return Credential{}, errors.New("unexpected refresh result")
	}
	return cred, nil
}

func hint(cred Credential, result Result) string {
	switch {
	case !cred.canReadActivities():
		return "The granted scope lacks activity:read. Reconnect and allow access to activities."
	case result.Fetched == 0 && result.Imported == 0:
		return "No activities found. Check that the account has recent activities, " +
			"and that private ones are shared with activity:read_all."
	default:
		return ""
	}
}
