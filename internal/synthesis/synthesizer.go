package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/withleedh/learning-youtube-sub000/internal/config"
	"github.com/withleedh/learning-youtube-sub000/internal/observe"
	"github.com/withleedh/learning-youtube-sub000/internal/retry"
	"github.com/withleedh/learning-youtube-sub000/pkg/audio"
	"github.com/withleedh/learning-youtube-sub000/pkg/manifest"
	"github.com/withleedh/learning-youtube-sub000/pkg/script"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
	"github.com/withleedh/learning-youtube-sub000/pkg/wordsync"
)

// Options configures a Synthesizer. Provider, Cast, Speeds, and OutputDir are
// required; zero values elsewhere fall back to defaults.
type Options struct {
	// Provider performs the actual synthesis calls.
	Provider tts.Provider

	// Cast is the episode's immutable speaker-to-voice assignment.
	Cast Cast

	// Speeds are the presets every sentence is synthesized at, in manifest
	// order.
	Speeds []types.SpeedVariant

	// Mode selects whether word timing is reconstructed. Default: wordsync.
	Mode config.SyncMode

	// OutputDir receives the audio clips.
	OutputDir string

	// Overwrite forces re-synthesis of units whose clip already exists.
	Overwrite bool

	// Concurrency bounds the worker pool. Default: 1 (sequential).
	Concurrency int

	// RequestsPerMinute paces provider calls across all workers. 0 disables
	// pacing.
	RequestsPerMinute int

	// Retry is the per-unit retry policy.
	Retry retry.Config

	// WordsPerMinute feeds the duration estimator. Default: 150.
	WordsPerMinute float64

	// Metrics receives instrumentation. Default: observe.DefaultMetrics().
	Metrics *observe.Metrics

	// RunID tags the manifest and logs.
	RunID string
}

// Synthesizer drives one synthesis run over a script. Create with New, run
// once with Run. Progress is readable concurrently while Run executes.
type Synthesizer struct {
	opts    Options
	limiter *rate.Limiter

	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
}

// New validates opts and returns a ready Synthesizer.
func New(opts Options) (*Synthesizer, error) {
	if opts.Provider == nil {
		return nil, errors.New("synthesis: provider is required")
	}
	if len(opts.Speeds) == 0 {
		return nil, errors.New("synthesis: at least one speed preset is required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("synthesis: output directory is required")
	}
	if opts.Mode == "" {
		opts.Mode = config.ModeWordSync
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.WordsPerMinute <= 0 {
		opts.WordsPerMinute = defaultWordsPerMinute
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}

	s := &Synthesizer{opts: opts}
	if opts.RequestsPerMinute > 0 {
		// Burst of one keeps calls evenly spaced instead of front-loading a
		// minute's worth.
		s.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return s, nil
}

// Progress reports finished-unit counts for the operational endpoint.
func (s *Synthesizer) Progress() (done, failed, total int) {
	return int(s.done.Load()), int(s.failed.Load()), int(s.total.Load())
}

// unit is one (sentence, speed) work item.
type unit struct {
	sentencePos int
	speedPos    int
	sentence    script.Sentence
	speed       types.SpeedVariant
	voice       types.VoiceProfile
}

// unitResult is the terminal record of one unit. resolved is false only when
// run cancellation ended the unit before it could succeed or fail.
type unitResult struct {
	resolved bool
	skipped  bool
	entry    *manifest.Entry
	attempts int
	err      error
}

// FailedUnit describes one unit that exhausted its attempts, for the failure
// report written beside the manifest.
type FailedUnit struct {
	SentenceID int    `json:"sentence_id"`
	Speaker    string `json:"speaker"`
	Speed      string `json:"speed"`
	Attempts   int    `json:"attempts"`
	Error      string `json:"error"`
}

// Summary is the aggregate outcome of one run.
type Summary struct {
	// Total is the number of units the script expanded to.
	Total int

	// Synthesized counts units completed with a fresh provider call.
	Synthesized int

	// Skipped counts units that reused an existing clip.
	Skipped int

	// Failed lists the units that exhausted their attempts.
	Failed []FailedUnit

	// Elapsed is the wall-clock run time.
	Elapsed time.Duration
}

// Run synthesizes every (sentence, speed) unit of scr and returns the ordered
// manifest along with the run summary.
//
// A unit that exhausts its attempts is recorded in the summary and blocks
// nothing else; its sentence's other variants still reach the manifest.
// Cancellation is stricter: the manifest then covers exactly the sentences
// whose units all reached a terminal state first, and Run returns the
// context's error alongside that partial manifest.
func (s *Synthesizer) Run(ctx context.Context, scr *script.Script) (*manifest.Manifest, *Summary, error) {
	start := time.Now()

	units, err := s.buildUnits(scr)
	if err != nil {
		return nil, nil, err
	}
	s.total.Store(int64(len(units)))
	s.done.Store(0)
	s.failed.Store(0)

	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("synthesis: create output dir: %w", err)
	}

	slog.Info("synthesis run starting",
		"run_id", s.opts.RunID,
		"provider", s.opts.Provider.Name(),
		"sentences", len(scr.Sentences),
		"speeds", len(s.opts.Speeds),
		"units", len(units),
		"concurrency", s.opts.Concurrency,
	)

	results := make([]unitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.runUnit(gctx, u)
			return nil
		})
	}
	// Unit failures live in results; only cancellation surfaces here.
	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	sum := &Summary{Total: len(units)}
	for i, u := range units {
		r := results[i]
		switch {
		case !r.resolved:
			// Ended by cancellation before a verdict.
		case r.err != nil:
			sum.Failed = append(sum.Failed, FailedUnit{
				SentenceID: u.sentence.ID,
				Speaker:    u.sentence.Speaker,
				Speed:      u.speed.Label,
				Attempts:   r.attempts,
				Error:      r.err.Error(),
			})
		case r.skipped:
			sum.Skipped++
		default:
			sum.Synthesized++
		}
	}

	b := manifest.NewBuilder(string(s.opts.Mode), s.opts.RunID)
	nspeeds := len(s.opts.Speeds)
	for si := range scr.Sentences {
		complete := true
		for pi := 0; pi < nspeeds; pi++ {
			if !results[si*nspeeds+pi].resolved {
				complete = false
				break
			}
		}
		if !complete {
			// The sentence stays out of the manifest entirely rather than
			// appearing half-done.
			continue
		}
		for pi := 0; pi < nspeeds; pi++ {
			if r := results[si*nspeeds+pi]; r.entry != nil {
				b.Add(si, pi, *r.entry)
			}
		}
	}

	m := b.Build()
	sum.Elapsed = time.Since(start)

	slog.Info("synthesis run finished",
		"run_id", s.opts.RunID,
		"synthesized", sum.Synthesized,
		"skipped", sum.Skipped,
		"failed", len(sum.Failed),
		"entries", len(m.Entries),
		"total_duration_s", m.TotalDuration,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
	)

	return m, sum, runErr
}

// buildUnits expands the script into its (sentence, speed) grid, resolving
// each sentence's cast voice up front so a miscast script fails before any
// provider call.
func (s *Synthesizer) buildUnits(scr *script.Script) ([]unit, error) {
	units := make([]unit, 0, len(scr.Sentences)*len(s.opts.Speeds))
	for si, sent := range scr.Sentences {
		voice, ok := s.opts.Cast.Voice(sent.Speaker)
		if !ok {
			return nil, fmt.Errorf("synthesis: sentence %d speaker %q is not in the cast", sent.ID, sent.Speaker)
		}
		for pi, sp := range s.opts.Speeds {
			units = append(units, unit{
				sentencePos: si,
				speedPos:    pi,
				sentence:    sent,
				speed:       sp,
				voice:       voice,
			})
		}
	}
	return units, nil
}

// runUnit takes one unit to a terminal state: reused, synthesized, or failed.
func (s *Synthesizer) runUnit(ctx context.Context, u unit) unitResult {
	name := s.opts.Provider.Name()
	caps := s.opts.Provider.Capabilities()

	if !s.opts.Overwrite {
		if r := s.reuseExisting(ctx, u); r != nil {
			return *r
		}
	}

	wantSync := s.opts.Mode == config.ModeWordSync
	marked := wantSync && caps.Timepoints

	var (
		reqText string
		wordMap []wordsync.WordMapEntry
	)
	if wantSync {
		ssml, wm := wordsync.InjectMarks(u.sentence.Text)
		wordMap = wm
		if marked {
			reqText = ssml
		} else {
			reqText = u.sentence.Text
		}
	} else {
		reqText = u.sentence.Text
	}

	req := tts.Request{
		Text:   reqText,
		Marked: marked,
		Voice:  u.voice,
		Rate:   u.speed.Rate,
	}

	cfg := s.opts.Retry
	cfg.Notify = func(n retry.Notice) {
		s.opts.Metrics.RecordRetry(ctx, name)
		if n.Kind == tts.KindQuota {
			s.opts.Metrics.RecordKeyRotation(ctx, name)
		}
		slog.Warn("attempt failed, backing off",
			"sentence", u.sentence.ID,
			"speed", u.speed.Label,
			"attempt", n.Attempt,
			"max_attempts", n.MaxAttempts,
			"kind", n.Kind.String(),
			"delay", n.Delay,
			"err", n.Err,
		)
	}

	res, outcome := retry.Do(ctx, cfg, func(actx context.Context) (*tts.Result, error) {
		if s.limiter != nil {
			if err := s.limiter.Wait(actx); err != nil {
				return nil, err
			}
		}
		s.opts.Metrics.ActiveSynthesis.Add(actx, 1)
		callStart := time.Now()
		r, err := s.opts.Provider.Synthesize(actx, req)
		s.opts.Metrics.ActiveSynthesis.Add(actx, -1)
		s.opts.Metrics.SynthesisDuration.Record(actx, time.Since(callStart).Seconds(),
			metric.WithAttributes(observe.Attr("provider", name)))
		if err != nil {
			kind, _ := tts.KindOf(err)
			s.opts.Metrics.RecordProviderRequest(actx, name, "error")
			s.opts.Metrics.RecordProviderError(actx, name, kind.String())
			return nil, err
		}
		s.opts.Metrics.RecordProviderRequest(actx, name, "ok")
		return r, nil
	})

	if outcome.State != retry.StateSucceeded {
		// Cancellation ends the unit without a verdict; its sentence must not
		// reach the manifest half-done.
		if ctx.Err() != nil && errors.Is(outcome.Err, ctx.Err()) {
			return unitResult{}
		}
		return s.failUnit(ctx, u, outcome.Attempts, outcome.Err)
	}

	path := s.clipPath(u, res.Format)
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		return s.failUnit(ctx, u, outcome.Attempts, fmt.Errorf("synthesis: write clip %q: %w", path, err))
	}

	duration := s.variantDuration(u, func() (float64, error) {
		return audio.Duration(res.Audio, res.Format)
	})

	var words []types.WordSync
	if wantSync {
		words = wordsync.Reconcile(wordMap, res.Timepoints, duration)
	}

	entry := &manifest.Entry{
		SentenceID: u.sentence.ID,
		Text:       u.sentence.Text,
		Speaker:    u.sentence.Speaker,
		Audio: manifest.AudioFile{
			SentenceID: u.sentence.ID,
			Speaker:    u.sentence.Speaker,
			Speed:      u.speed.Label,
			Path:       path,
			Duration:   duration,
		},
		Words: words,
	}

	s.opts.Metrics.AudioSeconds.Record(ctx, duration,
		metric.WithAttributes(observe.Attr("speed", u.speed.Label)))
	s.opts.Metrics.RecordUnit(ctx, "ok")
	finished := s.done.Add(1) + s.failed.Load()
	slog.Info("unit synthesized",
		"progress", fmt.Sprintf("[%d/%d]", finished, s.total.Load()),
		"sentence", u.sentence.ID,
		"speaker", u.sentence.Speaker,
		"speed", u.speed.Label,
		"duration_s", duration,
		"attempts", outcome.Attempts,
	)

	return unitResult{resolved: true, entry: entry, attempts: outcome.Attempts}
}

// reuseExisting returns a completed result when a clip for u already sits in
// the output directory. Duration is measured from the file; word timing falls
// back to uniform estimates since no timepoints exist for audio that was not
// synthesized this run.
func (s *Synthesizer) reuseExisting(ctx context.Context, u unit) *unitResult {
	var path string
	for _, format := range []tts.AudioFormat{tts.FormatMP3, tts.FormatWAV} {
		p := s.clipPath(u, format)
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil
	}

	duration := s.variantDuration(u, func() (float64, error) {
		return audio.DurationFile(path)
	})

	var words []types.WordSync
	if s.opts.Mode == config.ModeWordSync {
		_, wordMap := wordsync.InjectMarks(u.sentence.Text)
		words = wordsync.Reconcile(wordMap, nil, duration)
	}

	entry := &manifest.Entry{
		SentenceID: u.sentence.ID,
		Text:       u.sentence.Text,
		Speaker:    u.sentence.Speaker,
		Audio: manifest.AudioFile{
			SentenceID: u.sentence.ID,
			Speaker:    u.sentence.Speaker,
			Speed:      u.speed.Label,
			Path:       path,
			Duration:   duration,
		},
		Words: words,
	}

	s.opts.Metrics.RecordUnit(ctx, "skipped")
	finished := s.done.Add(1) + s.failed.Load()
	slog.Info("unit reused",
		"progress", fmt.Sprintf("[%d/%d]", finished, s.total.Load()),
		"sentence", u.sentence.ID,
		"speaker", u.sentence.Speaker,
		"speed", u.speed.Label,
		"path", path,
	)

	return &unitResult{resolved: true, skipped: true, entry: entry}
}

// failUnit records a terminal failure for u.
func (s *Synthesizer) failUnit(ctx context.Context, u unit, attempts int, err error) unitResult {
	s.failed.Add(1)
	s.opts.Metrics.RecordUnit(ctx, "failed")
	slog.Error("unit failed",
		"sentence", u.sentence.ID,
		"speaker", u.sentence.Speaker,
		"speed", u.speed.Label,
		"attempts", attempts,
		"err", err,
	)
	return unitResult{resolved: true, attempts: attempts, err: err}
}

// variantDuration decides the duration recorded for a unit. A clip from a
// native-rate provider, or any clip at normal speed, is measured; otherwise
// the stored audio plays at normal speed and the renderer stretches it, so
// the variant's length comes from the estimator.
func (s *Synthesizer) variantDuration(u unit, measure func() (float64, error)) float64 {
	caps := s.opts.Provider.Capabilities()
	if caps.NativeRate || u.speed.Rate == 1.0 {
		d, err := measure()
		if err == nil {
			return d
		}
		slog.Warn("duration measurement failed, estimating",
			"sentence", u.sentence.ID,
			"speed", u.speed.Label,
			"err", err,
		)
	}
	return EstimateSeconds(u.sentence.Text, s.opts.WordsPerMinute, u.speed.Rate)
}

// clipPath builds the deterministic output filename for a unit:
// <dir>/<sentenceID>_<speaker-slug>_<speed>.<ext>. Re-runs land on the same
// path so overwriting is idempotent.
func (s *Synthesizer) clipPath(u unit, format tts.AudioFormat) string {
	name := fmt.Sprintf("%d_%s_%s.%s", u.sentence.ID, slug(u.sentence.Speaker), u.speed.Label, format)
	return filepath.Join(s.opts.OutputDir, name)
}

// slug lowercases s and keeps only letters, digits, and hyphens so speaker
// tags are safe in filenames.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "speaker"
	}
	return b.String()
}

// WriteFailureReport persists failed as indented JSON at path, beside the
// manifest, so the renderer can surface what is missing.
func WriteFailureReport(path string, failed []FailedUnit) error {
	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("synthesis: marshal failure report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("synthesis: write failure report %q: %w", path, err)
	}
	return nil
}
