package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/yamadera/torii/internal/srs"
)

// ConfigSource yields the gating configuration a pass runs under. The
// engine re-reads it at the start of every pass so edits take effect on
// the next run without a restart.
type ConfigSource interface {
	GatingConfig(ctx context.Context) (*srs.Config, error)
}

// Engine computes and applies gating passes over a card collection.
//
// A pass is the unit of atomicity: read one snapshot, resolve every
// selected gate against it, merge the verdicts, write the delta. The
// engine never mutates state outside RunPass, and RunPass serializes
// internally, so two concurrent callers cannot interleave reads and
// writes of the same collection.
//
// Thread-safety model:
//   - RunPass(): safe from any goroutine; passes run one at a time.
//   - Everything else is read-only configuration set at construction.
//
// Coalescing of redundant triggers is layered on top by Runner; the
// engine itself runs exactly what it is asked to run.
type Engine struct {
	coll    Collection
	oracle  StabilityOracle
	source  ConfigSource
	tokens  PassTokenGenerator
	lookup  RelationLookup // nil means per-pass snapshot lookup
	matcher ExampleMatcher
	seq     *Clock

	mu sync.Mutex // serializes passes
}

// EngineOption configures optional engine collaborators.
type EngineOption func(*Engine)

// WithTokenGenerator overrides pass token generation. Tests use
// NewFixedGenerator for stable tokens in golden output.
func WithTokenGenerator(g PassTokenGenerator) EngineOption {
	return func(e *Engine) {
		e.tokens = g
	}
}

// WithRelationLookup overrides how relation members are resolved. The
// default rebuilds an exact-match index from each pass's snapshot.
func WithRelationLookup(l RelationLookup) EngineOption {
	return func(e *Engine) {
		e.lookup = l
	}
}

// WithMatcher overrides the example matcher. The default resolves by
// exact key-field equality; richer matchers (tokenizers, reading
// fallbacks) plug in here.
func WithMatcher(m ExampleMatcher) EngineOption {
	return func(e *Engine) {
		e.matcher = m
	}
}

// WithPassClock seeds the pass sequence counter, for hosts that persist
// it across restarts.
func WithPassClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.seq = c
	}
}

// New creates an Engine over a collection, a stability oracle and a
// configuration source.
func New(coll Collection, oracle StabilityOracle, source ConfigSource, opts ...EngineOption) *Engine {
	e := &Engine{
		coll:    coll,
		oracle:  oracle,
		source:  source,
		tokens:  UUIDv7Generator{},
		matcher: KeyFieldMatcher{},
		seq:     NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// passContext is the working state of one pass: the snapshot everything
// reads from and the accumulators everything writes to. It never
// outlives RunPass.
type passContext struct {
	token     string
	cfg       *srs.Config
	snap      *Snapshot
	report    *PassReport
	decisions *DecisionSet

	// stagedTypes holds only note-types whose stage definitions passed
	// validation; resolvers treat absence as "not staged".
	stagedTypes map[string][]srs.StageDef

	// marks accumulates sticky unlock tags per note, deduplicated.
	marks map[srs.NoteID]map[string]bool
}

func (p *passContext) mark(id srs.NoteID, tag string) {
	if p.marks[id] == nil {
		p.marks[id] = make(map[string]bool)
	}
	p.marks[id][tag] = true
}

func (p *passContext) markList() []NoteMark {
	out := make([]NoteMark, 0, len(p.marks))
	for id, tags := range p.marks {
		m := NoteMark{Note: id}
		for tag := range tags {
			m.Tags = append(m.Tags, tag)
		}
		out = append(out, m)
	}
	sortMarks(out)
	return out
}

// RunPass executes one gating pass and returns its report. The report
// is populated as far as the pass got, including on error: a failed
// apply still reports the plan and the durable prefix.
//
// Cancellation is clean by construction: decisions live in memory until
// the apply step, so a pass cancelled before it is a pure no-op.
func (e *Engine) RunPass(ctx context.Context, opts PassOptions) (*PassReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts = opts.normalized()
	token := e.tokens.Generate()
	report := &PassReport{Token: token, Seq: e.seq.Next(), Trigger: opts.Trigger}

	slog.Info("pass starting",
		"pass", token,
		"seq", report.Seq,
		"trigger", string(opts.Trigger),
		"dry_run", opts.DryRun,
	)

	cfg, err := e.source.GatingConfig(ctx)
	if err != nil {
		return report, fmt.Errorf("load gating config: %w", err)
	}
	if !opts.Force && !enabledFor(cfg, opts.Trigger) {
		report.Skipped = true
		slog.Info("pass skipped", "pass", token, "trigger", string(opts.Trigger))
		return report, nil
	}

	snap, err := BuildSnapshot(ctx, e.coll, e.oracle, snapshotScope(cfg, opts.Gates))
	if err != nil {
		return report, err
	}

	pass := &passContext{
		token:       token,
		cfg:         cfg,
		snap:        snap,
		report:      report,
		decisions:   NewDecisionSet(),
		stagedTypes: make(map[string][]srs.StageDef),
		marks:       make(map[srs.NoteID]map[string]bool),
	}

	// Validate stage definitions up front. A bad chain rejects its
	// note-type, not the pass: cards of rejected note-types keep their
	// current state and the error lands in the report.
	noteTypes := make([]string, 0, len(cfg.Stages))
	for nt := range cfg.Stages {
		noteTypes = append(noteTypes, nt)
	}
	sort.Strings(noteTypes)
	for _, nt := range noteTypes {
		if ge := validateStageDefs(nt, cfg.Stages[nt]); ge != nil {
			ge.PassToken = token
			report.ScopeErrors = append(report.ScopeErrors, ge)
			continue
		}
		pass.stagedTypes[nt] = cfg.Stages[nt]
	}

	if err := e.runGates(ctx, pass, opts.Gates); err != nil {
		if ctx.Err() != nil {
			return report, NewCancelledError(token, err)
		}
		return report, err
	}

	report.Plan = pass.decisions.Plan(snap)
	report.Marks = pass.markList()
	fillCounters(report)

	if opts.DryRun {
		report.DryRun = true
		slog.Info("pass planned", "pass", token, "changes", len(report.Plan), "marks", len(report.Marks))
		return report, nil
	}

	exec := newGateExecutor(e.coll, cfg.ApplyChunkSize)
	applied, err := exec.Apply(ctx, report.Plan)
	report.Applied = applied
	if err != nil {
		return report, err
	}

	if len(report.Marks) > 0 {
		tags := make(map[srs.NoteID][]string, len(report.Marks))
		for _, m := range report.Marks {
			tags[m.Note] = m.Tags
		}
		n, err := e.coll.AddNoteTags(ctx, tags)
		if err != nil {
			return report, fmt.Errorf("apply sticky marks: %w", err)
		}
		report.Counters.NotesMarked = n
	}

	// Optional read-back verification. A verification failure never
	// fails the pass: the writes are already durable, the read-back is
	// advisory.
	if cfg.Debug.VerifyApply {
		verified, diags, err := exec.Verify(ctx, report.Plan)
		if err != nil {
			slog.Warn("apply verification failed to read back", "pass", token, "error", err)
		} else {
			applied.Verified = verified
			applied.Mismatched = len(diags)
			for _, d := range diags {
				report.addDiag(d)
			}
		}
	}

	slog.Info("pass applied",
		"pass", token,
		"suspended", applied.Suspended,
		"unsuspended", applied.Unsuspended,
		"marked", report.Counters.NotesMarked,
	)
	return report, nil
}

// runGates runs the selected resolvers in fixed order against one
// passContext. Order matters only for diagnostics and mark emission;
// decisions merge commutatively because suspension wins.
func (e *Engine) runGates(ctx context.Context, pass *passContext, gates GateSelection) error {
	if gates.Family && len(pass.stagedTypes) > 0 {
		lookup := e.lookup
		if lookup == nil {
			lookup = newSnapshotLookup(pass.snap, pass.cfg)
		}
		if err := newFamilyResolver(pass, lookup).run(ctx); err != nil {
			return err
		}
	}

	if gates.Components {
		for _, scope := range pass.cfg.Components {
			cs, ge := buildComponentScope(pass, scope)
			if ge != nil {
				ge.PassToken = pass.token
				pass.report.ScopeErrors = append(pass.report.ScopeErrors, ge)
				slog.Warn("component scope rejected",
					"pass", pass.token,
					"scope", scope.Name,
					"error", ge,
				)
				continue
			}
			if err := cs.run(ctx); err != nil {
				return err
			}
		}
	}

	if gates.Examples {
		for _, scope := range pass.cfg.Examples {
			if err := runExampleGate(ctx, pass, e.matcher, scope); err != nil {
				return err
			}
		}
	}

	return nil
}

// fillCounters derives the plan-level counts. SuspendedBy counts each
// contributing gate, so its sum can exceed Suspended when verdicts
// overlap.
func fillCounters(report *PassReport) {
	for _, ch := range report.Plan {
		if !ch.To.Suspended() {
			report.Counters.Unsuspended++
			continue
		}
		report.Counters.Suspended++
		for _, reason := range ch.Reasons {
			report.Counters.countSuspendedBy(reason)
		}
	}
	report.Counters.NotesMarked = len(report.Marks)
}
