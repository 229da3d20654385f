// Package update runs the periodic fetch, parse and apply cycle.
package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"raspisanie/internal/eventbus"
	"raspisanie/internal/fetch"
	"raspisanie/internal/ingest"
	"raspisanie/internal/parsing"
	"raspisanie/internal/runtime/supervisor"
	logx "raspisanie/pkg/logx"
)

// Fingerprint keys.
const (
	KeyTimetable    = "timetable"
	KeyCallSchedule = "call-schedule"
	KeyCafeteria    = "cafeteria"
)

const (
	DefaultSchedule       = "10m"
	DefaultRetryDelay     = 30 * time.Second
	DefaultFetchTimeout   = 30 * time.Second
	DefaultCallsLabel     = "расписание звонков"
	DefaultCafeteriaLabel = "график питания студентов в столовой"

	// EventCycle is published on the bus after every cycle.
	EventCycle = "update.cycle"
)

// Cycle results.
const (
	ResultOK        = "ok"
	ResultUnchanged = "unchanged"
	ResultError     = "error"
	// ResultPartial: the timetable applied but a linked document failed. The
	// timetable fingerprint is withheld so the next cycle retries.
	ResultPartial = "partial"
)

var (
	ErrStarted     = errors.New("update service already started")
	ErrSubdocument = errors.New("sub-document failed")
)

type State int32

const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateApplying
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateApplying:
		return "applying"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Config struct {
	TimetableURL string
	Schedule     string
	RetryDelay   time.Duration
	FetchTimeout time.Duration
	ForceOnStart bool
	// Cafeteria enables the cafeteria sub-document.
	Cafeteria      bool
	CallsLabel     string
	CafeteriaLabel string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = DefaultSchedule
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if strings.TrimSpace(c.CallsLabel) == "" {
		c.CallsLabel = DefaultCallsLabel
	}
	if strings.TrimSpace(c.CafeteriaLabel) == "" {
		c.CafeteriaLabel = DefaultCafeteriaLabel
	}
	return c
}

// FingerprintStore reads durable document fingerprints.
type FingerprintStore interface {
	Fingerprint(ctx context.Context, key string) (sum string, ok bool, err error)
}

// Observer receives cycle outcomes. Implemented by the metrics package.
type Observer interface {
	CycleFinished(result string, took time.Duration)
	Unparsable(unit string)
	SubdocumentFailed(key string)
	Applied(stats ingest.Stats)
}

type Deps struct {
	Fetcher      fetch.Fetcher
	Parser       *parsing.Parser
	Sink         ingest.Sink
	Fingerprints FingerprintStore
	Log          logx.Logger
	Bus          eventbus.Bus
	Observer     Observer
	Now          func() time.Time
}

// CycleResult describes one finished cycle.
type CycleResult struct {
	ID     string
	Result string
	Forced bool
	Took   time.Duration
	Stats  ingest.Stats
	Err    error
}

// Snapshot is a point-in-time view for status output.
type Snapshot struct {
	State       State
	Schedule    string
	Cycles      uint64
	LastCycleID string
	LastResult  string
	LastRun     time.Time
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
	NextRun     time.Time
	Fingerprint string
	LastStats   ingest.Stats
}

// Service owns the single background update worker.
type Service struct {
	deps Deps
	log  logx.Logger
	now  func() time.Time

	mu     sync.Mutex
	cfg    Config
	sched  Schedule
	snap   Snapshot
	parser *parsing.Parser
	sink   ingest.Sink

	runMu     sync.Mutex // one cycle at a time
	timer     Timer
	force     atomic.Bool
	state     atomic.Int32
	sup       *supervisor.Supervisor
	cancelCur context.CancelFunc
}

func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Fetcher == nil || deps.Parser == nil || deps.Sink == nil || deps.Fingerprints == nil {
		return nil, errors.New("update: fetcher, parser, sink and fingerprint store are required")
	}
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.TimetableURL) == "" {
		return nil, errors.New("update: timetable url is required")
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		deps:  deps,
		log:   log.With(logx.String("comp", "update")),
		now:   now,
		cfg:    cfg,
		sched:  sched,
		parser: deps.Parser,
		sink:   deps.Sink,
	}
	s.snap.Schedule = sched.String()
	return s, nil
}

// Apply swaps the runtime configuration. A pending sleep is recomputed.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	changed := s.sched.String() != sched.String() || s.cfg.RetryDelay != cfg.RetryDelay
	s.cfg = cfg
	s.sched = sched
	s.snap.Schedule = sched.String()
	s.mu.Unlock()
	if changed {
		s.timer.Cancel()
	}
	return nil
}

// SetPipeline swaps the parser and sink used from the next cycle on.
func (s *Service) SetPipeline(p *parsing.Parser, sink ingest.Sink) {
	if p == nil || sink == nil {
		return
	}
	s.mu.Lock()
	s.parser, s.sink = p, sink
	s.mu.Unlock()
}

func (s *Service) pipeline() (*parsing.Parser, ingest.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parser, s.sink
}

func (s *Service) config() (Config, Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.sched
}

func (s *Service) State() State { return State(s.state.Load()) }

func (s *Service) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.State = s.State()
	return snap
}

// Start launches the background worker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return ErrStarted
	}
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	sup := s.sup
	s.mu.Unlock()

	if cfg, _ := s.config(); cfg.ForceOnStart {
		s.force.Store(true)
	}
	sup.Go0("update.loop", s.loop)
	return nil
}

// Stop ends the worker. A cycle in progress finishes unless cancelCurrent is
// set, in which case its fetch and parse are cancelled; an apply already
// running always completes.
func (s *Service) Stop(ctx context.Context, cancelCurrent bool) error {
	s.mu.Lock()
	sup := s.sup
	cancel := s.cancelCur
	s.mu.Unlock()
	if sup == nil {
		s.setState(StateStopped)
		return nil
	}
	sup.Cancel()
	s.timer.Cancel()
	if cancelCurrent && cancel != nil {
		cancel()
	}
	err := sup.Wait(ctx)
	s.setState(StateStopped)
	return err
}

// ForceUpdate wakes the worker and makes the next cycle ignore fingerprints.
func (s *Service) ForceUpdate() {
	s.force.Store(true)
	n := s.timer.Cancel()
	s.log.Info("forced update requested", logx.Int("woken", n))
}

func (s *Service) loop(ctx context.Context) {
	defer s.setState(StateStopped)
	for ctx.Err() == nil {
		res, _ := s.runCycle(ctx, false)
		for {
			mark := s.timer.Mark()
			delay := s.nextDelay(res.Err != nil)
			s.mu.Lock()
			s.snap.NextRun = s.now().Add(delay)
			s.mu.Unlock()

			s.setState(StateSleeping)
			if s.timer.SleepSince(ctx, mark, delay) {
				break
			}
			if ctx.Err() != nil {
				return
			}
			if s.force.Load() {
				break
			}
			// Woken by a config change; recompute the delay.
		}
	}
}

func (s *Service) nextDelay(failed bool) time.Duration {
	if s.force.Load() {
		return 0
	}
	cfg, sched := s.config()
	if failed {
		return cfg.RetryDelay
	}
	now := s.now()
	d := sched.Next(now).Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

// RunOnce runs a single cycle now. Errors are recorded in the snapshot and
// returned; the worker loop ignores them apart from scheduling a retry.
func (s *Service) RunOnce(ctx context.Context, force bool) (CycleResult, error) {
	return s.runCycle(ctx, force)
}

func (s *Service) runCycle(parent context.Context, force bool) (CycleResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	force = s.force.Swap(false) || force
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.mu.Lock()
	s.cancelCur = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelCur = nil
		s.mu.Unlock()
	}()
	// Shutdown without cancelCurrent lets the cycle finish; a parent that is
	// already done before the cycle starts skips it.
	if err := parent.Err(); err != nil {
		return CycleResult{Result: ResultError, Err: err}, err
	}

	res := CycleResult{ID: uuid.NewString(), Forced: force}
	log := s.log.With(logx.String("cycle", res.ID))
	start := s.now()
	s.mu.Lock()
	s.snap.LastRun = start
	s.snap.LastCycleID = res.ID
	s.mu.Unlock()

	log.Debug("cycle started", logx.Bool("force", force))
	stats, result, err := s.cycle(ctx, log, force)
	s.setState(StateIdle)

	res.Result = result
	res.Stats = stats
	res.Err = err
	res.Took = s.now().Sub(start)
	s.finish(log, res)
	return res, err
}

func (s *Service) finish(log logx.Logger, res CycleResult) {
	applied := res.Result == ResultOK || res.Result == ResultPartial
	s.mu.Lock()
	s.snap.Cycles++
	s.snap.LastResult = res.Result
	if res.Err != nil {
		s.snap.LastError = res.Err.Error()
		s.snap.LastErrorAt = s.now()
	} else {
		s.snap.LastSuccess = s.now()
	}
	if applied {
		s.snap.LastStats = res.Stats
	}
	s.mu.Unlock()

	switch {
	case res.Result == ResultPartial:
		log.Warn("update cycle applied partially; retrying", append(res.Stats.Fields(), logx.Err(res.Err), logx.Duration("took", res.Took))...)
	case res.Err != nil:
		log.Error("update cycle failed", logx.Err(res.Err), logx.Duration("took", res.Took))
	case res.Result == ResultOK:
		log.Info("update cycle applied", append(res.Stats.Fields(), logx.Duration("took", res.Took))...)
	default:
		log.Debug("timetable unchanged", logx.Duration("took", res.Took))
	}
	if o := s.deps.Observer; o != nil {
		o.CycleFinished(res.Result, res.Took)
		if applied {
			o.Applied(res.Stats)
		}
	}
	if b := s.deps.Bus; b != nil {
		b.Publish(eventbus.Event{Type: EventCycle, Data: res})
	}
}

func (s *Service) cycle(ctx context.Context, log logx.Logger, force bool) (ingest.Stats, string, error) {
	cfg, _ := s.config()
	parser, sink := s.pipeline()

	s.setState(StateFetching)
	doc, err := s.fetch(ctx, cfg, cfg.TimetableURL)
	if err != nil {
		return ingest.Stats{}, ResultError, err
	}
	sum := Sum(doc.Body)
	prev, ok, err := s.deps.Fingerprints.Fingerprint(ctx, KeyTimetable)
	if err != nil {
		return ingest.Stats{}, ResultError, fmt.Errorf("read fingerprint: %w", err)
	}
	s.mu.Lock()
	s.snap.Fingerprint = prev
	s.mu.Unlock()
	if ok && prev == sum && !force {
		return ingest.Stats{}, ResultUnchanged, nil
	}

	s.setState(StateParsing)
	var main ingest.Batch
	if err := parser.ParseTimetable(bytes.NewReader(doc.Body), doc.ContentType, &main); err != nil {
		return ingest.Stats{}, ResultError, fmt.Errorf("parse timetable: %w", err)
	}
	s.countUnparsable(&main)

	subs := s.subdocuments(ctx, log, cfg, parser, doc.URL, &main, force)

	s.setState(StateApplying)
	events := append([]ingest.Event(nil), main.Events...)
	fingerprints := map[string]string{KeyTimetable: sum}
	var failed []string
	for _, sd := range subs {
		if sd.err != nil {
			failed = append(failed, sd.key)
			continue
		}
		if sd.batch == nil {
			continue
		}
		events = append(events, sd.batch.Events...)
		fingerprints[sd.key] = sd.sum
	}
	if len(failed) > 0 {
		delete(fingerprints, KeyTimetable)
	}
	stats, err := sink.Apply(context.WithoutCancel(ctx), events, fingerprints)
	if err != nil {
		return ingest.Stats{}, ResultError, fmt.Errorf("apply: %w", err)
	}
	if len(failed) > 0 {
		return stats, ResultPartial, fmt.Errorf("%w: %s", ErrSubdocument, strings.Join(failed, ", "))
	}
	s.mu.Lock()
	s.snap.Fingerprint = sum
	s.mu.Unlock()
	return stats, ResultOK, nil
}

func (s *Service) fetch(ctx context.Context, cfg Config, url string) (fetch.Document, error) {
	fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	return s.deps.Fetcher.Fetch(fctx, url)
}

type subdoc struct {
	key   string
	label string
	batch *ingest.Batch
	sum   string
	err   error
}

// subdocuments fetches and parses the linked documents concurrently.
// A failing sub-document is logged and recorded on its subdoc; the others
// still apply.
func (s *Service) subdocuments(ctx context.Context, log logx.Logger, cfg Config, parser *parsing.Parser, base string, main *ingest.Batch, force bool) []*subdoc {
	wanted := []*subdoc{{key: KeyCallSchedule, label: cfg.CallsLabel}}
	if cfg.Cafeteria {
		wanted = append(wanted, &subdoc{key: KeyCafeteria, label: cfg.CafeteriaLabel})
	}

	var g errgroup.Group
	for _, sd := range wanted {
		link, ok := main.FindLink(sd.label)
		if !ok {
			log.Warn("sub-document link missing", logx.String("doc", sd.key), logx.String("label", sd.label))
			continue
		}
		g.Go(func() error {
			if err := s.subdocument(ctx, cfg, parser, base, link.Href, sd, force); err != nil {
				sd.err = err
				log.Warn("sub-document skipped", logx.String("doc", sd.key), logx.String("href", link.Href), logx.Err(err))
				if o := s.deps.Observer; o != nil {
					o.SubdocumentFailed(sd.key)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return wanted
}

func (s *Service) subdocument(ctx context.Context, cfg Config, parser *parsing.Parser, base, href string, sd *subdoc, force bool) error {
	url, err := fetch.Resolve(base, href)
	if err != nil {
		return &parsing.UnparsableError{Unit: parsing.UnitLink, Value: href, Err: err}
	}
	doc, err := s.fetch(ctx, cfg, url)
	if err != nil {
		return err
	}
	sum := Sum(doc.Body)
	if prev, ok, err := s.deps.Fingerprints.Fingerprint(ctx, sd.key); err == nil && ok && prev == sum && !force {
		return nil
	}

	b := &ingest.Batch{}
	switch sd.key {
	case KeyCallSchedule:
		err = parser.ParseCallSchedule(bytes.NewReader(doc.Body), doc.ContentType, b)
	case KeyCafeteria:
		var pages []parsing.Page
		if pages, err = parsing.PDFPages(doc.Body); err == nil {
			err = parser.ParseCafeteria(pages, b)
		}
	}
	if err != nil {
		return err
	}
	s.countUnparsable(b)
	sd.batch = b
	sd.sum = sum
	return nil
}

func (s *Service) countUnparsable(b *ingest.Batch) {
	o := s.deps.Observer
	if o == nil {
		return
	}
	for _, u := range b.Issues {
		o.Unparsable(u.Unit)
	}
}

// Sum is the document fingerprint: hex SHA-256 of the raw bytes.
func Sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
