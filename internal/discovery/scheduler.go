// Package discovery runs the continuous pattern-discovery scheduler: four
// independent timed loops (primary crawl, truth validation, meta-truth
// mining, resource monitor) behind a pause/emergency-stop state machine.
//
// The loops never block each other and share only two passive structures,
// the processed-document set and the truth-validity cache, both of which
// tolerate last-write-wins consistency. Cancellation is cooperative: an
// in-flight iteration finishes; pausing only suppresses future ticks.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oaf-platform/leo/internal/truth"
	"github.com/oaf-platform/leo/internal/vectorstore"
)

// Recorder receives scheduler telemetry. Optional; nil disables recording.
type Recorder interface {
	Record(name string, value float64)
}

// Deps holds the scheduler's collaborators.
type Deps struct {
	Store     vectorstore.Store
	Truths    *truth.Store
	Extractor *truth.Extractor
	Validator *truth.Validator
	Miner     *truth.Miner
	Seen      *truth.SeenSet
	Validity  *truth.ValidityCache
	Sampler   ResourceSampler
	Recorder  Recorder // optional
}

// StartResult reports the outcome of a Start call.
type StartResult struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// Scheduler owns the four discovery loops and their state machine.
type Scheduler struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	state       State
	pauseReason string
	startedAt   time.Time
	resources   ResourceStats
	stats       RunStats

	parentCtx   context.Context
	loopCtx     context.Context
	loopCancel  context.CancelFunc
	wg          sync.WaitGroup
	resumeTimer *time.Timer
	cooldown    *time.Timer
	burst       *time.Timer
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(deps Deps, cfg Config) (*Scheduler, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Truths == nil || deps.Extractor == nil || deps.Validator == nil || deps.Miner == nil {
		return nil, fmt.Errorf("truth pipeline components are required")
	}
	if deps.Seen == nil || deps.Validity == nil {
		return nil, fmt.Errorf("seen set and validity cache are required")
	}
	if deps.Sampler == nil {
		deps.Sampler = NewProcSampler()
	}
	return &Scheduler{
		cfg:   cfg,
		deps:  deps,
		state: StateStopped,
	}, nil
}

// Start transitions Stopped -> Running and spawns the four loops. Calling
// Start on a scheduler that is not stopped is a no-op reporting "already
// running" and never spawns duplicate timers.
func (s *Scheduler) Start(ctx context.Context) StartResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return StartResult{Started: false, Message: "already running"}
	}

	s.parentCtx = ctx
	s.state = StateRunning
	s.pauseReason = ""
	s.startedAt = time.Now()
	s.stats = RunStats{}
	s.spawnLoopsLocked()

	slog.Info("discovery scheduler started",
		"crawl_interval", s.cfg.CrawlInterval,
		"validation_interval", s.cfg.ValidationInterval,
		"meta_interval", s.cfg.MetaInterval,
		"monitor_interval", s.cfg.MonitorInterval)
	return StartResult{Started: true, Message: "discovery started"}
}

// spawnLoopsLocked starts the four loop goroutines. Caller holds s.mu.
func (s *Scheduler) spawnLoopsLocked() {
	s.loopCtx, s.loopCancel = context.WithCancel(s.parentCtx)

	s.wg.Add(4)
	go s.loop("crawl", s.cfg.CrawlInterval, true, s.crawlTick)
	go s.loop("validation", s.cfg.ValidationInterval, true, s.validationTick)
	go s.loop("meta", s.cfg.MetaInterval, true, s.metaTick)
	go s.loop("monitor", s.cfg.MonitorInterval, false, s.monitorTick)
}

// Stop cancels all timers and transitions to Stopped from any state.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.stopTimersLocked()
	if s.loopCancel != nil {
		s.loopCancel()
	}
	s.state = StateStopped
	s.pauseReason = ""
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("discovery scheduler stopped")
}

// Status returns an atomic snapshot of scheduler state.
func (s *Scheduler) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:       s.state,
		PauseReason: s.pauseReason,
		StartedAt:   s.startedAt,
		Resources:   s.resources,
		Stats:       s.stats,
	}
	snap.Stats.TrackedDocuments = s.deps.Seen.Len()
	return snap
}

// State returns just the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// loop runs tick on its own ticker until the loop context is cancelled.
// Gated loops skip ticks unless the scheduler is Running; the monitor is
// ungated so it can keep sampling while Paused.
func (s *Scheduler) loop(name string, interval time.Duration, gated bool, tick func(context.Context)) {
	defer s.wg.Done()

	ctx := s.currentLoopCtx()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if gated && s.State() != StateRunning {
				continue
			}
			s.safeTick(ctx, name, tick)
		}
	}
}

func (s *Scheduler) currentLoopCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopCtx
}

// safeTick isolates loop iterations: a panic in one tick is logged and
// must never kill the process or stop future ticks.
func (s *Scheduler) safeTick(ctx context.Context, name string, tick func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("discovery tick panicked", "loop", name, "panic", r)
		}
	}()
	tick(ctx)
}

// crawlTick pulls a bounded batch from each tracked collection and hands
// unseen documents to truth extraction. A batch that yields enough new
// truths schedules an out-of-band meta pass shortly after.
func (s *Scheduler) crawlTick(ctx context.Context) {
	for _, collection := range s.cfg.TrackedCollections {
		hits, err := s.deps.Store.Sample(ctx, collection, s.cfg.CrawlBatchSize, nil)
		if err != nil {
			slog.Warn("crawl sample failed", "collection", collection, "error", err)
			continue
		}

		docs := make([]vectorstore.Document, 0, len(hits))
		for _, h := range hits {
			meta := make(map[string]string, len(h.Metadata)+1)
			for k, v := range h.Metadata {
				meta[k] = v
			}
			meta["collection"] = collection
			docs = append(docs, vectorstore.Document{ID: h.ID, Content: h.Content, Metadata: meta})
		}

		result := s.deps.Extractor.Extract(ctx, docs, "content crawl: "+collection)

		s.mu.Lock()
		s.stats.DocumentsProcessed += result.DocumentsProcessed
		s.stats.TruthsExtracted += result.TruthsExtracted
		s.mu.Unlock()

		if result.TruthsExtracted >= s.cfg.BurstThreshold {
			s.scheduleBurstMeta()
		}
	}

	s.mu.Lock()
	s.stats.CrawlTicks++
	s.mu.Unlock()
}

// scheduleBurstMeta runs one meta pass after BurstDelay, coalescing
// concurrent requests into a single pending pass.
func (s *Scheduler) scheduleBurstMeta() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.burst != nil {
		return
	}
	slog.Info("truth burst detected, scheduling meta pass", "delay", s.cfg.BurstDelay)
	s.burst = time.AfterFunc(s.cfg.BurstDelay, func() {
		s.mu.Lock()
		s.burst = nil
		ctx := s.loopCtx
		s.mu.Unlock()

		if ctx == nil || s.State() != StateRunning {
			return
		}
		s.safeTick(ctx, "meta-burst", s.metaTick)
	})
}

// validationTick revalidates truths whose validity record is missing or
// stale. Fresh records are skipped without an LLM call.
func (s *Scheduler) validationTick(ctx context.Context) {
	truths, err := s.deps.Truths.All(ctx, s.cfg.ValidationBatch)
	if err != nil {
		slog.Warn("validation read failed", "error", err)
		return
	}

	checked := s.deps.Validator.ValidateDue(ctx, truths)
	if checked > 0 {
		s.mu.Lock()
		s.stats.TruthsValidated += checked
		s.mu.Unlock()
	}
}

// metaTick mines cross-truth correlations over currently-valid truths.
func (s *Scheduler) metaTick(ctx context.Context) {
	truths, err := s.deps.Truths.All(ctx, s.cfg.MiningBatch)
	if err != nil {
		slog.Warn("meta mining read failed", "error", err)
		return
	}

	valid := truths[:0]
	for _, t := range truths {
		if s.deps.Validity.IsValid(t.ID) {
			valid = append(valid, t)
		}
	}

	stored := s.deps.Miner.Mine(ctx, valid)
	if stored > 0 {
		s.mu.Lock()
		s.stats.MetaTruthsStored += stored
		s.mu.Unlock()
	}
}

// monitorTick samples host load and drives the pause/emergency state
// machine. It is the only loop allowed to cancel the others' timers.
func (s *Scheduler) monitorTick(ctx context.Context) {
	cpu, mem, err := s.deps.Sampler.Sample()
	if err != nil {
		slog.Warn("resource sample failed", "error", err)
		return
	}

	multiplier := throttleMultiplier(cpu, mem, s.cfg.CPUSoftLimit, s.cfg.MemorySoftLimit)

	s.mu.Lock()
	s.resources.CPUPercent = cpu
	s.resources.MemoryPercent = mem
	s.resources.ThrottleMultiplier = multiplier
	s.resources.SampledAt = time.Now()
	s.mu.Unlock()

	if s.deps.Recorder != nil {
		s.deps.Recorder.Record("discovery_cpu_percent", cpu)
		s.deps.Recorder.Record("discovery_memory_percent", mem)
		s.deps.Recorder.Record("discovery_throttle_multiplier", multiplier)
	}

	switch {
	case cpu >= s.cfg.CPUEmergencyLimit || mem >= s.cfg.MemEmergencyLimit:
		s.emergencyStop(fmt.Sprintf("resource emergency: cpu %.0f%%, memory %.0f%%", cpu, mem))
	case cpu > s.cfg.CPUSoftLimit || mem > s.cfg.MemorySoftLimit:
		s.pause(fmt.Sprintf("resource pressure: cpu %.0f%%, memory %.0f%%", cpu, mem))
	default:
		// Healthy: resume a paused scheduler before its timer fires.
		s.resume("resources healthy")
	}
}

// pause transitions Running -> Paused and arms the auto-resume timer.
func (s *Scheduler) pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	s.state = StatePaused
	s.pauseReason = reason
	s.resources.PauseCount++

	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
	}
	s.resumeTimer = time.AfterFunc(s.cfg.PauseAutoResume, func() {
		s.resume("auto-resume timer")
	})

	slog.Warn("discovery paused", "reason", reason, "auto_resume", s.cfg.PauseAutoResume)
	if s.deps.Recorder != nil {
		s.deps.Recorder.Record("discovery_paused", 1)
	}
}

// resume transitions Paused -> Running.
func (s *Scheduler) resume(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return
	}
	s.state = StateRunning
	s.pauseReason = ""
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	slog.Info("discovery resumed", "reason", reason)
}

// emergencyStop cancels all four loop timers immediately and arms the
// cooldown timer that later returns the scheduler to a resumable Paused
// state.
func (s *Scheduler) emergencyStop(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateEmergencyStopped || s.state == StateStopped {
		return
	}
	s.state = StateEmergencyStopped
	s.pauseReason = reason
	s.resources.EmergencyCount++
	s.stopTimersLocked()
	if s.loopCancel != nil {
		s.loopCancel()
	}

	s.cooldown = time.AfterFunc(s.cfg.EmergencyCooldown, s.recoverFromEmergency)

	slog.Error("discovery emergency stop", "reason", reason, "cooldown", s.cfg.EmergencyCooldown)
	if s.deps.Recorder != nil {
		s.deps.Recorder.Record("discovery_emergency_stopped", 1)
	}
}

// recoverFromEmergency respawns the loops in a Paused state after the
// cooldown; the normal auto-resume path takes it from there.
func (s *Scheduler) recoverFromEmergency() {
	s.mu.Lock()
	if s.state != StateEmergencyStopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Loops were cancelled at emergency time; let them unwind before
	// respawning. Waiting outside the lock so an in-flight tick that
	// needs it can finish.
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEmergencyStopped {
		return
	}
	s.spawnLoopsLocked()
	s.state = StatePaused
	s.pauseReason = "cooling down after emergency stop"
	s.resumeTimer = time.AfterFunc(s.cfg.PauseAutoResume, func() {
		s.resume("post-emergency auto-resume")
	})

	slog.Info("discovery emergency cooldown complete, paused pending resume")
}

// stopTimersLocked stops every one-shot timer. Caller holds s.mu.
func (s *Scheduler) stopTimersLocked() {
	if s.resumeTimer != nil {
		s.resumeTimer.Stop()
		s.resumeTimer = nil
	}
	if s.cooldown != nil {
		s.cooldown.Stop()
		s.cooldown = nil
	}
	if s.burst != nil {
		s.burst.Stop()
		s.burst = nil
	}
}
