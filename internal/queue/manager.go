// Package queue admits download jobs, runs them with bounded concurrency and
// keeps a registry of their state until it is pruned.
package queue

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/history"
)

var (
	ErrNotFound        = errors.New("download not found")
	ErrAlreadyTerminal = errors.New("download already finished")
	ErrAlreadyStarted  = errors.New("queue already started")
)

const (
	failedNoDetail = "Download failed (check logs)."

	// Progress above this counts as post-processing.
	processingThreshold = 90.0
)

// Message types broadcast to websocket clients.
const (
	EventQueued   = "download:queued"
	EventProgress = "download:progress"
	EventStatus   = "download:status"
)

// Runner executes a job.
type Runner interface {
	Execute(ctx context.Context, job *downloader.Job, progress downloader.ProgressFunc) (bool, error)
}

// HistoryRecorder stores finished items.
type HistoryRecorder interface {
	Add(ctx context.Context, e history.Entry) (*history.Entry, error)
}

// Broadcaster pushes status events to listeners.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
}

// Config configures the manager.
type Config struct {
	MaxConcurrent int
}

type entry struct {
	ActiveDownload

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	lastSent int
}

func (e *entry) finish() {
	e.doneOnce.Do(func() { close(e.done) })
}

// Manager is the download queue.
type Manager struct {
	runner  Runner
	history HistoryRecorder
	hub     Broadcaster
	workers int
	logger  zerolog.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	pending []*entry
	wake    chan struct{}
	started bool

	base     context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewManager creates a manager. history and hub may be nil.
func NewManager(runner Runner, hist HistoryRecorder, hub Broadcaster, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		history:  hist,
		hub:      hub,
		workers:  cfg.MaxConcurrent,
		logger:   logger.With().Str("component", "download-queue").Logger(),
		entries:  make(map[uuid.UUID]*entry),
		wake:     make(chan struct{}, 1),
		base:     base,
		stopBase: stop,
		now:      time.Now,
	}
}

// Start launches the workers. They run until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	context.AfterFunc(ctx, m.stopBase)

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
	m.logger.Info().Int("workers", m.workers).Msg("Download queue started")
	return nil
}

// Stop cancels everything in flight and waits for the workers to exit.
func (m *Manager) Stop() {
	m.stopBase()
	m.wg.Wait()

	m.mu.Lock()
	for _, e := range m.pending {
		m.transitionLocked(e, StatusCancelled, "")
		e.finish()
	}
	m.pending = nil
	m.mu.Unlock()
	m.logger.Info().Msg("Download queue stopped")
}

// Enqueue registers job and queues it for execution.
func (m *Manager) Enqueue(job *downloader.Job, subscriptionID *uuid.UUID) uuid.UUID {
	ctx, cancel := context.WithCancel(m.base)
	e := &entry{
		ActiveDownload: ActiveDownload{
			ID:             uuid.New(),
			SubscriptionID: subscriptionID,
			Job:            job,
			Status:         StatusQueued,
			CreatedAt:      m.now().UTC(),
		},
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		lastSent: -1,
	}

	m.mu.Lock()
	m.entries[e.ID] = e
	if m.base.Err() != nil {
		m.transitionLocked(e, StatusCancelled, "queue is shut down")
		e.finish()
	} else {
		m.pending = append(m.pending, e)
	}
	snapshot := e.ActiveDownload
	m.mu.Unlock()

	m.signal()
	m.logger.Info().Str("id", e.ID.String()).Str("title", job.Title).Msg("Queued download job")
	m.broadcast(EventQueued, toEvent(snapshot))
	return e.ID
}

// Cancel stops a queued or running download. The running subprocess, if
// any, is killed through the job's context.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if e.Status.Terminal() {
		status := e.Status
		m.mu.Unlock()
		return &TerminalError{ID: id, Status: status}
	}
	wasQueued := e.Status == StatusQueued
	m.transitionLocked(e, StatusCancelled, "")
	snapshot := e.ActiveDownload
	m.mu.Unlock()

	e.cancel()
	if wasQueued {
		e.finish()
	}
	m.logger.Info().Str("id", id.String()).Str("title", e.Job.Title).Msg("Cancelled download job")
	m.broadcastStatus(snapshot)
	return nil
}

// Get returns a snapshot of one entry.
func (m *Manager) Get(id uuid.UUID) (ActiveDownload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return ActiveDownload{}, ErrNotFound
	}
	return e.ActiveDownload, nil
}

// ListActive returns snapshots of all entries, newest first.
func (m *Manager) ListActive() []ActiveDownload {
	m.mu.Lock()
	out := make([]ActiveDownload, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.ActiveDownload)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Prune removes terminal entries that finished more than olderThan ago
// and returns how many were removed.
func (m *Manager) Prune(olderThan time.Duration) int {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if !e.Status.Terminal() || e.FinishedAt == nil || e.FinishedAt.After(cutoff) {
			continue
		}
		delete(m.entries, id)
		removed++
	}
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Pruned finished downloads")
	}
	return removed
}

// Wait blocks until the entry reaches a terminal state or ctx is done.
func (m *Manager) Wait(ctx context.Context, id uuid.UUID) (ActiveDownload, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return ActiveDownload{}, ErrNotFound
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return ActiveDownload{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return e.ActiveDownload, nil
}

// QueuedCount returns the number of entries waiting for a worker.
func (m *Manager) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Status == StatusQueued {
			n++
		}
	}
	return n
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) next() *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) > 0 {
		e := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		if e.Status == StatusQueued {
			if len(m.pending) > 0 {
				m.signal()
			}
			return e
		}
	}
	return nil
}

func (m *Manager) work() {
	defer m.wg.Done()
	for {
		if m.base.Err() != nil {
			return
		}
		if e := m.next(); e != nil {
			m.run(e)
			continue
		}
		select {
		case <-m.wake:
		case <-m.base.Done():
			return
		}
	}
}

func (m *Manager) run(e *entry) {
	defer e.finish()
	defer e.cancel()

	m.mu.Lock()
	if !m.transitionLocked(e, StatusDownloading, "") {
		m.mu.Unlock()
		return
	}
	snapshot := e.ActiveDownload
	m.mu.Unlock()
	m.broadcastStatus(snapshot)

	log := m.logger.With().Str("id", e.ID.String()).Str("title", e.Job.Title).Logger()
	log.Info().Msg("Starting download job")

	ok, err := m.execute(e)

	m.mu.Lock()
	switch {
	case e.ctx.Err() != nil:
		m.transitionLocked(e, StatusCancelled, "")
	case ok:
		e.Progress = 100
		m.transitionLocked(e, StatusFinished, "")
	default:
		msg := failedNoDetail
		if err != nil {
			msg = err.Error()
		}
		m.transitionLocked(e, StatusFailed, msg)
	}
	snapshot = e.ActiveDownload
	m.mu.Unlock()

	switch snapshot.Status {
	case StatusFinished:
		log.Info().Msg("Download job finished")
		m.recordHistory(e)
	case StatusFailed:
		log.Error().Err(err).Msg("Download job failed")
	default:
		log.Info().Str("status", string(snapshot.Status)).Msg("Download job stopped")
	}
	m.broadcastStatus(snapshot)
}

// execute runs the job, turning a runner panic into a failure.
func (m *Manager) execute(e *entry) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Str("id", e.ID.String()).Msg("Download job panicked")
			ok, err = false, errors.New("internal error during download")
		}
	}()
	return m.runner.Execute(e.ctx, e.Job, func(p float64) { m.progress(e, p) })
}

func (m *Manager) progress(e *entry, p float64) {
	m.mu.Lock()
	if e.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	e.Progress = p
	if p > processingThreshold && e.Status == StatusDownloading {
		m.transitionLocked(e, StatusProcessing, "")
	}
	pct := int(math.Floor(p))
	send := pct != e.lastSent
	e.lastSent = pct
	snapshot := e.ActiveDownload
	m.mu.Unlock()

	if send {
		m.broadcast(EventProgress, toEvent(snapshot))
	}
}

// transitionLocked moves e to next if allowed. m.mu must be held.
func (m *Manager) transitionLocked(e *entry, next Status, errMsg string) bool {
	if !e.Status.canMoveTo(next) {
		return false
	}
	e.Status = next
	if errMsg != "" {
		e.Error = errMsg
	}
	if next.Terminal() {
		t := m.now().UTC()
		e.FinishedAt = &t
	}
	return true
}

func (m *Manager) recordHistory(e *entry) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, item := range e.Job.Items() {
		_, err := m.history.Add(ctx, history.Entry{
			SubscriptionID: e.SubscriptionID,
			VideoURL:       item.SourceURL,
			DownloadPath:   item.DestinationPath,
			ItemID:         e.Job.ItemID,
			Title:          e.Job.Title,
			Language:       e.Job.VideoInfo.Language,
		})
		if err != nil {
			m.logger.Error().Err(err).Str("url", item.SourceURL).Msg("Failed to record download history")
		}
	}
}

func (m *Manager) broadcastStatus(a ActiveDownload) {
	m.broadcast(EventStatus, toEvent(a))
}

func (m *Manager) broadcast(msgType string, payload any) {
	if m.hub != nil {
		m.hub.Broadcast(msgType, payload)
	}
}

func toEvent(a ActiveDownload) StatusEvent {
	ev := StatusEvent{ID: a.ID, Status: a.Status, Progress: a.Progress, Error: a.Error}
	if a.Job != nil {
		ev.Title = a.Job.Title
	}
	return ev
}
