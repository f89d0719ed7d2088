// Package session implements the dataset session client: the state machine
// that drives one uploaded dataset and the queries made against it.
//
// Every operation is safe to call concurrently. Overlapping calls are all
// issued and the last one to resolve wins; the client does not de-duplicate
// or retry. Operations that depend on a dataset fail fast with a precondition
// error while no handle is set.
package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/genstats/client/internal/api"
	"github.com/genstats/client/internal/models"
	"github.com/genstats/client/internal/realtime"
	"github.com/genstats/client/internal/upload"
)

// Realtime is the persistent message channel the session can forward to.
type Realtime interface {
	Send(msg string) error
	OnMessage(h realtime.Handler)
	Latest() (string, bool)
}

// Journal records operation outcomes.
type Journal interface {
	Record(ctx context.Context, entry models.HistoryEntry) error
}

// Observer is notified with a copy of the state after every change.
type Observer func(models.SessionState)

// Option configures a Client.
type Option func(*Client)

// WithRealtime attaches a realtime channel.
func WithRealtime(rt Realtime) Option { return func(c *Client) { c.rt = rt } }

// WithJournal records every operation outcome in j.
func WithJournal(j Journal) Option { return func(c *Client) { c.journal = j } }

// WithUploads tracks upload progress in m.
func WithUploads(m *upload.Manager) Option { return func(c *Client) { c.uploads = m } }

// DefaultJobRetention is how long finished upload jobs are kept.
const DefaultJobRetention = time.Hour

// WithJobRetention sets how long finished upload jobs are kept; zero drops
// them as soon as the upload resolves.
func WithJobRetention(d time.Duration) Option { return func(c *Client) { c.jobRetention = d } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

type observerEntry struct {
	id int
	fn Observer
}

// Client owns the state of one dataset session.
type Client struct {
	backend api.Backend
	rt      Realtime
	journal Journal
	uploads *upload.Manager
	log     *slog.Logger

	jobRetention time.Duration

	mu        sync.RWMutex
	state     models.SessionState
	pending   *models.UploadedFile
	selection uint64 // bumped on every SelectFile

	notifyMu  sync.Mutex
	obsMu     sync.Mutex
	observers []observerEntry
	nextObsID int
}

// New creates a session client over backend.
func New(backend api.Backend, opts ...Option) *Client {
	c := &Client{backend: backend, jobRetention: -1}
	for _, opt := range opts {
		opt(c)
	}
	if c.jobRetention < 0 {
		c.jobRetention = DefaultJobRetention
	}
	base := c.log
	if base == nil {
		base = slog.Default()
	}
	c.log = base.With("component", "session")
	if c.uploads == nil {
		c.uploads = upload.NewManager(base)
	}
	return c
}

// SelectFile stores f as the pending upload, replacing any unsent selection.
// It never contacts a service and leaves the current dataset handle alone.
// The client keeps f.Payload until the upload succeeds; callers must not
// modify it afterwards.
func (c *Client) SelectFile(f models.UploadedFile) {
	c.mu.Lock()
	file := f
	c.pending = &file
	c.selection++
	c.state.Pending = &models.PendingFile{
		Name:        f.Name,
		ContentType: f.MediaType(),
		Size:        f.Size(),
	}
	c.commit()

	c.log.Debug("file selected", "file", f.Name, "bytes", f.Size())
}

// UploadFile sends the pending file. On success the returned handle becomes
// the session's dataset and the pending file is cleared, unless another file
// was selected while the upload was in flight.
func (c *Client) UploadFile(ctx context.Context) (models.DatasetHandle, error) {
	c.mu.RLock()
	file := c.pending
	sel := c.selection
	c.mu.RUnlock()

	if file == nil {
		return "", ErrNoFileSelected
	}

	start := time.Now()
	job := c.uploads.StartJob(file.Name, file.Size())
	body := c.uploads.Reader(job, bytes.NewReader(file.Payload))

	res, err := c.backend.Upload(ctx, file.Name, file.MediaType(), body)
	if err == nil && (res == nil || res.FileID.IsZero()) {
		err = errors.New("upload returned no dataset handle")
	}
	if err != nil {
		c.uploads.MarkError(job, err)
		c.uploads.CleanupOldJobs(c.jobRetention)
		c.record(ctx, models.OperationUpload, "", file.Name, start, err)
		c.log.Warn("upload failed", "file", file.Name, "error", err)
		return "", remote(ErrUploadFailed, err)
	}
	c.uploads.MarkComplete(job, res.FileID.String())
	c.uploads.CleanupOldJobs(c.jobRetention)

	c.mu.Lock()
	c.state.Handle = res.FileID
	c.state.Preview = res.Preview
	if c.selection == sel {
		c.pending = nil
		c.state.Pending = nil
	}
	c.commit()

	c.record(ctx, models.OperationUpload, res.FileID, file.Name, start, nil)
	c.log.Info("dataset uploaded", "file", file.Name, "handle", shortID(res.FileID.String()))
	return res.FileID, nil
}

// FetchSummary requests the summary of the current dataset. A failed fetch
// leaves any previously stored summary untouched.
func (c *Client) FetchSummary(ctx context.Context) (models.Summary, error) {
	c.mu.RLock()
	handle := c.state.Handle
	c.mu.RUnlock()

	if handle.IsZero() {
		return nil, ErrNoDatasetSelected
	}

	start := time.Now()
	summary, err := c.backend.Summary(ctx, handle)
	if err == nil && summary.IsZero() {
		err = errors.New("empty summary document")
	}
	if err != nil {
		c.record(ctx, models.OperationSummary, handle, "", start, err)
		c.log.Warn("summary fetch failed", "handle", shortID(handle.String()), "error", err)
		return nil, remote(ErrSummaryFetchFailed, err)
	}

	stored := append(models.Summary(nil), summary...)
	c.mu.Lock()
	c.state.Summary = stored
	c.state.SummaryHandle = handle
	c.commit()

	c.record(ctx, models.OperationSummary, handle, "", start, nil)
	return summary, nil
}

// SubmitInsightQuery sends text to the insight service. Blank text is
// rejected without a request.
func (c *Client) SubmitInsightQuery(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyQuery
	}

	c.mu.RLock()
	handle := c.state.Handle
	c.mu.RUnlock()

	start := time.Now()
	response, err := c.backend.GenerateInsights(ctx, text)
	if err != nil {
		c.record(ctx, models.OperationInsight, handle, text, start, err)
		c.log.Warn("insight request failed", "error", err)
		return "", remote(ErrInsightRequestFailed, err)
	}

	c.mu.Lock()
	c.state.InsightQuery = text
	c.state.InsightResponse = response
	c.commit()

	c.record(ctx, models.OperationInsight, handle, text, start, nil)
	return response, nil
}

// SendRealtimeMessage forwards text over the realtime channel without
// waiting for any acknowledgement.
func (c *Client) SendRealtimeMessage(text string) error {
	if c.rt == nil {
		return ErrRealtimeUnavailable
	}
	start := time.Now()
	err := c.rt.Send(text)
	c.record(context.Background(), models.OperationRealtime, c.Handle(), text, start, err)
	return err
}

// OnRealtimeMessage makes h the only receiver of inbound realtime messages.
func (c *Client) OnRealtimeMessage(h func(string)) error {
	if c.rt == nil {
		return ErrRealtimeUnavailable
	}
	c.rt.OnMessage(h)
	return nil
}

// LatestRealtimeMessage returns the last inbound message, for polling
// consumers.
func (c *Client) LatestRealtimeMessage() (string, bool) {
	if c.rt == nil {
		return "", false
	}
	return c.rt.Latest()
}

// State returns a copy of the current session state.
func (c *Client) State() models.SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

// Handle returns the current dataset handle, which may be unset.
func (c *Client) Handle() models.DatasetHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Handle
}

// Uploads exposes the upload job tracker.
func (c *Client) Uploads() *upload.Manager { return c.uploads }

// Reset ends the session: every stored value is dropped.
func (c *Client) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.selection++
	c.state = models.SessionState{}
	c.commit()
}

// Subscribe registers fn for state changes and returns a function that
// removes it. Observers run synchronously in registration order and must not
// call mutating methods of the client.
func (c *Client) Subscribe(fn Observer) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObsID
	c.nextObsID++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		defer c.obsMu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// commit stamps the state, releases c.mu and notifies observers in the
// order the changes were made. The caller must hold c.mu.
func (c *Client) commit() {
	c.state.UpdatedAt = time.Now()
	st := c.state.Clone()

	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()

	c.obsMu.Lock()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.Unlock()

	for _, o := range observers {
		o.fn(st)
	}
}

func (c *Client) record(ctx context.Context, op models.Operation, handle models.DatasetHandle, detail string, start time.Time, opErr error) {
	if c.journal == nil {
		return
	}
	entry := models.HistoryEntry{
		Operation: op,
		Outcome:   models.OutcomeSuccess,
		Handle:    handle,
		Detail:    truncate(detail, 200),
		Duration:  time.Since(start),
		At:        start,
	}
	if opErr != nil {
		entry.Outcome = models.OutcomeFailure
		entry.Detail = truncate(opErr.Error(), 200)
	}
	// A cancelled caller context must not prevent the record
	if err := c.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.log.Warn("failed to record history", "operation", op, "error", err)
	}
}

// shortID safely truncates an ID for logging
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
