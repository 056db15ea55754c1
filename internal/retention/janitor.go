// Package retention prunes old audit events from the hot store. A janitor
// goroutine sweeps every project on a fixed interval and deletes events
// older than the configured window, optionally archiving them to a
// pluggable backend first.
//
// Archive failures are fail-safe: events are NOT purged when the archive
// write fails, so the next cycle picks them up again. Without a registered
// archive driver the janitor purges directly.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/producthelper/producthelper/internal/store"
	"github.com/producthelper/producthelper/pkg/contracts"
	"github.com/producthelper/producthelper/pkg/models"
)

// DefaultAuditRetentionDays is used when the configured window is unset.
const DefaultAuditRetentionDays = 30

// DefaultArchiveBatchSize is the max events per archive write.
const DefaultArchiveBatchSize = 5000

// maxSweepEvents caps how many expired events one cycle loads per project.
// Anything beyond the cap is handled by the next cycle.
const maxSweepEvents = 10000

// CycleStats tracks what happened to one project in a single retention cycle.
type CycleStats struct {
	ProjectID     int64
	AuditArchived int
	AuditPurged   int
	ArchiveURIs   []string
	Errors        []error
}

// Janitor periodically archives and purges expired audit events.
type Janitor struct {
	store     store.Store
	auditDays int
	interval  time.Duration

	// archiveDrivers is a registry of pluggable archive backends.
	archiveDrivers map[string]contracts.ArchiveDriver
	driverMu       sync.RWMutex

	// defaultBackend receives archives unless overridden.
	defaultBackend string
}

// NewJanitor creates a retention janitor that sweeps on the given interval
// and keeps audit events for auditDays.
func NewJanitor(s store.Store, auditDays int, interval time.Duration) *Janitor {
	if auditDays <= 0 {
		auditDays = DefaultAuditRetentionDays
	}
	if interval < time.Minute {
		interval = time.Hour // minimum 1 hour
	}
	return &Janitor{
		store:          s,
		auditDays:      auditDays,
		interval:       interval,
		archiveDrivers: make(map[string]contracts.ArchiveDriver),
	}
}

// RegisterArchiver adds an archive driver. The first registered driver
// becomes the default backend.
func (j *Janitor) RegisterArchiver(driver contracts.ArchiveDriver) {
	j.driverMu.Lock()
	defer j.driverMu.Unlock()
	kind := driver.Kind()
	if len(j.archiveDrivers) == 0 {
		j.defaultBackend = kind
	}
	j.archiveDrivers[kind] = driver
	log.Info().Str("kind", kind).Msg("Archive driver registered")
}

// SetDefaultBackend overrides which archive driver receives archives.
func (j *Janitor) SetDefaultBackend(kind string) {
	j.driverMu.Lock()
	defer j.driverMu.Unlock()
	j.defaultBackend = kind
}

// GetArchiver returns the registered driver for the given kind.
func (j *Janitor) GetArchiver(kind string) (contracts.ArchiveDriver, bool) {
	j.driverMu.RLock()
	defer j.driverMu.RUnlock()
	d, ok := j.archiveDrivers[kind]
	return d, ok
}

// ListArchivers returns the kinds of all registered archive drivers.
func (j *Janitor) ListArchivers() []string {
	j.driverMu.RLock()
	defer j.driverMu.RUnlock()
	kinds := make([]string, 0, len(j.archiveDrivers))
	for k := range j.archiveDrivers {
		kinds = append(kinds, k)
	}
	return kinds
}

// Start runs the janitor loop. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Int("audit_days", j.auditDays).
		Dur("interval", j.interval).
		Strs("archivers", j.ListArchivers()).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep across all projects.
func (j *Janitor) RunCycle(ctx context.Context) {
	start := time.Now()
	projects, err := j.store.ListProjects(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Retention janitor: failed to list projects")
		return
	}

	totalArchived := 0
	totalPurged := 0

	for _, project := range projects {
		stats := j.processProject(ctx, project.ID)
		totalArchived += stats.AuditArchived
		totalPurged += stats.AuditPurged

		for _, e := range stats.Errors {
			log.Warn().Err(e).Int64("project_id", project.ID).Msg("Retention cycle error")
		}
	}

	elapsed := time.Since(start)
	if totalArchived > 0 || totalPurged > 0 {
		log.Info().
			Int("archived_events", totalArchived).
			Int("purged_events", totalPurged).
			Int("projects", len(projects)).
			Dur("elapsed", elapsed).
			Msg("Retention cycle complete")
	}
}

// processProject handles archive+purge for a single project.
func (j *Janitor) processProject(ctx context.Context, projectID int64) CycleStats {
	stats := CycleStats{ProjectID: projectID}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.auditDays)
	filter := store.AuditFilter{ProjectID: projectID, Before: &cutoff, Limit: maxSweepEvents}

	// Count first so quiet projects cost one query, not a full listing.
	n, err := j.store.CountAuditEvents(ctx, filter)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	if n == 0 {
		return stats
	}

	expired, err := j.store.ListAuditEvents(ctx, filter)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	if len(expired) == 0 {
		return stats
	}

	j.driverMu.RLock()
	hasArchivers := len(j.archiveDrivers) > 0
	backend := j.defaultBackend
	j.driverMu.RUnlock()

	if !hasArchivers {
		// Purge without archiving
		j.purgeAuditEvents(ctx, expired, &stats)
		return stats
	}

	// Archive first, then purge only if every batch landed
	if !j.archiveEvents(ctx, projectID, backend, expired, &stats) {
		log.Warn().Int64("project_id", projectID).Msg("Archive failed, skipping purge (fail-safe)")
		return stats
	}
	j.purgeAuditEvents(ctx, expired, &stats)
	return stats
}

// archiveEvents writes expired events to the archive backend in batches.
// It returns false if any batch failed.
func (j *Janitor) archiveEvents(ctx context.Context, projectID int64, backend string, events []models.AuditEvent, stats *CycleStats) bool {
	driver, ok := j.GetArchiver(backend)
	if !ok {
		log.Warn().
			Str("backend", backend).
			Int64("project_id", projectID).
			Msg("Archive driver not found, cannot archive")
		stats.Errors = append(stats.Errors, &archiveError{backend: backend, msg: "driver not registered"})
		return false
	}

	allOK := true
	for i := 0; i < len(events); i += DefaultArchiveBatchSize {
		end := i + DefaultArchiveBatchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[i:end]

		uri, err := driver.ArchiveAuditEvents(ctx, projectID, batch)
		if err != nil {
			log.Warn().Err(err).
				Int64("project_id", projectID).
				Str("backend", backend).
				Int("batch_size", len(batch)).
				Msg("Failed to archive audit events")
			stats.Errors = append(stats.Errors, err)
			allOK = false
			continue
		}

		stats.AuditArchived += len(batch)
		stats.ArchiveURIs = append(stats.ArchiveURIs, uri)
	}
	return allOK
}

// purgeAuditEvents deletes audit events from the hot store.
func (j *Janitor) purgeAuditEvents(ctx context.Context, events []models.AuditEvent, stats *CycleStats) {
	for _, e := range events {
		if err := j.store.DeleteAuditEvent(ctx, e.ID); err != nil {
			log.Warn().Err(err).Str("event_id", e.ID).Msg("Failed to delete expired audit event")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.AuditPurged++
	}
}

// archiveError is a simple error type for archive failures.
type archiveError struct {
	backend string
	msg     string
}

func (e *archiveError) Error() string {
	return "archive driver " + e.backend + ": " + e.msg
}
