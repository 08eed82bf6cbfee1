// Package screenrunner implements the Worker (W): a background loop that
// claims one job at a time, re-checks the cache for idempotency, calls the
// Matcher under a deadline, and writes the result back to the Evidence
// Store.
package screenrunner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
	"screenguard/internal/fingerprint"
	"screenguard/internal/matching"
	"screenguard/internal/ports"
)

const (
	defaultPollSeconds      = 5
	minPollSeconds          = 2
	defaultCleanupEveryN    = 50
	defaultJobRetentionDays = 7
	defaultMatcherDeadline  = 30 * time.Second
)

// Config tunes the worker loop; zero values fall back to spec defaults.
type Config struct {
	PollInterval            time.Duration
	CleanupEveryNLoops      int
	JobRetentionDays        int
	EvidenceRetentionMonths int // 0 = never purge
	MatcherDeadline         time.Duration
	Workers                 int
}

func (c Config) withDefaults() Config {
	if c.PollInterval < minPollSeconds*time.Second {
		c.PollInterval = defaultPollSeconds * time.Second
	}
	if c.CleanupEveryNLoops <= 0 {
		c.CleanupEveryNLoops = defaultCleanupEveryN
	}
	if c.JobRetentionDays <= 0 {
		c.JobRetentionDays = defaultJobRetentionDays
	}
	if c.MatcherDeadline <= 0 {
		c.MatcherDeadline = defaultMatcherDeadline
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

// Run starts cfg.Workers worker goroutines and blocks until ctx is
// cancelled. Horizontal scaling is safe: ClaimOne is exclusive per row.
func Run(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, matcher ports.Matcher, audit ports.AuditSink, logger *zap.Logger, cfg Config) {
	cfg = cfg.withDefaults()
	for i := 0; i < cfg.Workers; i++ {
		go loop(ctx, jobs, evidence, matcher, audit, logger, cfg)
	}
	<-ctx.Done()
}

func loop(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, matcher ports.Matcher, audit ports.AuditSink, logger *zap.Logger, cfg Config) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := processOne(ctx, jobs, evidence, matcher, audit, logger, cfg); err != nil {
			logger.Warn("screenrunner: claim or process error", zap.Error(err))
		}

		iterations++
		if iterations%cfg.CleanupEveryNLoops == 0 {
			cleanup(ctx, jobs, evidence, logger, cfg)
		}
	}
}

// processOne runs exactly one claim-and-process cycle, shared by the
// background loop and ProcessInline (the dispatcher's synchronous path
// never calls this — it calls Matcher directly).
func processOne(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, matcher ports.Matcher, audit ports.AuditSink, logger *zap.Logger, cfg Config) (bool, error) {
	job, err := jobs.ClaimOne(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	processJob(ctx, jobs, evidence, matcher, audit, logger, cfg, job)
	return true, nil
}

func processJob(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, matcher ports.Matcher, audit ports.AuditSink, logger *zap.Logger, cfg Config, job *domain.Job) {
	// Idempotency re-check: another path may have produced a valid row
	// since enqueue.
	if !job.ForceRescreen {
		cached, err := evidence.GetValid(ctx, job.Fingerprint)
		if err == nil && cached != nil {
			if err := jobs.Complete(ctx, job.ID); err != nil {
				logger.Warn("screenrunner: complete reused job failed", zap.String("job_id", job.ID), zap.Error(err))
			}
			emitAudit(ctx, audit, job, "reused_by_worker")
			return
		}
	}

	dob := ""
	if job.DOB != nil {
		dob = *job.DOB
	}

	mctx, cancel := context.WithTimeout(ctx, cfg.MatcherDeadline)
	result, err := matcher.Screen(mctx, matching.MatchInput{Name: job.Name, DOB: dob, EntityType: job.EntityType})
	cancel()
	if err != nil {
		msg := err.Error()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		if failErr := jobs.Fail(ctx, job.ID, msg); failErr != nil {
			logger.Warn("screenrunner: fail job failed", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		emitAudit(ctx, audit, job, "failed")
		if apperr.Is(err, apperr.MatcherUnavailable) {
			logger.Warn("screenrunner: matcher unavailable", zap.String("job_id", job.ID))
		}
		return
	}

	_, err = evidence.Upsert(ctx, ports.UpsertEvidenceInput{
		Fingerprint:    job.Fingerprint,
		DisplayName:    job.Name,
		NormalizedName: fingerprint.NormalizeName(job.Name),
		DateOfBirth:    job.DOB,
		EntityType:     job.EntityType,
		Result:         result,
		Requestor:      job.Requestor,
		ForceRescreen:  job.ForceRescreen,
	})
	if err != nil {
		logger.Warn("screenrunner: upsert evidence failed", zap.String("job_id", job.ID), zap.Error(err))
		_ = jobs.Fail(ctx, job.ID, err.Error())
		emitAudit(ctx, audit, job, "failed")
		return
	}

	if err := jobs.Complete(ctx, job.ID); err != nil {
		logger.Warn("screenrunner: complete job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	emitAudit(ctx, audit, job, "completed")
}

func cleanup(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, logger *zap.Logger, cfg Config) {
	if n, err := jobs.PurgeTerminalOlderThan(ctx, cfg.JobRetentionDays); err != nil {
		logger.Warn("screenrunner: purge jobs failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("screenrunner: purged terminal jobs", zap.Int64("count", n))
	}
	if cfg.EvidenceRetentionMonths > 0 {
		if n, err := evidence.PurgeOlderThan(ctx, cfg.EvidenceRetentionMonths); err != nil {
			logger.Warn("screenrunner: purge evidence failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("screenrunner: purged stale evidence", zap.Int64("count", n))
		}
	}
}

func emitAudit(ctx context.Context, audit ports.AuditSink, job *domain.Job, outcome string) {
	if audit == nil {
		return
	}
	audit.Emit(ctx, ports.AuditEvent{
		Timestamp:         time.Now().UTC(),
		Actor:             "screenrunner",
		Action:            "worker_screen",
		Fingerprint:       job.Fingerprint.String(),
		BusinessReference: job.BusinessReference,
		Reason:            string(job.Reason),
		Outcome:           outcome,
		CorrelationID:     job.ID,
	})
}

// ProcessInline runs one claim-and-process cycle synchronously, sharing the
// exact same logic the background loop uses, so a caller awaiting a job's
// completion (e.g. a test harness) doesn't duplicate the worker's rules.
func ProcessInline(ctx context.Context, jobs ports.JobRepository, evidence ports.EvidenceRepository, matcher ports.Matcher, audit ports.AuditSink, logger *zap.Logger, cfg Config) (bool, error) {
	cfg = cfg.withDefaults()
	return processOne(ctx, jobs, evidence, matcher, audit, logger, cfg)
}
