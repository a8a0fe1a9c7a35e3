// cmd/pipeline-worker/handlers.go
package main

import (
	"match-pipeline/internal/artifact"
	"match-pipeline/internal/common/config"
	"match-pipeline/internal/common/gemini"
	"match-pipeline/internal/common/logger"
	"match-pipeline/internal/common/ratelimit"
	"match-pipeline/internal/dispatch"
	"match-pipeline/internal/jobsearch"
	"match-pipeline/internal/salary"
	"match-pipeline/internal/store"

	mr "match-pipeline/internal/workers/application/match-rank"
	rr "match-pipeline/internal/workers/application/re-rank"
	je "match-pipeline/internal/workers/embedding/job-embedding"
	pe "match-pipeline/internal/workers/embedding/profile-embedding"
	cq "match-pipeline/internal/workers/employer/candidate-questions"
	ik "match-pipeline/internal/workers/employer/interview-kit"
	ip "match-pipeline/internal/workers/interview/interview-prep"
	si "match-pipeline/internal/workers/salary/invalidate"
	sp "match-pipeline/internal/workers/salary/predict"
)

// services are the process-wide collaborators shared by the handlers.
type services struct {
	entities   *store.Store
	profiles   *store.ProfileCache
	artifacts  *artifact.Store
	index      *jobsearch.Index
	generator  gemini.Generator
	embedder   gemini.Embedder
	limiter    ratelimit.Scheduler
	aggregator *salary.Aggregator
}

// buildHandlers returns a handler for every enabled kind.
func buildHandlers(cfg *config.Config, s services, log logger.Logger) map[string]dispatch.Handler {
	handlers := make(map[string]dispatch.Handler)
	register := func(kind string, build func(wc config.WorkerConfig) dispatch.Handler) {
		wc := config.GetWorkerConfig(cfg, kind)
		if !wc.Enabled {
			log.Info("worker disabled", map[string]interface{}{"kind": kind})
			return
		}
		handlers[kind] = build(wc)
	}

	// --- embedding ---
	register(je.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return je.NewHandler(je.LoadConfig(wc), s.entities, s.embedder, s.index, log)
	})
	register(pe.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return pe.NewHandler(pe.LoadConfig(wc), s.entities, s.embedder, s.artifacts, s.profiles, log)
	})

	// --- application ---
	register(mr.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return mr.NewHandler(mr.LoadConfig(wc), s.entities, s.generator, s.limiter, log)
	})
	register(rr.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return rr.NewHandler(rr.LoadConfig(wc), s.entities, log)
	})

	// --- employer ---
	register(cq.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return cq.NewHandler(cq.LoadConfig(wc), s.entities, s.profiles, s.generator, s.limiter, s.artifacts, log)
	})
	register(ik.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return ik.NewHandler(ik.LoadConfig(wc), s.entities, s.generator, s.limiter, s.artifacts, log)
	})

	// --- interview prep ---
	register(ip.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return ip.NewHandler(ip.LoadConfig(wc), s.entities, s.profiles, s.generator, s.limiter, s.artifacts, log)
	})

	// --- salary ---
	register(sp.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return sp.NewHandler(sp.LoadConfig(wc), s.profiles, s.index, s.aggregator, s.artifacts, log)
	})
	register(si.TaskType, func(wc config.WorkerConfig) dispatch.Handler {
		return si.NewHandler(si.LoadConfig(wc), s.artifacts, log)
	})

	return handlers
}

// tableFor narrows handlers to the kinds routed to queue. The second result
// lists declared kinds that have no enabled handler.
func tableFor(queue string, declared []string, handlers map[string]dispatch.Handler) (*dispatch.Table, []string, error) {
	entries := make(map[string]dispatch.Handler)
	kinds := make([]string, 0, len(declared))
	var disabled []string
	for _, kind := range declared {
		h, ok := handlers[kind]
		if !ok {
			disabled = append(disabled, kind)
			continue
		}
		entries[kind] = h
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, disabled, nil
	}
	table, err := dispatch.NewTable(queue, entries, kinds)
	return table, disabled, err
}
