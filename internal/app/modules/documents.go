package modules

import (
	"context"

	"github.com/riverqueue/river"

	"aeroclaim.io/aeroclaim/internal/api/handlers"
	"aeroclaim.io/aeroclaim/internal/docpipe"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/scan"
)

// DocumentsModule owns the secure document pipeline and the purge of
// soft-deleted objects.
type DocumentsModule struct {
	infra *Infrastructure
	svc   *docpipe.Service
}

// NewDocumentsModule wires the pipeline with the WebDAV object store
// and the malware scanner. Production runs the scanner fail-closed.
func NewDocumentsModule(infra *Infrastructure) *DocumentsModule {
	scanner := scan.NewScanner(infra.Config.Scanner, infra.Config.IsProduction(), infra.Pools.Remote)
	svc := docpipe.NewService(docpipe.Deps{
		Config:  infra.Config.Files,
		Store:   infra.Store,
		Pool:    infra.Pool,
		Objects: infra.Objects,
		Scanner: scanner,
		Cipher:  infra.FileCipher,
		Queue:   infra.RiverClient,
	})
	return &DocumentsModule{infra: infra, svc: svc}
}

func (m *DocumentsModule) Name() string { return "documents" }

func (m *DocumentsModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Files = m.svc
}

// RegisterWorkers adds the remote-object reaper.
func (m *DocumentsModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewFileReaperWorker(m.infra.Store, m.infra.Objects))
}

func (m *DocumentsModule) Shutdown(context.Context) error { return nil }
