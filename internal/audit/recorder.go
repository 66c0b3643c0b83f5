package audit

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Recorder is the best-effort front of the audit trail. Record never
// returns an error and never panics: a failed write is logged to the
// operator channel and the invocation that produced it proceeds unchanged.
type Recorder struct {
	store *Store
}

// NewRecorder wraps a store. A nil store yields a recorder that drops
// everything, for tests and tooling that run without a trail.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Record writes rec to the trail, swallowing any failure.
func (r *Recorder) Record(ctx context.Context, rec *Record) {
	if r == nil || r.store == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("tool", rec.ToolName).Msg("audit_write_panicked")
		}
	}()
	if err := r.store.Write(ctx, rec); err != nil {
		log.Error().Err(err).
			Str("tenant_id", rec.TenantID).
			Str("tool", rec.ToolName).
			Msg("audit_write_failed")
	}
}
