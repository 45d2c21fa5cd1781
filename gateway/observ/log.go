// Package observ assembles the per-request observability log and estimates
// token usage when the upstream omits it.
package observ

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// LogStore is the slice of the storage connector the builder writes through.
type LogStore interface {
	CreateLog(ctx context.Context, log *types.Log) error
	UpdateLog(ctx context.Context, log *types.Log) error
}

// Builder accumulates one request's log record across the pipeline stages
// and persists it best-effort.
type Builder struct {
	store  LogStore
	logger *zap.Logger

	log     types.Log
	created bool
}

// NewBuilder starts a log record at request entry.
func NewBuilder(store LogStore, logger *zap.Logger, fn types.FunctionName, method string) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		store:  store,
		logger: logger.With(zap.String("component", "observ")),
		log: types.Log{
			FunctionName: fn,
			Method:       method,
			StartTime:    time.Now(),
			CacheStatus:  types.CacheNA,
		},
	}
}

func (b *Builder) SetTrace(traceID, spanID string) {
	b.log.TraceID = traceID
	b.log.SpanID = spanID
}

func (b *Builder) SetAgent(agentID, skillID string) {
	b.log.AgentID = agentID
	b.log.SkillID = skillID
}

func (b *Builder) SetArm(clusterID, armID string) {
	b.log.ClusterID = clusterID
	b.log.ArmID = armID
}

func (b *Builder) SetTarget(provider, model string) {
	b.log.Provider = provider
	b.log.Model = model
}

func (b *Builder) SetRequestBody(body []byte) {
	b.log.RequestBody = json.RawMessage(body)
}

func (b *Builder) SetEmbedding(embedding []float32) {
	b.log.Embedding = embedding
}

func (b *Builder) SetCacheStatus(status types.CacheStatus) {
	b.log.CacheStatus = status
}

func (b *Builder) SetHookResults(results *types.HookResults) {
	b.log.HookResults = results
}

// MarkFirstToken records the first streamed token once; later calls are
// no-ops.
func (b *Builder) MarkFirstToken() {
	if b.log.FirstTokenTime == nil {
		now := time.Now()
		b.log.FirstTokenTime = &now
	}
}

func (b *Builder) SetMetadata(key string, value any) {
	if b.log.Metadata == nil {
		b.log.Metadata = make(map[string]any)
	}
	b.log.Metadata[key] = value
}

// LogID returns the persisted record id, empty before Create.
func (b *Builder) LogID() string { return b.log.ID }

// Snapshot returns a copy of the record as assembled so far.
func (b *Builder) Snapshot() types.Log { return b.log }

// Create persists the initial record. Failures are logged, never fatal.
func (b *Builder) Create(ctx context.Context) {
	if b.store == nil {
		return
	}
	if err := b.store.CreateLog(ctx, &b.log); err != nil {
		b.logger.Warn("failed to create request log", zap.Error(err))
		return
	}
	b.created = true
}

// Finalize stamps the outcome and persists the completed record. It uses a
// detached context so a canceled request still gets its partial log.
func (b *Builder) Finalize(status int, responseBody []byte) {
	b.log.Status = status
	b.log.ResponseBody = json.RawMessage(responseBody)
	b.log.EndTime = time.Now()
	b.log.DurationMS = b.log.EndTime.Sub(b.log.StartTime).Milliseconds()

	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !b.created {
		if err := b.store.CreateLog(ctx, &b.log); err != nil {
			b.logger.Warn("failed to write request log", zap.Error(err))
		}
		return
	}
	if err := b.store.UpdateLog(ctx, &b.log); err != nil {
		b.logger.Warn("failed to finalize request log", zap.Error(err))
	}
}
