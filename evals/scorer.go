package evals

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// ScoreStore is the slice of the storage connector online scoring consumes.
type ScoreStore interface {
	GetEvaluationRuns(ctx context.Context) ([]types.EvaluationRun, error)
	UpdateLog(ctx context.Context, log *types.Log) error
}

// RewardSink receives the averaged reward for the arm that served a request.
// The optimizer implements it.
type RewardSink interface {
	ReportReward(ctx context.Context, armID string, reward float64) error
}

// Scorer runs the methods attached to a skill against each finalized log and
// feeds the averaged reward back to the optimizer. An evaluation run row with
// a skill id and no dataset acts as the attachment: its method and params
// score every subsequent request of that skill.
type Scorer struct {
	registry *Registry
	store    ScoreStore
	sink     RewardSink
	logger   *zap.Logger

	// Timeout bounds one log's scoring, judge calls included.
	Timeout time.Duration
}

func NewScorer(registry *Registry, store ScoreStore, sink RewardSink, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		registry: registry,
		store:    store,
		sink:     sink,
		logger:   logger.With(zap.String("component", "evals-scorer")),
		Timeout:  2 * time.Minute,
	}
}

// ScoreLog evaluates one finalized log. Failed requests are not scored: a
// provider error says nothing about the arm's parameter choices. All work is
// best-effort; scoring never surfaces an error to the caller.
func (s *Scorer) ScoreLog(ctx context.Context, log types.Log) {
	if log.Status >= 400 || log.SkillID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	attached := s.attachedMethods(ctx, log.SkillID)
	if len(attached) == 0 {
		if log.ArmID == "" {
			return
		}
		// An optimizing skill with no attached methods still needs a
		// reward signal; latency is the deterministic default.
		attached = []attachment{{method: TagLatency}}
	}

	var results []types.EvaluationResult
	var sum float64
	var scored int
	for _, att := range attached {
		result := s.runMethod(ctx, att, &log)
		results = append(results, result)
		if result.Error == "" {
			sum += result.Score
			scored++
		}
	}
	if len(results) == 0 {
		return
	}

	log.Evaluations = append(log.Evaluations, results...)
	if scored > 0 {
		avg := sum / float64(scored)
		log.AvgEvalScore = &avg
		if log.ArmID != "" && s.sink != nil {
			if err := s.sink.ReportReward(ctx, log.ArmID, avg); err != nil {
				s.logger.Warn("reward feedback failed",
					zap.String("arm_id", log.ArmID), zap.Error(err))
			}
		}
	}
	if err := s.store.UpdateLog(ctx, &log); err != nil {
		s.logger.Warn("failed to persist evaluations", zap.String("log_id", log.ID), zap.Error(err))
	}
}

type attachment struct {
	method string
	params Params
}

func (s *Scorer) attachedMethods(ctx context.Context, skillID string) []attachment {
	runs, err := s.store.GetEvaluationRuns(ctx)
	if err != nil {
		s.logger.Warn("failed to load evaluation runs", zap.Error(err))
		return nil
	}
	var out []attachment
	for i := range runs {
		if runs[i].SkillID != skillID || runs[i].DatasetID != "" {
			continue
		}
		att := attachment{method: runs[i].Method}
		if len(runs[i].Params) > 0 {
			if err := json.Unmarshal(runs[i].Params, &att.params); err != nil {
				s.logger.Warn("invalid evaluation params",
					zap.String("run_id", runs[i].ID), zap.Error(err))
				continue
			}
		}
		out = append(out, att)
	}
	return out
}

func (s *Scorer) runMethod(ctx context.Context, att attachment, log *types.Log) types.EvaluationResult {
	out := types.EvaluationResult{Method: att.method, JudgeModel: att.params.JudgeModel}
	method, err := s.registry.Resolve(att.method)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if err := method.ValidateParams(&att.params); err != nil {
		out.Error = err.Error()
		return out
	}
	result, err := method.EvaluateLog(ctx, &att.params, log)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Score = result.Score
	out.Extras = result.Extras
	return out
}
