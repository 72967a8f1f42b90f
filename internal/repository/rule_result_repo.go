package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quant-research/internal/dto"
	"quant-research/pkg/cache"
	"quant-research/pkg/logger"
)

// RuleResultRepository persists generated rule signals on disk, one file per
// (symbol, rule id). A descriptor fingerprint is stored alongside the
// signals, so a rule whose parameters changed under an unchanged id misses
// the cache instead of reading stale results.
type RuleResultRepository interface {
	Save(ctx context.Context, symbol, ruleID, fingerprint string, signals []dto.Signal) error
	Load(ctx context.Context, symbol, ruleID, fingerprint string) ([]dto.Signal, error)
}

type ruleResultRepository struct {
	dir      string
	memCache cache.Cache
	log      *logger.Logger
}

type ruleResultFile struct {
	Fingerprint string       `json:"fingerprint"`
	Signals     []dto.Signal `json:"signals"`
}

func NewRuleResultRepository(dir string, memCache cache.Cache, log *logger.Logger) (RuleResultRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create rule-result cache dir: %w", err)
	}
	return &ruleResultRepository{dir: dir, memCache: memCache, log: log}, nil
}

func (r *ruleResultRepository) path(symbol, ruleID string) string {
	return filepath.Join(r.dir, fmt.Sprintf("%s_%s.json", symbol, ruleID))
}

// Save writes atomically: a temp file in the same directory, renamed into
// place on success, so a crashed run never leaves a torn cache entry.
func (r *ruleResultRepository) Save(ctx context.Context, symbol, ruleID, fingerprint string, signals []dto.Signal) error {
	payload, err := json.Marshal(ruleResultFile{Fingerprint: fingerprint, Signals: signals})
	if err != nil {
		return err
	}

	target := r.path(symbol, ruleID)
	tmp, err := os.CreateTemp(r.dir, filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if r.memCache != nil {
		r.memCache.Set(target+"|"+fingerprint, append([]dto.Signal(nil), signals...), 0)
	}
	if r.log != nil {
		r.log.DebugContext(ctx, "Persisted rule results",
			logger.StringField("symbol", symbol),
			logger.StringField("rule_id", ruleID),
			logger.IntField("signals", len(signals)),
		)
	}
	return nil
}

func (r *ruleResultRepository) Load(ctx context.Context, symbol, ruleID, fingerprint string) ([]dto.Signal, error) {
	target := r.path(symbol, ruleID)
	if r.memCache != nil {
		if v, ok := r.memCache.Get(target + "|" + fingerprint); ok {
			if signals, ok := v.([]dto.Signal); ok {
				// Callers may mutate what they get back; keep the cached
				// slice canonical.
				return append([]dto.Signal(nil), signals...), nil
			}
		}
	}

	payload, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &dto.MissingRuleResultsError{Symbol: symbol, RuleID: ruleID}
		}
		return nil, err
	}

	var file ruleResultFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("corrupt rule-result file %s: %w", target, err)
	}
	if file.Fingerprint != fingerprint {
		if r.log != nil {
			r.log.WarnContext(ctx, "Rule-result fingerprint mismatch, treating as cache miss",
				logger.StringField("symbol", symbol),
				logger.StringField("rule_id", ruleID),
			)
		}
		return nil, &dto.MissingRuleResultsError{Symbol: symbol, RuleID: ruleID}
	}

	if r.memCache != nil {
		r.memCache.Set(target+"|"+fingerprint, file.Signals, 30*time.Minute)
	}
	return file.Signals, nil
}
