package validators

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/solana"
)

// Source is the upstream data the validator listing needs.
type Source interface {
	GetVoteAccounts(ctx context.Context) (*solana.VoteAccounts, error)
	GetConfigAccounts(ctx context.Context) ([]solana.ProgramAccount, error)
}

// Service lists validators with their display metadata.
type Service struct {
	source  Source
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a Service. If metrics is nil, no metrics will be recorded.
func NewService(source Source, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{source: source, metrics: m, logger: logger}
}

// List fetches vote and config accounts concurrently and returns every
// validator, current and delinquent, sorted by activated stake descending.
func (s *Service) List(ctx context.Context) ([]EnrichedValidator, error) {
	var (
		votes    *solana.VoteAccounts
		accounts []solana.ProgramAccount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		votes, err = s.source.GetVoteAccounts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		accounts, err = s.source.GetConfigAccounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch validator data: %w", err)
	}

	all := make([]Validator, 0, len(votes.Current)+len(votes.Delinquent))
	for _, v := range votes.Current {
		all = append(all, Validator{VoteAccount: v, Active: true})
	}
	for _, v := range votes.Delinquent {
		all = append(all, Validator{VoteAccount: v, Active: false})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ActivatedStake > all[j].ActivatedStake
	})

	entries := ParseConfigAccounts(accounts)
	enriched, counts := Match(all, entries)

	s.logger.DebugContext(ctx, "listed validators",
		"validators", len(enriched),
		"config_accounts", len(accounts),
		"config_entries", len(entries),
		"matched_identity", counts[MatchIdentity],
		"matched_prefix", counts[MatchPrefix],
	)
	if s.metrics != nil {
		s.metrics.RecordValidatorMatches(counts)
	}
	return enriched, nil
}
