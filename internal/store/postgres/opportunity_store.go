package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Decimal figures are stored as NUMERIC without passing through float64.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunityCols = `id, symbol, buy_venue, sell_venue,
	buy_price, sell_price, gross_spread_percent, fees_percent, slippage_percent,
	net_profit_percent, estimated_profit, recommended_size, depth_usage_percent,
	risk_score, confidence, detected_at, updated_at, expires_at, refreshes,
	closed_at, close_reason`

// Upsert inserts opp or refreshes the figures of its open row. Closed rows
// are left untouched.
func (s *OpportunityStore) Upsert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, dedup_key, symbol, buy_venue, sell_venue,
			buy_price, sell_price, gross_spread_percent, fees_percent, slippage_percent,
			net_profit_percent, estimated_profit, recommended_size, depth_usage_percent,
			risk_score, confidence, detected_at, updated_at, expires_at, refreshes
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20
		)
		ON CONFLICT (id) DO UPDATE SET
			buy_price            = EXCLUDED.buy_price,
			sell_price           = EXCLUDED.sell_price,
			gross_spread_percent = EXCLUDED.gross_spread_percent,
			fees_percent         = EXCLUDED.fees_percent,
			slippage_percent     = EXCLUDED.slippage_percent,
			net_profit_percent   = EXCLUDED.net_profit_percent,
			estimated_profit     = EXCLUDED.estimated_profit,
			recommended_size     = EXCLUDED.recommended_size,
			depth_usage_percent  = EXCLUDED.depth_usage_percent,
			risk_score           = EXCLUDED.risk_score,
			confidence           = EXCLUDED.confidence,
			updated_at           = EXCLUDED.updated_at,
			expires_at           = EXCLUDED.expires_at,
			refreshes            = EXCLUDED.refreshes
		WHERE opportunities.closed_at IS NULL`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Key.String(), string(opp.Symbol), string(opp.BuyVenue), string(opp.SellVenue),
		numeric(opp.BuyPrice), numeric(opp.SellPrice), numeric(opp.GrossSpreadPercent),
		numeric(opp.FeesPercent), numeric(opp.SlippagePercent),
		numeric(opp.NetProfitPercent), numeric(opp.EstimatedProfit),
		numeric(opp.RecommendedSize), numeric(opp.DepthUsagePercent),
		numeric(opp.RiskScore), numeric(opp.Confidence),
		opp.DetectedAt, opp.UpdatedAt, opp.ExpiresAt, opp.Refreshes,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// Close marks the row closed. Closing twice keeps the first reason and time.
func (s *OpportunityStore) Close(ctx context.Context, id string, reason domain.CloseReason, closedAt time.Time) error {
	const query = `
		UPDATE opportunities SET
			closed_at    = COALESCE(closed_at, $2),
			close_reason = COALESCE(close_reason, $3)
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, closedAt, string(reason))
	if err != nil {
		return fmt.Errorf("postgres: close opportunity %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns domain.ErrNotFound for an unknown id.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.OpportunityRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+opportunityCols+` FROM opportunities WHERE id = $1`, id)
	rec, err := scanOpportunity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OpportunityRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OpportunityRecord{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return rec, nil
}

// ListRecent returns history newest first, filtered on detected_at.
func (s *OpportunityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND detected_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND detected_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY detected_at DESC, id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.list(ctx, "list recent opportunities", query, args...)
}

// ListClosedBefore returns up to limit closed rows with closed_at < before,
// oldest first.
func (s *OpportunityStore) ListClosedBefore(ctx context.Context, before time.Time, limit int) ([]domain.OpportunityRecord, error) {
	query := `SELECT ` + opportunityCols + ` FROM opportunities
		WHERE closed_at IS NOT NULL AND closed_at < $1
		ORDER BY closed_at, id`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.list(ctx, "list closed opportunities", query, args...)
}

// DeleteByIDs removes rows and reports how many went.
func (s *OpportunityStore) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, op, query string, args ...any) ([]domain.OpportunityRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.OpportunityRecord
	for rows.Next() {
		rec, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanOpportunity(row pgx.Row) (domain.OpportunityRecord, error) {
	var (
		rec                       domain.OpportunityRecord
		symbol, buyVenue, sellVen string
		nums                      [11]pgtype.Numeric
		closeReason               *string
	)
	if err := row.Scan(
		&rec.ID, &symbol, &buyVenue, &sellVen,
		&nums[0], &nums[1], &nums[2], &nums[3], &nums[4],
		&nums[5], &nums[6], &nums[7], &nums[8],
		&nums[9], &nums[10], &rec.DetectedAt, &rec.UpdatedAt, &rec.ExpiresAt, &rec.Refreshes,
		&rec.ClosedAt, &closeReason,
	); err != nil {
		return domain.OpportunityRecord{}, err
	}

	rec.Symbol = domain.Symbol(symbol)
	rec.BuyVenue = domain.VenueID(buyVenue)
	rec.SellVenue = domain.VenueID(sellVen)
	rec.Key = domain.NewOpportunityKey(rec.Symbol, rec.BuyVenue, rec.SellVenue)
	if closeReason != nil {
		rec.CloseReason = domain.CloseReason(*closeReason)
	}

	dests := []*exact.Decimal{
		&rec.BuyPrice, &rec.SellPrice, &rec.GrossSpreadPercent, &rec.FeesPercent, &rec.SlippagePercent,
		&rec.NetProfitPercent, &rec.EstimatedProfit, &rec.RecommendedSize, &rec.DepthUsagePercent,
		&rec.RiskScore, &rec.Confidence,
	}
	for i, dst := range dests {
		v, err := fromNumeric(nums[i])
		if err != nil {
			return domain.OpportunityRecord{}, fmt.Errorf("opportunity %s column %d: %w", rec.ID, i, err)
		}
		*dst = v
	}
	return rec, nil
}

// numeric encodes d exactly as coefficient and exponent.
func numeric(d exact.Decimal) pgtype.Numeric {
	coef, exp := d.Coefficient()
	return pgtype.Numeric{Int: coef, Exp: exp, Valid: true}
}

func fromNumeric(n pgtype.Numeric) (exact.Decimal, error) {
	if !n.Valid {
		return exact.Zero, errors.New("null numeric")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return exact.Zero, errors.New("non-finite numeric")
	}
	if n.Int == nil {
		return exact.Zero, nil
	}
	return exact.FromBig(new(big.Int).Set(n.Int), n.Exp), nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
