package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

// Repository provides PostgreSQL-based record storage
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		owner BYTEA PRIMARY KEY CHECK (octet_length(owner) = 32),
		username VARCHAR(32) NOT NULL CHECK (octet_length(username) BETWEEN 1 AND 32),
		rating BIGINT NOT NULL CHECK (rating >= 0),
		peak_rating BIGINT NOT NULL,
		total_games BIGINT NOT NULL DEFAULT 0,
		wins BIGINT NOT NULL DEFAULT 0,
		losses BIGINT NOT NULL DEFAULT 0,
		predict_games BIGINT NOT NULL DEFAULT 0,
		battle_games BIGINT NOT NULL DEFAULT 0,
		current_streak BIGINT NOT NULL DEFAULT 0,
		best_streak BIGINT NOT NULL DEFAULT 0,
		total_earnings BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		last_played_at TIMESTAMPTZ NOT NULL,
		CHECK (peak_rating >= rating),
		CHECK (total_games = wins + losses),
		CHECK (total_games = predict_games + battle_games)
	)`,
	`CREATE TABLE IF NOT EXISTS game_results (
		id UUID PRIMARY KEY,
		player BYTEA NOT NULL REFERENCES profiles(owner),
		mode SMALLINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		won BOOLEAN NOT NULL,
		rating_change INTEGER NOT NULL,
		final_rating BIGINT NOT NULL,
		label VARCHAR(10) NOT NULL,
		pnl BIGINT NOT NULL,
		seq BIGSERIAL
	)`,
	`CREATE TABLE IF NOT EXISTS reward_claims (
		id UUID PRIMARY KEY,
		player BYTEA NOT NULL REFERENCES profiles(owner),
		reward_kind SMALLINT NOT NULL,
		metadata_uri VARCHAR(200) NOT NULL,
		claimed_at TIMESTAMPTZ NOT NULL,
		rating_at_claim BIGINT NOT NULL,
		seq BIGSERIAL
	)`,
	`ALTER TABLE game_results ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`ALTER TABLE reward_claims ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_rating ON profiles(rating DESC)`,
	`DROP INDEX IF EXISTS idx_game_results_player`,
	`DROP INDEX IF EXISTS idx_reward_claims_player`,
	`CREATE INDEX IF NOT EXISTS idx_game_results_player_seq ON game_results(player, created_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_claims_player_seq ON reward_claims(player, claimed_at DESC, seq DESC)`,
}

// History is newest first; seq breaks ties between rows written in the same
// microsecond.
const (
	listGameResultsQuery = `
		SELECT id, player, mode, created_at, won, rating_change, final_rating, label, pnl
		FROM game_results
		WHERE player = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	listRewardClaimsQuery = `
		SELECT id, player, reward_kind, metadata_uri, claimed_at, rating_at_claim
		FROM reward_claims
		WHERE player = $1
		ORDER BY claimed_at DESC, seq DESC
		LIMIT $2
	`
)

const profileColumns = `owner, username, rating, peak_rating, total_games, wins, losses,
	predict_games, battle_games, current_streak, best_streak, total_earnings,
	created_at, last_played_at`

// CreateProfile inserts a new profile; the primary key on owner makes it
// unique per identity.
func (r *Repository) CreateProfile(ctx context.Context, p domain.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (owner) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, profileArgs(p)...)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileExists
	}
	return nil
}

// GetProfile retrieves a profile by owner
func (r *Repository) GetProfile(ctx context.Context, owner domain.Identity) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE owner = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, owner[:]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// UpdateProfile locks the profile row, applies fn and writes the result back
func (r *Repository) UpdateProfile(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) error) (*domain.Profile, error) {
	var updated *domain.Profile
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		if err := writeProfile(ctx, tx, *p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordGame applies fn to the locked profile and inserts the game result it
// returns in the same transaction.
func (r *Repository) RecordGame(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) (*domain.GameResult, error)) (*domain.Profile, *domain.GameResult, error) {
	var (
		updated *domain.Profile
		result  *domain.GameResult
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		p, err := lockProfile(ctx, tx, owner)
		if err != nil {
			return err
		}
		res, err := fn(p)
		if err != nil {
			return err
		}
		if err := writeProfile(ctx, tx, *p); err != nil {
			return err
		}
		if err := insertGameResult(ctx, tx, *res); err != nil {
			return err
		}
		updated, result = p, res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, result, nil
}

// InsertGameResult appends a game result
func (r *Repository) InsertGameResult(ctx context.Context, result domain.GameResult) error {
	return insertGameResult(ctx, r.pool, result)
}

// InsertRewardClaim appends a reward claim
func (r *Repository) InsertRewardClaim(ctx context.Context, claim domain.RewardClaim) error {
	query := `
		INSERT INTO reward_claims (id, player, reward_kind, metadata_uri, claimed_at, rating_at_claim)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		claim.ID,
		claim.Player[:],
		int16(claim.Kind),
		claim.MetadataURI,
		claim.ClaimedAt,
		int64(claim.RatingAtClaim),
	)
	if err != nil {
		return fmt.Errorf("inserting reward claim: %w", err)
	}
	return nil
}

// ListGameResults returns a player's results, newest first
func (r *Repository) ListGameResults(ctx context.Context, player domain.Identity, limit int) ([]domain.GameResult, error) {
	rows, err := r.pool.Query(ctx, listGameResultsQuery, player[:], limit)
	if err != nil {
		return nil, fmt.Errorf("listing game results: %w", err)
	}
	defer rows.Close()

	var results []domain.GameResult
	for rows.Next() {
		var (
			res         domain.GameResult
			playerBytes []byte
			mode        int16
			finalRating int64
		)
		err := rows.Scan(
			&res.ID,
			&playerBytes,
			&mode,
			&res.Timestamp,
			&res.Won,
			&res.RatingChange,
			&finalRating,
			&res.Label,
			&res.PnL,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning game result: %w", err)
		}
		copy(res.Player[:], playerBytes)
		res.Mode = domain.GameMode(mode)
		res.FinalRating = uint32(finalRating)
		results = append(results, res)
	}
	return results, rows.Err()
}

// ListRewardClaims returns a player's claims, newest first
func (r *Repository) ListRewardClaims(ctx context.Context, player domain.Identity, limit int) ([]domain.RewardClaim, error) {
	rows, err := r.pool.Query(ctx, listRewardClaimsQuery, player[:], limit)
	if err != nil {
		return nil, fmt.Errorf("listing reward claims: %w", err)
	}
	defer rows.Close()

	var claims []domain.RewardClaim
	for rows.Next() {
		var (
			claim       domain.RewardClaim
			playerBytes []byte
			kind        int16
			rating      int64
		)
		err := rows.Scan(
			&claim.ID,
			&playerBytes,
			&kind,
			&claim.MetadataURI,
			&claim.ClaimedAt,
			&rating,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning reward claim: %w", err)
		}
		copy(claim.Player[:], playerBytes)
		claim.Kind = domain.RewardKind(kind)
		claim.RatingAtClaim = uint32(rating)
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// ListProfiles retrieves every profile (for ladder sync)
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func lockProfile(ctx context.Context, tx pgx.Tx, owner domain.Identity) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE owner = $1 FOR UPDATE`
	p, err := scanProfile(tx.QueryRow(ctx, query, owner[:]))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("locking profile: %w", err)
	}
	return p, nil
}

func writeProfile(ctx context.Context, tx pgx.Tx, p domain.Profile) error {
	query := `
		UPDATE profiles SET
			rating = $2, peak_rating = $3, total_games = $4, wins = $5, losses = $6,
			predict_games = $7, battle_games = $8, current_streak = $9, best_streak = $10,
			last_played_at = $11
		WHERE owner = $1
	`
	_, err := tx.Exec(ctx, query,
		p.Owner[:],
		int64(p.Rating),
		int64(p.PeakRating),
		int64(p.TotalGames),
		int64(p.Wins),
		int64(p.Losses),
		int64(p.PredictGames),
		int64(p.BattleGames),
		int64(p.CurrentStreak),
		int64(p.BestStreak),
		p.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	return nil
}

func insertGameResult(ctx context.Context, q querier, res domain.GameResult) error {
	query := `
		INSERT INTO game_results (id, player, mode, created_at, won, rating_change, final_rating, label, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.Exec(ctx, query,
		res.ID,
		res.Player[:],
		int16(res.Mode),
		res.Timestamp,
		res.Won,
		res.RatingChange,
		int64(res.FinalRating),
		res.Label,
		res.PnL,
	)
	if err != nil {
		return fmt.Errorf("inserting game result: %w", err)
	}
	return nil
}

func profileArgs(p domain.Profile) []any {
	return []any{
		p.Owner[:],
		p.Username,
		int64(p.Rating),
		int64(p.PeakRating),
		int64(p.TotalGames),
		int64(p.Wins),
		int64(p.Losses),
		int64(p.PredictGames),
		int64(p.BattleGames),
		int64(p.CurrentStreak),
		int64(p.BestStreak),
		p.TotalEarnings,
		p.CreatedAt,
		p.LastPlayedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var (
		p                                   domain.Profile
		owner                               []byte
		rating, peak, total, wins, losses   int64
		predict, battle, streak, bestStreak int64
	)
	err := row.Scan(
		&owner,
		&p.Username,
		&rating,
		&peak,
		&total,
		&wins,
		&losses,
		&predict,
		&battle,
		&streak,
		&bestStreak,
		&p.TotalEarnings,
		&p.CreatedAt,
		&p.LastPlayedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(p.Owner[:], owner)
	p.Rating = uint32(rating)
	p.PeakRating = uint32(peak)
	p.TotalGames = uint32(total)
	p.Wins = uint32(wins)
	p.Losses = uint32(losses)
	p.PredictGames = uint32(predict)
	p.BattleGames = uint32(battle)
	p.CurrentStreak = uint32(streak)
	p.BestStreak = uint32(bestStreak)
	return &p, nil
}
