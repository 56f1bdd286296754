package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

const ladderKey = "ladder:ratings"

// Ladder keeps the rating ladder in a Redis sorted set
type Ladder struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLadder creates a new Redis-backed ladder
func NewLadder(cfg *config.RedisConfig, logger *slog.Logger) (*Ladder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Ladder{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (l *Ladder) Close() error {
	return l.client.Close()
}

// Ping checks Redis connectivity
func (l *Ladder) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// playerInfoKey returns the Redis key for the player info cache
func playerInfoKey(player string) string {
	return fmt.Sprintf("player:%s:info", player)
}

// SetRating stores a player's rating and caches the username
func (l *Ladder) SetRating(ctx context.Context, player domain.Identity, username string, rating uint32) error {
	member := player.String()
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, ladderKey, redis.Z{
		Score:  float64(rating),
		Member: member,
	})
	pipe.HSet(ctx, playerInfoKey(member), "username", username)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("setting rating: %w", err)
	}
	return nil
}

// BatchRating is one entry of a bulk ladder load
type BatchRating struct {
	Player   domain.Identity
	Username string
	Rating   uint32
}

// BatchSetRatings loads many ratings using pipelining
func (l *Ladder) BatchSetRatings(ctx context.Context, ratings []BatchRating) error {
	if len(ratings) == 0 {
		return nil
	}

	pipe := l.client.Pipeline()
	for _, r := range ratings {
		member := r.Player.String()
		pipe.ZAdd(ctx, ladderKey, redis.Z{
			Score:  float64(r.Rating),
			Member: member,
		})
		pipe.HSet(ctx, playerInfoKey(member), "username", r.Username)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting ratings: %w", err)
	}
	return nil
}

// GetTopN returns the top N players (highest rating first)
func (l *Ladder) GetTopN(ctx context.Context, n int) ([]domain.LadderEntry, error) {
	return l.GetRange(ctx, 0, n-1)
}

// GetPlayerRank returns a player's rank and rating
func (l *Ladder) GetPlayerRank(ctx context.Context, player domain.Identity) (*domain.LadderEntry, error) {
	member := player.String()

	// Use pipeline to get rank, score and username together
	pipe := l.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, ladderKey, member)
	scoreCmd := pipe.ZScore(ctx, ladderKey, member)
	nameCmd := pipe.HGet(ctx, playerInfoKey(member), "username")
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrPlayerNotRanked
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	entry := newEntry(rank+1, player, score) // Convert 0-indexed to 1-indexed
	entry.Username = nameCmd.Val()
	return &entry, nil
}

// GetAroundPlayer returns the players within count ranks of a player
func (l *Ladder) GetAroundPlayer(ctx context.Context, player domain.Identity, count int) ([]domain.LadderEntry, error) {
	entry, err := l.GetPlayerRank(ctx, player)
	if err != nil {
		return nil, err
	}

	start, end := aroundRange(entry.Rank, count)
	return l.GetRange(ctx, start, end)
}

// aroundRange converts a 1-indexed rank into the 0-indexed window around it
func aroundRange(rank int64, count int) (int, int) {
	start := rank - int64(count) - 1
	if start < 0 {
		start = 0
	}
	end := rank + int64(count) - 1
	return int(start), int(end)
}

// GetRange returns players within a rank range (0-indexed, inclusive)
func (l *Ladder) GetRange(ctx context.Context, start, end int) ([]domain.LadderEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, ladderKey, int64(start), int64(end)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting range: %w", err)
	}

	entries := make([]domain.LadderEntry, 0, len(results))
	members := make([]string, 0, len(results))
	for i, result := range results {
		member, _ := result.Member.(string)
		player, err := domain.ParseIdentity(member)
		if err != nil {
			l.logger.Warn("skipping malformed ladder member", "member", member, "error", err)
			continue
		}
		entries = append(entries, newEntry(int64(start+i+1), player, result.Score))
		members = append(members, member)
	}

	if err := l.fillUsernames(ctx, entries, members); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetCount returns the number of ranked players
func (l *Ladder) GetCount(ctx context.Context) (int64, error) {
	count, err := l.client.ZCard(ctx, ladderKey).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}

// Reset clears the ladder
func (l *Ladder) Reset(ctx context.Context) error {
	if err := l.client.Del(ctx, ladderKey).Err(); err != nil {
		return fmt.Errorf("resetting ladder: %w", err)
	}
	return nil
}

func (l *Ladder) fillUsernames(ctx context.Context, entries []domain.LadderEntry, members []string) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := l.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(members))
	for i, member := range members {
		cmds[i] = pipe.HGet(ctx, playerInfoKey(member), "username")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("getting usernames: %w", err)
	}

	for i, cmd := range cmds {
		entries[i].Username = cmd.Val()
	}
	return nil
}

func newEntry(rank int64, player domain.Identity, score float64) domain.LadderEntry {
	rating := uint32(score)
	return domain.LadderEntry{
		Rank:   rank,
		Player: player,
		Rating: rating,
		Tier:   domain.TierFor(rating).Name,
	}
}
