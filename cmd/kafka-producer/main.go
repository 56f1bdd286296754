package main

import (
	"bytes"
	"crypto/ed25519"
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/elo-ledger/internal/auth"
	"github.com/elo-ledger/internal/domain"
	"github.com/elo-ledger/internal/kafka"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

var markets = []string{"BTC/USD", "ETH/USD", "SOL/USD", "BNB/USD", "XRP/USD"}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// simPlayer is a generated player plus a local estimate of its profile, used
// to produce plausible deltas
type simPlayer struct {
	key     ed25519.PrivateKey
	id      domain.Identity
	profile domain.Profile
}

func newSimPlayer(idx int) (*simPlayer, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, err
	}
	id, err := domain.IdentityFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	profile, err := domain.NewProfile(id, getPlayerName(idx), time.Now())
	if err != nil {
		return nil, err
	}
	return &simPlayer{key: priv, id: id, profile: *profile}, nil
}

// createProfile registers the player through the HTTP API; an existing
// profile is not an error
func createProfile(client *http.Client, apiURL, audience string, p *simPlayer) error {
	token, err := auth.Sign(p.key, audience, time.Now(), time.Minute)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"username": p.profile.Username})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(apiURL, "/")+"/api/v1/profiles", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// nextOutcome simulates one game for p and advances its local profile
func nextOutcome(p *simPlayer, rng *rand.Rand) (domain.GameMode, domain.GameOutcome) {
	var (
		mode  domain.GameMode
		won   bool
		delta int32
	)
	if rng.Intn(2) == 0 {
		mode = domain.ModePredictBattle
		won = rng.Intn(100) < 55
		delta = domain.PredictBattleDelta(won, p.profile.CurrentStreak)
	} else {
		mode = domain.ModeBattleRoyale
		opponent := uint32(rng.Intn(800) + 800)
		won = rng.Float64() < domain.ExpectedScore(float64(p.profile.Rating), float64(opponent))
		score := 0.0
		if won {
			score = 1
		}
		delta = domain.BattleRoyaleDelta(p.profile.Rating, opponent, score, p.profile.TotalGames)
	}

	p.profile = domain.ApplyRating(p.profile, domain.RatingUpdate{Delta: delta, Won: won, Mode: mode}, time.Now())

	pnl := int64(rng.Intn(2000))
	if !won {
		pnl = -pnl
	}
	return mode, domain.GameOutcome{
		Won:   won,
		Delta: delta,
		Label: markets[rng.Intn(len(markets))],
		PnL:   pnl,
	}
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-outcomes", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:8080", "Ledger HTTP API used to create profiles")
	audience := flag.String("audience", "elo-ledger", "Identity token audience")
	totalPlayers := flag.Int("players", 200, "Total number of players to create")
	updatesPerSecond := flag.Int("rate", 50, "Game outcomes per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Kafka Game Outcome Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  API:              %s\n", *apiURL)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Outcomes/sec:     %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Create players
	fmt.Printf("Creating %d players...\n", *totalPlayers)
	httpClient := &http.Client{Timeout: 5 * time.Second}
	players := make([]*simPlayer, 0, *totalPlayers)
	for i := 0; i < *totalPlayers; i++ {
		p, err := newSimPlayer(i)
		if err != nil {
			log.Fatalf("Failed to generate player: %v", err)
		}
		if err := createProfile(httpClient, *apiURL, *audience, p); err != nil {
			log.Fatalf("Failed to create profile %s: %v", p.profile.Username, err)
		}
		players = append(players, p)
		fmt.Printf("\r  Progress: %d/%d players", i+1, *totalPlayers)
	}
	fmt.Printf("\n✓ Created %d players\n\n", *totalPlayers)

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func() {
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	// Send message helper
	sendOutcome := func(p *simPlayer, mode domain.GameMode, outcome domain.GameOutcome) {
		token, err := auth.Sign(p.key, *audience, time.Now(), time.Minute)
		if err != nil {
			log.Printf("Failed to sign token: %v", err)
			return
		}
		data, err := json.Marshal(kafka.OutcomeMessage{
			Token: token,
			Mode:  mode,
			Won:   outcome.Won,
			Delta: outcome.Delta,
			Label: outcome.Label,
			PnL:   outcome.PnL,
		})
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		// Keyed by player so one player's games stay ordered
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(p.id.String()),
			Value: sarama.ByteEncoder(data),
		}
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("Streaming game outcomes (%d/sec). Press Ctrl+C to stop\n\n", *updatesPerSecond)

	interval := time.Second / time.Duration(*updatesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var updateCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			p := players[rng.Intn(len(players))]
			mode, outcome := nextOutcome(p, rng)
			sendOutcome(p, mode, outcome)
			atomic.AddInt64(&updateCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Outcomes: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&updateCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
