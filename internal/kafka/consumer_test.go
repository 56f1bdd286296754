package kafka

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elo-ledger/internal/auth"
	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type reportCall struct {
	caller, owner domain.Identity
	mode          domain.GameMode
	outcome       domain.GameOutcome
}

type fakeReporter struct {
	calls []reportCall
	errs  []error
}

func (f *fakeReporter) ReportGame(ctx context.Context, caller, owner domain.Identity, mode domain.GameMode, outcome domain.GameOutcome) (*domain.GameReport, error) {
	f.calls = append(f.calls, reportCall{caller, owner, mode, outcome})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &domain.GameReport{}, nil
}

func newTestProcessor(reporter GameReporter) *processor {
	verifier := auth.NewVerifier(&config.AuthConfig{
		Audience:    "elo-ledger",
		MaxTokenAge: 10 * time.Minute,
	}, func() time.Time { return testNow })
	p := newProcessor(&config.KafkaConfig{RetryAttempts: 2, RetryDelay: time.Second}, reporter, verifier,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.sleep = func(time.Duration) {}
	return p
}

func signedPlayer(t *testing.T) (domain.Identity, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := domain.IdentityFromPublicKey(pub)
	require.NoError(t, err)
	token, err := auth.Sign(priv, "elo-ledger", testNow, 5*time.Minute)
	require.NoError(t, err)
	return id, token
}

func TestDecodeOutcome(t *testing.T) {
	id, token := signedPlayer(t)
	p := newTestProcessor(&fakeReporter{})

	value, err := json.Marshal(map[string]any{
		"token": token,
		"mode":  "battle",
		"won":   true,
		"delta": 18,
		"label": "SOL-1m",
		"pnl":   -250,
	})
	require.NoError(t, err)

	got, err := p.decode(value)
	require.NoError(t, err)
	assert.Equal(t, id, got.caller)
	assert.Equal(t, id, got.owner)
	assert.Equal(t, domain.ModeBattleRoyale, got.mode)
	assert.Equal(t, domain.GameOutcome{Won: true, Delta: 18, Label: "SOL-1m", PnL: -250}, got.outcome)
}

func TestDecodeOutcome_ExplicitPlayer(t *testing.T) {
	_, token := signedPlayer(t)
	other, _ := signedPlayer(t)
	p := newTestProcessor(&fakeReporter{})

	value := []byte(`{"token":"` + token + `","player":"` + other.String() + `","mode":"predict","won":false,"delta":-5}`)
	got, err := p.decode(value)
	require.NoError(t, err)
	assert.Equal(t, other, got.owner)
	assert.NotEqual(t, got.caller, got.owner)
}

func TestDecodeOutcome_Rejects(t *testing.T) {
	_, token := signedPlayer(t)
	p := newTestProcessor(&fakeReporter{})

	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"unknown mode", `{"token":"` + token + `","mode":"blitz"}`, domain.ErrInvalidMode},
		{"missing mode", `{"token":"` + token + `"}`, domain.ErrInvalidMode},
		{"bad token", `{"token":"nope","mode":"predict"}`, domain.ErrInvalidToken},
		{"bad player", `{"token":"` + token + `","player":"xx","mode":"predict"}`, domain.ErrInvalidIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.decode([]byte(tt.value))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := p.decode([]byte("not json"))
	assert.Error(t, err)
}

func TestProcessBatch_RetriesInfrastructureErrors(t *testing.T) {
	reporter := &fakeReporter{errs: []error{errors.New("connection reset"), nil}}
	p := newTestProcessor(reporter)

	p.processBatch(context.Background(), []pendingOutcome{{mode: domain.ModePredictBattle}})
	assert.Len(t, reporter.calls, 2)
}

func TestProcessBatch_DoesNotRetryRejections(t *testing.T) {
	reporter := &fakeReporter{errs: []error{domain.ErrUnauthorized, domain.ErrLabelTooLong, nil}}
	p := newTestProcessor(reporter)

	batch := []pendingOutcome{
		{mode: domain.ModePredictBattle},
		{mode: domain.ModeBattleRoyale},
		{mode: domain.ModeBattleRoyale},
	}
	p.processBatch(context.Background(), batch)
	assert.Len(t, reporter.calls, 3)
}

func TestProcessBatch_GivesUpAfterRetries(t *testing.T) {
	boom := errors.New("boom")
	reporter := &fakeReporter{errs: []error{boom, boom, boom, boom}}
	p := newTestProcessor(reporter)

	p.processBatch(context.Background(), []pendingOutcome{{mode: domain.ModePredictBattle}})
	assert.Len(t, reporter.calls, 3)
}
