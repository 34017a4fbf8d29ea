package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	assistantmodel "github.com/zhouzirui/ga-webserver/backend/internal/model/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/model/exchange"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/assistant"
	"github.com/zhouzirui/ga-webserver/backend/internal/service/journal"
)

// Assistant 抽象会话，便于测试与替换实现
type Assistant interface {
	Assist(ctx context.Context, textQuery string) (assistantmodel.Result, error)
}

// Service runs exchanges on behalf of the HTTP surfaces and journals each one.
type Service struct {
	assistant Assistant
	journal   *journal.Service
}

// NewService creates a relay. journal may be nil.
func NewService(a Assistant, j *journal.Service) *Service {
	return &Service{assistant: a, journal: j}
}

// Send performs one exchange for endpoint. The returned entry is populated
// whether or not the exchange failed.
func (s *Service) Send(ctx context.Context, endpoint, textQuery string) (exchange.Entry, error) {
	entry := exchange.Entry{
		Endpoint:  endpoint,
		Query:     textQuery,
		StartedAt: time.Now().UTC(),
	}

	result, err := s.assistant.Assist(ctx, textQuery)
	entry.Duration = time.Since(entry.StartedAt)
	entry.DisplayText = result.DisplayText
	entry.HasDisplayText = result.HasDisplayText
	entry.Code = assistant.CodeOf(err).String()
	if err != nil {
		entry.Error = err.Error()
	}

	if s.journal != nil {
		entry = s.journal.Record(ctx, entry)
	}

	if entry.Failed() {
		log.Warn().
			Err(err).
			Str("exchange_id", entry.ID).
			Str("endpoint", endpoint).
			Str("code", entry.Code).
			Dur("elapsed", entry.Duration).
			Msg("assistant exchange failed")
		return entry, err
	}

	log.Info().
		Str("exchange_id", entry.ID).
		Str("endpoint", endpoint).
		Str("query", textQuery).
		Str("display_text", entry.DisplayText).
		Dur("elapsed", entry.Duration).
		Msg("assistant exchange completed")
	return entry, nil
}
