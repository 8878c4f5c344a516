package mcp

import (
	"context"
	"time"

	"github.com/kgraglabs/kgrag/internal/core/domain"
)

type mockQueryService struct {
	answer *domain.Answer
	err    error

	lastPrompt string
	lastOpts   domain.QueryOptions
}

func (m *mockQueryService) Query(_ context.Context, prompt string, opts domain.QueryOptions) (*domain.Answer, error) {
	m.lastPrompt = prompt
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

type mockIngestPipeline struct {
	events     []domain.IngestEvent
	backfilled int
	err        error

	lastRef   string
	lastForce bool
	lastLimit int
}

func (m *mockIngestPipeline) Ingest(_ context.Context, ref string, force bool) (<-chan domain.IngestEvent, error) {
	m.lastRef = ref
	m.lastForce = force
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan domain.IngestEvent, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (m *mockIngestPipeline) Backfill(_ context.Context, limit int) (int, error) {
	m.lastLimit = limit
	return m.backfilled, m.err
}

type mockSessionService struct {
	answer *domain.Answer
	state  *domain.SessionState
	err    error

	lastSessionID string
}

func (m *mockSessionService) Ask(_ context.Context, sessionID, _ string, _ domain.QueryOptions) (*domain.Answer, error) {
	m.lastSessionID = sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func (m *mockSessionService) Load(_ context.Context, sessionID string) (*domain.SessionState, error) {
	m.lastSessionID = sessionID
	if m.err != nil {
		return nil, m.err
	}
	if m.state == nil {
		return nil, domain.ErrNotFound
	}
	return m.state, nil
}

func (m *mockSessionService) Save(_ context.Context, _, role, content string) (domain.Turn, error) {
	return domain.Turn{Seq: 1, Role: role, Content: content, CreatedAt: time.Now()}, m.err
}

func (m *mockSessionService) Expire(_ context.Context, _ time.Duration) (int, error) {
	return 0, m.err
}
