// Package summary runs the formatter and reducer over a server's stored log.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/stellarlinkco/chatscribe/internal/config"
	"github.com/stellarlinkco/chatscribe/internal/convo"
	"github.com/stellarlinkco/chatscribe/internal/llm"
	"github.com/stellarlinkco/chatscribe/internal/reduce"
	"github.com/stellarlinkco/chatscribe/internal/store"
)

// ErrNoMessages is returned when a server has nothing logged.
var ErrNoMessages = errors.New("no messages logged for this chat")

// Resolvers supply display names for formatting.
type Resolvers struct {
	Users   convo.ResolveFunc
	Servers convo.ResolveFunc
}

// Service serializes reductions through a shared client. At most maxConcurrent
// reductions run at once; the rest wait for a slot or their context.
type Service struct {
	log       *store.Log
	client    llm.Client
	resolvers Resolvers
	budget    reduce.Budget
	options   llm.GenerationOptions
	sem       *semaphore.Weighted

	instruction      string
	queryInstruction string
}

func NewService(cfg config.SummaryConfig, l *store.Log, client llm.Client, resolvers Resolvers) *Service {
	slots := cfg.MaxConcurrent
	if slots <= 0 {
		slots = config.DefaultMaxConcurrent
	}
	maxChunk := cfg.MaxChunkSize
	if maxChunk <= 0 {
		maxChunk = config.DefaultMaxChunkSize
	}
	instruction := cfg.Instruction
	if instruction == "" {
		instruction = config.DefaultInstruction
	}
	queryInstruction := cfg.QueryInstruction
	if !strings.Contains(queryInstruction, "%s") {
		queryInstruction = config.DefaultQueryInstruction
	}

	return &Service{
		log:              l,
		client:           client,
		resolvers:        resolvers,
		budget:           reduce.Budget{MaxChunkSize: maxChunk},
		options:          llm.OptionsFromConfig(cfg),
		sem:              semaphore.NewWeighted(int64(slots)),
		instruction:      instruction,
		queryInstruction: queryInstruction,
	}
}

// Lines formats a server's log, oldest first.
func (s *Service) Lines(ctx context.Context, serverID int64) ([]reduce.Fragment, error) {
	records, err := s.log.ListByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoMessages
	}
	return convo.Format(ctx, records, s.resolvers.Users, s.resolvers.Servers)
}

// Summarize reduces a server's log with the configured instruction.
func (s *Service) Summarize(ctx context.Context, serverID int64) (string, error) {
	return s.run(ctx, serverID, s.instruction)
}

// Query reduces a server's log with question as the instruction.
func (s *Service) Query(ctx context.Context, serverID int64, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("empty question")
	}
	return s.run(ctx, serverID, fmt.Sprintf(s.queryInstruction, question))
}

func (s *Service) run(ctx context.Context, serverID int64, instruction string) (string, error) {
	lines, err := s.Lines(ctx, serverID)
	if err != nil {
		return "", err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	r := &reduce.Reducer{
		Client:  s.client,
		Budget:  s.budget,
		Options: s.options,
		Observe: func(st reduce.RoundStats) {
			log.Printf("[summary] server %d round %d: %d fragments in %d chunks, %d calls, %d left (forced=%v)",
				serverID, st.Round, st.Fragments, st.Chunks, st.Calls, st.Remaining, st.Forced)
		},
	}
	log.Printf("[summary] reducing %d lines for server %d", len(lines), serverID)
	result, err := r.Reduce(ctx, instruction, lines)
	if err != nil {
		return "", fmt.Errorf("summarize server %d: %w", serverID, err)
	}
	return strings.TrimSpace(result), nil
}
