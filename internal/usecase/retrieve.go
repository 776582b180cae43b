package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ragvault/config"
	"ragvault/internal/adapter/cache"
	"ragvault/internal/adapter/embedding"
	"ragvault/internal/adapter/store"
	"ragvault/internal/domain"
	"ragvault/internal/logging"
	"ragvault/internal/port"
)

const (
	DefaultContextSize = 3
	MaxContextSize     = 10

	MinQuestionLength = 10
	MaxQuestionLength = 1000
)

// NoContextAnswer is returned by Ask when nothing relevant is indexed.
const NoContextAnswer = "Sorry, I could not find any relevant context for this question."

// SearchUseCase handles search and question answering over the store.
type SearchUseCase struct {
	store     *store.VectorStore
	gateway   *embedding.Gateway
	cache     *cache.QueryCache
	generator port.Generator
	cfg       config.RetrieveConfig
	logger    *slog.Logger
}

// NewSearchUseCase creates a search use case. queryCache and generator may be nil.
func NewSearchUseCase(
	st *store.VectorStore,
	gateway *embedding.Gateway,
	queryCache *cache.QueryCache,
	generator port.Generator,
	cfg config.RetrieveConfig,
	logger *slog.Logger,
) *SearchUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &SearchUseCase{
		store:     st,
		gateway:   gateway,
		cache:     queryCache,
		generator: generator,
		cfg:       cfg,
		logger:    logging.OrDefault(logger),
	}
}

// Search embeds query and returns the k most similar chunks.
func (u *SearchUseCase) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidArgument)
	}
	if k <= 0 {
		k = u.cfg.TopK
	}

	gen := u.store.Generation()
	if u.cache != nil {
		if results, ok := u.cache.Get(query, k, gen); ok {
			return results, nil
		}
	}

	vec, err := u.gateway.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := u.store.Search(vec, k)
	if err != nil {
		return nil, err
	}

	if u.cfg.MinScore > 0 {
		results = u.filterByThreshold(results)
	}

	if u.cache != nil {
		u.cache.Put(query, k, gen, results)
	}
	return results, nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *SearchUseCase) filterByThreshold(results []domain.SearchResult) []domain.SearchResult {
	filtered := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score >= u.cfg.MinScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Ask answers question from the contextSize best chunks. A contextSize of 0
// means DefaultContextSize.
func (u *SearchUseCase) Ask(ctx context.Context, question string, contextSize int) (domain.Answer, error) {
	if contextSize == 0 {
		contextSize = DefaultContextSize
	}
	if contextSize < 1 || contextSize > MaxContextSize {
		return domain.Answer{}, fmt.Errorf("%w: context_size must be between 1 and %d", domain.ErrInvalidArgument, MaxContextSize)
	}
	question = strings.TrimSpace(question)
	if n := utf8.RuneCountInString(question); n < MinQuestionLength || n > MaxQuestionLength {
		return domain.Answer{}, fmt.Errorf("%w: question must be %d to %d characters, got %d",
			domain.ErrInvalidArgument, MinQuestionLength, MaxQuestionLength, n)
	}

	results, err := u.Search(ctx, question, contextSize)
	if err != nil {
		return domain.Answer{}, err
	}
	if len(results) == 0 {
		u.logger.Warn("no context found for question")
		return domain.Answer{Answer: NoContextAnswer, Context: []domain.SearchResult{}}, nil
	}

	if u.generator == nil {
		return domain.Answer{}, domain.ErrGeneratorUnavailable
	}

	answer, err := u.generator.Generate(ctx, buildPrompt(question, results))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	u.logger.Info("answered question", "model", u.generator.ModelName(), "context", len(results))
	return domain.Answer{Answer: answer, Context: results}, nil
}

func buildPrompt(question string, results []domain.SearchResult) string {
	var b strings.Builder
	b.WriteString("Use the context below to answer the question. ")
	b.WriteString("If the context does not contain enough information, say so.\n\nContext:\n")
	for _, r := range results {
		b.WriteString(r.Metadata.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer clearly and point out anything the context leaves open.")
	return b.String()
}
