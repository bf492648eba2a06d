// Package categorizer assigns budget categories to canonical transactions
// with a tool-calling model that can search the mail archive for evidence.
package categorizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/budget-updater/internal/archive"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
	"google.golang.org/genai"
)

const toolName = "search_archive"

// ContentGenerator is the model call. *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Options tune the agent.
type Options struct {
	Model         string
	MaxResults    int // cap on messages per search
	WindowDays    int // days either side of the transaction date
	BodyLimit     int // runes of each message body passed to the model
	MaxToolRounds int
}

// Agent categorizes one transaction at a time.
type Agent struct {
	gen         ContentGenerator
	searcher    archive.Searcher
	taxonomy    *Taxonomy
	sessions    *Sessions
	opts        Options
	instruction string
}

// NewAgent wires an agent. Zero options take the usual defaults.
func NewAgent(gen ContentGenerator, searcher archive.Searcher, taxonomy *Taxonomy, opts Options) *Agent {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 15
	}
	if opts.WindowDays < 0 {
		opts.WindowDays = 3
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 1000
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 4
	}
	return &Agent{
		gen:         gen,
		searcher:    searcher,
		taxonomy:    taxonomy,
		sessions:    NewSessions(),
		opts:        opts,
		instruction: buildInstruction(taxonomy),
	}
}

// Sessions exposes the session registry.
func (a *Agent) Sessions() *Sessions { return a.sessions }

// evidence tracks what the archive returned during one categorization.
type evidence struct {
	queries  []string
	messages int
}

// Categorize never fails: every problem becomes a manual-review result.
func (a *Agent) Categorize(ctx context.Context, tx *domain.StandardizedTransaction) (result domain.CategorizationResult) {
	log := logger.Component(ctx, "categorizer").With().
		Str("transaction_id", tx.TransactionID).
		Str("business_key", tx.BusinessKey).
		Logger()

	session := a.sessions.Open(tx.TransactionID)
	defer a.sessions.Close(session)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("categorization panicked")
			result = domain.CategorizationResult{
				Category:        FallbackServiceException,
				Summary:         fmt.Sprintf("Service exception: %v", r),
				EvidenceSummary: domain.NoEmailUsed,
			}
		}
	}()

	suggested := BuildQuery(tx.TransactionDate, tx.Amount, a.opts.WindowDays)
	session.Append(&genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildTransactionPrompt(tx, suggested)}},
	})

	var ev evidence
	text, err := a.converse(ctx, session, &ev)
	if err != nil {
		log.Warn().Err(err).Msg("model call failed")
		return domain.CategorizationResult{
			Category:        FallbackAgentError,
			Summary:         err.Error(),
			EvidenceQuery:   lastQuery(ev, suggested),
			EvidenceSummary: domain.NoEmailUsed,
		}
	}

	res, failure := Decode(text)
	if failure != nil {
		log.Warn().Str("fallback", failure.Category).Msg("unusable model output")
		res = failure.Result()
	} else if domain.IsManualReview(res.Category) {
		// Reason suffixes are reserved for our own fallbacks.
		res.Category = domain.ManualReview
	} else if verr := a.taxonomy.Validate(res.Category); verr != nil {
		log.Warn().Err(verr).Str("category", res.Category).Msg("category outside taxonomy")
		res.Category = domain.ManualReview
	} else {
		c, _ := a.taxonomy.Lookup(res.Category)
		res.Category = c.Name
	}

	if ev.messages == 0 {
		res.EvidenceSummary = domain.NoEmailUsed
	}
	if strings.TrimSpace(res.EvidenceQuery) == "" {
		res.EvidenceQuery = lastQuery(ev, suggested)
	}

	log.Info().
		Str("category", res.Category).
		Int("searches", len(ev.queries)).
		Int("messages", ev.messages).
		Msg("transaction categorized")
	return res
}

// converse runs the model until it answers in text. The first turn must call
// the search tool; after MaxToolRounds tool turns the model must answer.
func (a *Agent) converse(ctx context.Context, s *Session, ev *evidence) (string, error) {
	for round := 0; ; round++ {
		mode := genai.FunctionCallingConfigModeAuto
		switch {
		case round == 0:
			mode = genai.FunctionCallingConfigModeAny
		case round >= a.opts.MaxToolRounds:
			mode = genai.FunctionCallingConfigModeNone
		}

		resp, err := a.gen.GenerateContent(ctx, a.opts.Model, s.History, a.config(mode))
		if err != nil {
			return "", fmt.Errorf("converse: generate content (round %d): %w", round, err)
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", errors.New("converse: model returned no candidates")
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 || round >= a.opts.MaxToolRounds {
			return resp.Text(), nil
		}

		s.Append(resp.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: a.handleCall(ctx, call, ev),
			}})
		}
		s.Append(&genai.Content{Role: "user", Parts: parts})
	}
}

func (a *Agent) handleCall(ctx context.Context, call *genai.FunctionCall, ev *evidence) map[string]any {
	if call.Name != toolName {
		return archive.ToolResponse{Status: archive.StatusError, Error: fmt.Sprintf("unknown tool %q", call.Name)}.Map()
	}
	query, _ := call.Args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return archive.ToolResponse{Status: archive.StatusError, Error: "query is required"}.Map()
	}
	limit := a.opts.MaxResults
	if n := intArg(call.Args["max_results"]); n > 0 && n < limit {
		limit = n
	}
	ev.queries = append(ev.queries, query)

	msgs, err := a.searcher.Search(ctx, query, limit)
	if err != nil {
		l := logger.FromContext(ctx)
		l.Warn().Err(err).Str("query", query).Msg("archive search failed")
		return archive.ToolResponse{Status: archive.StatusError, Error: err.Error()}.Map()
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	for i := range msgs {
		msgs[i].Body = archive.Truncate(msgs[i].Body, a.opts.BodyLimit)
	}
	ev.messages += len(msgs)
	if len(msgs) == 0 {
		return archive.ToolResponse{Status: archive.StatusError}.Map()
	}
	return archive.ToolResponse{Status: archive.StatusSuccess, Emails: msgs}.Map()
}

func (a *Agent) config(mode genai.FunctionCallingConfigMode) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: a.instruction}}},
		Temperature:       genai.Ptr[float32](0.2),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        toolName,
				Description: "Search the user's email archive for receipts and invoices matching a transaction.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "Mail search query with amount spellings combined by OR and after:/before: date bounds.",
						},
						"max_results": {
							Type:        genai.TypeInteger,
							Description: fmt.Sprintf("Maximum number of messages to return, at most %d.", a.opts.MaxResults),
						},
					},
					Required: []string{"query"},
				},
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		},
	}
	if mode == genai.FunctionCallingConfigModeAny {
		cfg.ToolConfig.FunctionCallingConfig.AllowedFunctionNames = []string{toolName}
	}
	return cfg
}

func intArg(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case float32:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	}
	return 0
}

func lastQuery(ev evidence, fallback string) string {
	if len(ev.queries) > 0 {
		return ev.queries[len(ev.queries)-1]
	}
	return fallback
}
