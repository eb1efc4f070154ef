package service

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"ragchat/internal/models"
)

const groundedPromptTemplate = `You are a helpful AI assistant. Use the following pieces of context to answer the question at the end.
If you don't know the answer based on the context, just say that you don't know, don't try to make up an answer.

Context:
%s

Question: %s

Helpful Answer:`

const ungroundedPromptTemplate = `Question: %s

I don't have any relevant documents to answer this question. Please provide a general helpful response.`

// promptBuilder assembles grounding prompts under a token budget so a run of
// large passages cannot blow past the completion model's context window.
// When the tiktoken encoding assets are unavailable (offline hosts) it falls
// back to a four-characters-per-token heuristic.
type promptBuilder struct {
	enc    *tiktoken.Tiktoken
	budget int
}

func newPromptBuilder(budget int) *promptBuilder {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &promptBuilder{enc: enc, budget: budget}
}

// Build formats the chat prompt. With no hits it falls back to the
// ungrounded template asking for a general answer.
func (b *promptBuilder) Build(message string, hits []models.PassageHit) string {
	if len(hits) == 0 {
		return fmt.Sprintf(ungroundedPromptTemplate, message)
	}
	return fmt.Sprintf(groundedPromptTemplate, b.contextBlock(hits), message)
}

// contextBlock joins hits as numbered source blocks, dropping trailing hits
// once the token budget is spent. The first source is always included, token
// truncated if it alone exceeds the budget.
func (b *promptBuilder) contextBlock(hits []models.PassageHit) string {
	var blocks []string
	remaining := b.budget

	for i, hit := range hits {
		block := fmt.Sprintf("Source %d: %s", i+1, hit.Content)
		cost := b.count(block)
		if cost > remaining {
			if i == 0 && remaining > 0 {
				blocks = append(blocks, b.truncate(block, remaining))
			}
			break
		}
		blocks = append(blocks, block)
		remaining -= cost
	}
	return strings.Join(blocks, "\n\n")
}

func (b *promptBuilder) count(s string) int {
	if b.enc != nil {
		return len(b.enc.Encode(s, nil, nil))
	}
	return (len([]rune(s)) + 3) / 4
}

func (b *promptBuilder) truncate(s string, tokens int) string {
	if b.enc != nil {
		encoded := b.enc.Encode(s, nil, nil)
		if len(encoded) <= tokens {
			return s
		}
		return b.enc.Decode(encoded[:tokens])
	}
	r := []rune(s)
	if len(r) <= tokens*4 {
		return s
	}
	return string(r[:tokens*4])
}
