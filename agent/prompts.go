package agent

import (
	"fmt"
	"strings"

	"github.com/zaynkorai/research-agent/search"
)

// QueryWriterInstructions takes the query budget, the current date and the research topic.
const QueryWriterInstructions = `Your goal is to generate sophisticated and diverse web search queries for an automated web research tool that reads and synthesizes the results.

Instructions:
- Prefer a single search query. Only add another query when the question asks about several distinct aspects that one query cannot cover.
- Each query should focus on one specific aspect of the original question.
- Don't produce more than %[1]d queries.
- Don't generate multiple similar queries.
- Queries should gather the most current information. The current date is %[2]s.

Format:
- Respond with a JSON object with exactly these keys:
   - "rationale": brief explanation of why these queries are relevant
   - "query": a list of search queries

Context: %[3]s`

// WebSearcherInstructions takes the query and the current date.
const WebSearcherInstructions = `Conduct targeted searches to gather the most recent, credible information on "%[1]s" and synthesize it into a verifiable text artifact.

Instructions:
- Gather the most current information. The current date is %[2]s.
- Consolidate key findings while tracking the source of every specific piece of information.
- The output should be a well-written summary or report based on the search findings.
- Only include information found in the search results and relevant to the research topic. Don't make up any information.

Research Topic:
%[1]s`

// KeywordSummaryInstructions takes the query, the current date and the numbered search results.
const KeywordSummaryInstructions = WebSearcherInstructions + `

Cite the search results by appending their number in square brackets, such as [0] or [1, 2]. Numbering starts at [0].

Search Results:
%[3]s
/no_think`

// ReflectionInstructions takes the research topic, the current date and the summaries.
const ReflectionInstructions = `You are an expert research assistant analyzing summaries about "%[1]s".

Instructions:
- The current date is %[2]s.
- Identify knowledge gaps or areas that need deeper exploration and generate follow-up queries.
- If the summaries are sufficient to answer the user's question, don't generate a follow-up query.
- Avoid follow-up queries that are too broad or vague, or too narrow.

Requirements:
- Each follow-up query must be self-contained and include the context a web search needs.

Output Format:
- Respond with a JSON object with exactly these keys:
   - "is_sufficient": true or false
   - "knowledge_gap": what information is missing or needs clarification
   - "follow_up_queries": a list of specific queries addressing the gap

Summaries:
%[3]s`

// AnswerInstructions takes the research topic, the summaries and the current date.
const AnswerInstructions = `Generate a high-quality answer to the user's question based on the provided summaries.

Instructions:
- The current date is %[3]s.
- You MUST keep every citation from the summaries, written exactly as it appears, e.g. [label](token).
- Order the citations in the answer to match their order in the summaries.
- The answer should be well-structured, concise, and directly address the user's question.
- You MUST answer in the same language as the user's question.

User Context:
- %[1]s

Summaries:
%[2]s`

func formatSearchResults(results []search.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return strings.TrimSpace(b.String())
}
