// Package prompts builds the message sequences the pipeline sends to
// the llm.Client at each phase, and parses the backend's replies back
// into structured results: few-shot "thank you for providing" style
// acknowledgment turns followed by the actual triage, analyze, or
// refine question.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/jbellis/llmap/llm"
	"github.com/jbellis/llmap/source"
)

// Asker is the subset of *llm.Client the prompt builders need, so tests
// can substitute a fake without spinning up a real backend.
type Asker interface {
	Ask(ctx context.Context, messages []llm.Message, model string, progress llm.ProgressSink) (*llm.Response, error)
	AskRefine(ctx context.Context, messages []llm.Message, model string, progress llm.ProgressSink) (*llm.Response, error)
}

const systemAnalyst = "You are a helpful assistant designed to analyze and explain source code."
const systemCollator = "You are a helpful assistant designed to collate source code."

// TriageSkeletons asks which of the given skeletons could plausibly be
// relevant to question, and returns the subset of file paths the model
// named. The model is instructed to answer with one path per line, so
// parsing is a simple line-oriented substring match against the
// skeletons' own paths rather than a separate structured format —
// matching the original's approach of trusting the model's path
// echoing over asking it to emit JSON.
func TriageSkeletons(ctx context.Context, asker Asker, model string, skeletons []source.Text, question string, progress llm.ProgressSink) ([]string, error) {
	var combined strings.Builder
	for i, skel := range skeletons {
		if i > 0 {
			combined.WriteString("\n\n")
		}
		fmt.Fprintf(&combined, "### FILE: %s\n%s\n", skel.FilePath, skel.Text)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemAnalyst},
		{Role: llm.RoleUser, Content: combined.String()},
		{Role: llm.RoleAssistant, Content: "Thank you for providing your source code skeletons for analysis."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(`I have given you multiple file skeletons, each labeled with "### FILE: path".
Evaluate each skeleton for relevance to the following question:
`+"```"+`
%s
`+"```"+`

Think about whether the skeleton provides sufficient information to determine relevance:
- If the skeleton clearly indicates irrelevance to the question, eliminate it from consideration.
- If the skeleton clearly shows that the code is relevant to the question,
  OR if implementation details are needed to determine relevance, output its FULL path.
List ONLY the file paths that appear relevant to answering the question.
Output one path per line. If a file is not relevant, do not list it at all.`, question)},
	}

	resp, err := asker.Ask(ctx, messages, model, progress)
	if err != nil {
		return nil, err
	}
	return parseRelevantPaths(resp.Content, skeletons), nil
}

// parseRelevantPaths keeps only the skeleton paths the model's reply
// actually mentions, preserving the caller's original ordering rather
// than the model's. A path is considered mentioned if it appears as a
// substring of some line in the reply: models routinely add bullets,
// backticks, or leading dashes around the path they're naming.
func parseRelevantPaths(reply string, skeletons []source.Text) []string {
	lines := strings.Split(reply, "\n")
	var relevant []string
	for _, skel := range skeletons {
		for _, line := range lines {
			if strings.Contains(line, skel.FilePath) {
				relevant = append(relevant, skel.FilePath)
				break
			}
		}
	}
	return relevant
}

// AnalyzeChunk asks for a relevance evaluation of one chunk of source,
// returning a source.Text carrying the model's analysis under the
// original file path so later phases can still attribute it correctly.
func AnalyzeChunk(ctx context.Context, asker Asker, model string, chunk source.Text, question string, progress llm.ProgressSink) (source.Text, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemAnalyst},
		{Role: llm.RoleUser, Content: chunk.Text},
		{Role: llm.RoleAssistant, Content: "Thank you for providing your source code for analysis."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(`Evaluate the above source code for relevance to the following question:
`+"```"+`
%s
`+"```"+`

Give an overall summary, then give the most relevant section(s) of code, if any.
Prefer to give relevant code in units of functions, classes, or methods, rather
than isolated lines.`, question)},
	}

	resp, err := asker.Ask(ctx, messages, model, progress)
	if err != nil {
		return source.Text{}, err
	}
	return source.Text{FilePath: chunk.FilePath, Text: resp.Content}, nil
}

// RefineContext runs the two-pass refine prompt over one collated group
// of per-file analyses, asking the refine model to keep only the
// material relevant to question and then take a second look at its own
// answer before returning both passes concatenated.
func RefineContext(ctx context.Context, asker Asker, model string, group []source.Text, question string, progress llm.ProgressSink) (string, error) {
	var combined strings.Builder
	for i, analysis := range group {
		if i > 0 {
			combined.WriteString("\n\n")
		}
		fmt.Fprintf(&combined, "File: %s\n%s", analysis.FilePath, analysis.Text)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemCollator},
		{Role: llm.RoleUser, Content: combined.String()},
		{Role: llm.RoleAssistant, Content: "Thank you for providing your source code fragments."},
		{Role: llm.RoleUser, Content: fmt.Sprintf(`The above text contains analysis of multiple source files related to this question:
`+"```"+`
%s
`+"```"+`

Extract only the most relevant context and code sections that help answer the question.
Remove any irrelevant files completely, but preserve file paths for the relevant code fragments.
Include the relevant code fragments as-is; do not truncate, summarize, or modify them.

DO NOT include additional commentary or analysis of the provided text.`, question)},
	}

	firstResp, err := asker.AskRefine(ctx, messages, model, progress)
	if err != nil {
		return "", err
	}

	messages = append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: firstResp.Content},
		llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(`Take one more look and make sure you didn't miss anything important for answering
the question:
`+"```"+`
%s
`+"```"+``, question)},
	)

	secondResp, err := asker.AskRefine(ctx, messages, model, progress)
	if err != nil {
		return "", err
	}

	return firstResp.Content + "\n\n" + secondResp.Content, nil
}
