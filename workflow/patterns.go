package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/agentrelay/agent/directory"
)

// Pattern names double as workflow names for pattern-built plans.
const (
	PatternCreateAndSave      = "create_and_save"
	PatternSearchAndDocument  = "search_and_document"
	PatternAnalyzeAndReport   = "analyze_and_report"
	PatternSavePrevious       = "save_previous"
	PatternAnalyzePrevious    = "analyze_previous"
	patternWorkflowReasoning  = "Pattern-based workflow detection"
	patternChainReasoning     = "Pattern-based chain detection"
	defaultDocumentSavePrompt = "Save the previous result as a document."
)

// keywordPattern fires when the message holds one trigger and one second word.
type keywordPattern struct {
	Name        string
	Description string
	Triggers    []string
	Second      []string
}

func (p keywordPattern) matches(lower string) bool {
	return containsAny(lower, p.Triggers) && containsAny(lower, p.Second)
}

// Ordered; the first match wins.
var workflowPatterns = []keywordPattern{
	{
		Name:        PatternCreateAndSave,
		Description: "Generate content, then save it as a document",
		Triggers:    []string{"만들고", "생성하고", "작성하고", "create", "generate", "write"},
		Second:      []string{"저장", "문서로", "confluence", "컨플루언스", "save", "document", "wiki"},
	},
	{
		Name:        PatternSearchAndDocument,
		Description: "Search, then document the results",
		Triggers:    []string{"검색하고", "찾고", "조회하고", "search", "find", "look up"},
		Second:      []string{"정리", "요약", "문서로", "저장", "save", "document", "summarize", "write up"},
	},
	{
		Name:        PatternAnalyzeAndReport,
		Description: "Analyze, then produce a report",
		Triggers:    []string{"분석하고", "확인하고", "analyze", "analyse", "review"},
		Second:      []string{"보고서", "리포트", "문서", "report", "document"},
	},
}

var previousTriggers = []string{
	"이 결과", "이걸", "이거", "위 내용", "방금",
	"this result", "that result", "the result above", "previous result", "the above", "this content",
}

// Only consulted when the previous turn's output is available.
var chainPatterns = []keywordPattern{
	{
		Name:        PatternSavePrevious,
		Description: "Save the previous response as a document",
		Triggers:    append(append([]string(nil), previousTriggers...), "저장해줘", "문서로 만들어줘"),
		Second:      []string{"confluence", "컨플루언스", "문서", "저장", "document", "save", "wiki"},
	},
	{
		Name:        PatternAnalyzePrevious,
		Description: "Analyze the previous response",
		Triggers:    previousTriggers,
		Second:      []string{"요약", "정리", "분석", "summarize", "summary", "analyze", "analyse"},
	},
}

// Agent selection keywords, matched against name, description and skills.
var (
	contentAgentKeywords  = []string{"yaml", "kubernetes", "k8s", "config", "설정", "생성", "generat", "content"}
	documentAgentKeywords = []string{"confluence", "문서", "document", "doc", "wiki", "페이지"}
	searchAgentKeywords   = []string{"jira", "이슈", "issue", "search", "검색"}
	analysisAgentKeywords = []string{"jira", "이슈", "issue", "project", "프로젝트", "analy"}
	summaryAgentKeywords  = []string{"analy", "summar", "분석", "요약", "report"}
)

// PatternAnalyzer builds plans from a fixed keyword catalog. It is fully
// deterministic.
type PatternAnalyzer struct{}

// Analyze returns a plan or nil when no pattern applies.
func (PatternAnalyzer) Analyze(message string, agents []directory.Agent, previous string) *Workflow {
	lower := strings.ToLower(message)

	for _, p := range workflowPatterns {
		if p.matches(lower) {
			return buildPatternWorkflow(p, message, agents)
		}
	}

	if strings.TrimSpace(previous) == "" {
		return nil
	}
	for _, p := range chainPatterns {
		if p.matches(lower) {
			return buildChainWorkflow(p, message, previous, agents)
		}
	}
	return nil
}

func buildPatternWorkflow(p keywordPattern, message string, agents []directory.Agent) *Workflow {
	wf := New(p.Name, p.Description)
	wf.Reasoning = patternWorkflowReasoning

	switch p.Name {
	case PatternCreateAndSave:
		doc, ok := findAgentByKeywords(agents, documentAgentKeywords, "")
		if !ok {
			return nil
		}
		if content, ok := findAgentByKeywords(agents, contentAgentKeywords, doc.ID); ok {
			gen := NewStep(content.ID, content.Name, "generate", extractFirstTask(message))
			gen.TaskDescription = "Generate content"
			gen.OutputType = "yaml"

			save := NewStep(doc.ID, doc.Name, "save_document", defaultDocumentSavePrompt)
			save.TaskDescription = "Save the generated content as a document"
			save.UsePreviousOutput = true
			wf.Steps = []*Step{gen, save}
		} else {
			create := NewStep(doc.ID, doc.Name, "create_document", message)
			create.TaskDescription = "Create a document"
			wf.Steps = []*Step{create}
		}

	case PatternSearchAndDocument:
		search, ok := findAgentByKeywords(agents, searchAgentKeywords, "")
		if !ok {
			return nil
		}
		doc, ok := findAgentByKeywords(agents, documentAgentKeywords, search.ID)
		if !ok {
			return nil
		}
		s1 := NewStep(search.ID, search.Name, "search", extractFirstTask(message))
		s1.TaskDescription = "Search"
		s1.OutputType = "text"

		s2 := NewStep(doc.ID, doc.Name, "create_document", "Organize the search results into a document.")
		s2.TaskDescription = "Document the search results"
		s2.UsePreviousOutput = true
		wf.Steps = []*Step{s1, s2}

	case PatternAnalyzeAndReport:
		analyst, ok := findAgentByKeywords(agents, analysisAgentKeywords, "")
		if !ok {
			return nil
		}
		doc, hasDoc := findAgentByKeywords(agents, documentAgentKeywords, analyst.ID)
		if !hasDoc {
			s := NewStep(analyst.ID, analyst.Name, "analyze", message)
			s.TaskDescription = "Analyze"
			wf.Steps = []*Step{s}
			break
		}
		s1 := NewStep(analyst.ID, analyst.Name, "analyze", extractFirstTask(message))
		s1.TaskDescription = "Analyze"
		s1.OutputType = "text"

		s2 := NewStep(doc.ID, doc.Name, "create_document", reportTask(message))
		s2.TaskDescription = "Create a report document from the analysis"
		s2.UsePreviousOutput = true
		s2.OutputType = "url"
		wf.Steps = []*Step{s1, s2}

	default:
		return nil
	}
	return wf
}

func buildChainWorkflow(p keywordPattern, message, previous string, agents []directory.Agent) *Workflow {
	wf := New(p.Name, "Chain on the previous response: "+p.Name)
	wf.Reasoning = patternChainReasoning

	switch p.Name {
	case PatternSavePrevious:
		doc, ok := findAgentByKeywords(agents, documentAgentKeywords, "")
		if !ok {
			return nil
		}
		prompt := fmt.Sprintf("Save the following content as a document:\n\n```\n%s\n```\n\nChoose a title and format that fit the content.", previous)
		s := NewStep(doc.ID, doc.Name, "save_document", prompt)
		s.TaskDescription = "Save the previous response as a document"
		wf.Steps = []*Step{s}

	case PatternAnalyzePrevious:
		analyst, ok := findAgentByKeywords(agents, summaryAgentKeywords, "")
		if !ok {
			return nil
		}
		prompt := fmt.Sprintf("%s\n\n```\n%s\n```", message, previous)
		s := NewStep(analyst.ID, analyst.Name, "analyze", prompt)
		s.TaskDescription = "Analyze the previous response"
		wf.Steps = []*Step{s}

	default:
		return nil
	}
	return wf
}

// findAgentByKeywords returns the first agent in catalog order whose search
// text holds any keyword, preferring agents other than exclude.
func findAgentByKeywords(agents []directory.Agent, keywords []string, exclude string) (directory.Agent, bool) {
	var fallback *directory.Agent
	for i := range agents {
		if !containsAny(agents[i].SearchText(), keywords) {
			continue
		}
		if exclude == "" || agents[i].ID != exclude {
			return agents[i], true
		}
		if fallback == nil {
			fallback = &agents[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return directory.Agent{}, false
}

var (
	koreanConnectors  = []string{"하고", "그리고", "후에", "다음에"}
	englishConnectors = regexp.MustCompile(`(?i)\s+(and then|and|then)\s+`)
)

// extractFirstTask returns the part of a compound request before its first
// connector.
func extractFirstTask(message string) string {
	for _, conn := range koreanConnectors {
		if idx := strings.Index(message, conn); idx > 0 {
			return strings.TrimSpace(message[:idx]) + "해줘"
		}
	}
	if loc := englishConnectors.FindStringIndex(message); loc != nil && loc[0] > 0 {
		return strings.TrimSpace(message[:loc[0]])
	}
	return message
}

var projectName = regexp.MustCompile(`([A-Z][A-Z0-9]+)\s*(?:프로젝트|[Pp]roject)`)

func reportTask(message string) string {
	if m := projectName.FindStringSubmatch(message); m != nil {
		return fmt.Sprintf("Create a document titled '%s project report' from this analysis. Keep it structured and analytical.", m[1])
	}
	return "Create a structured report document from this analysis."
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
