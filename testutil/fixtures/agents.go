// =============================================================================
// 📦 测试数据工厂 - Agent 目录
// =============================================================================
// 提供预定义的 Agent 卡片，用于分析器、执行器与目录测试
// =============================================================================
package fixtures

import "github.com/BaSui01/agentrelay/agent/directory"

// SearchAgent 返回检索类 Agent
func SearchAgent() directory.Agent {
	return directory.Agent{
		ID:          "agent-search",
		Name:        "Search",
		Description: "Searches the web and ticket trackers",
		URL:         "http://search.local",
		Skills: []directory.Skill{
			{ID: "web-search", Name: "Web Search", Tags: []string{"search"}},
		},
		Status: directory.AgentStatusOnline,
	}
}

// DocsAgent 返回文档类 Agent
func DocsAgent() directory.Agent {
	return directory.Agent{
		ID:          "agent-docs",
		Name:        "Docs",
		Description: "Writes pages to the team wiki",
		URL:         "http://docs.local",
		Skills: []directory.Skill{
			{ID: "create-page", Name: "Create Page", Tags: []string{"wiki", "confluence"}},
		},
		Status: directory.AgentStatusOnline,
	}
}

// AnalystAgent 返回分析类 Agent
func AnalystAgent() directory.Agent {
	return directory.Agent{
		ID:          "agent-analyst",
		Name:        "Analyst",
		Description: "Analyzes project health and summarizes findings",
		URL:         "http://analyst.local",
		Skills: []directory.Skill{
			{ID: "project-analysis", Name: "Project Analysis", Tags: []string{"project", "report"}},
		},
		Status: directory.AgentStatusOnline,
	}
}

// WriterAgent 返回内容生成类 Agent
func WriterAgent() directory.Agent {
	return directory.Agent{
		ID:          "agent-writer",
		Name:        "Writer",
		Description: "Generates kubernetes yaml and config files",
		URL:         "http://writer.local",
		Status:      directory.AgentStatusOnline,
	}
}

// SimpleChain 返回 [Search, Docs]
func SimpleChain() []directory.Agent {
	return []directory.Agent{SearchAgent(), DocsAgent()}
}

// Catalog 返回全部预置 Agent，顺序固定
func Catalog() []directory.Agent {
	return []directory.Agent{SearchAgent(), DocsAgent(), AnalystAgent(), WriterAgent()}
}
