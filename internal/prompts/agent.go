package prompts

import (
	"fmt"

	"github.com/nugget/lumen/internal/locale"
)

// ToolBudgetExhausted is sent when the tool recursion bound is reached.
// The model then answers once more without tools.
func ToolBudgetExhausted(lang locale.Lang, depth int) string {
	return lang.Pick(
		fmt.Sprintf("Tool budget exhausted after %d rounds of tool calls. Do not call any more tools; answer the user now with what you have.", depth),
		fmt.Sprintf("工具调用已达上限（%d 轮）。不要再调用任何工具，请根据已有信息直接回答用户。", depth))
}

// EmptyResponseFallback is shown when the model produced no content at
// all.
func EmptyResponseFallback(lang locale.Lang) string {
	return lang.Pick(
		"I processed your request but wasn't able to compose a response. Please try again.",
		"我处理了你的请求，但没能生成回复，请重试。")
}

// SearchContext introduces retrieved material injected before a turn.
// kind is "web", "knowledge" or "page".
func SearchContext(lang locale.Lang, kind, body string) string {
	var head string
	switch kind {
	case "knowledge":
		head = lang.Pick("Relevant excerpts from the user's knowledge bag:", "用户知识库中的相关内容：")
	case "page":
		head = lang.Pick("Content of the page the user linked:", "用户提供的网页内容：")
	default:
		head = lang.Pick("Web search results for the user's question:", "针对用户问题的联网搜索结果：")
	}
	return head + "\n\n" + body + "\n\n" + lang.Pick(
		"Use this material when it helps and cite sources by title.",
		"在有帮助时使用这些资料，并按标题注明来源。")
}
