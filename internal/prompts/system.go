package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/locale"
)

const baseSystemEN = `You are %s, a personal assistant running on the user's phone.

Answer in the language the user writes in. Be direct and concise; use markdown when it helps readability.
Current time: %s.`

const baseSystemZH = `你是%s，运行在用户手机上的个人助理。

使用用户提问的语言回答。回答直接、简洁，必要时使用 markdown 排版。
当前时间：%s。`

// BaseSystemPrompt returns the default system prompt for name at now.
func BaseSystemPrompt(lang locale.Lang, name string, now time.Time) string {
	if name == "" {
		name = "Lumen"
	}
	stamp := now.Format("2006-01-02 15:04 Monday MST")
	return fmt.Sprintf(lang.Pick(baseSystemEN, baseSystemZH), name, stamp)
}

const toolGuidanceEN = `## Tools
You can call tools. Call one only when it is needed to answer: greetings and small talk need none.
- Prefer search_knowledge_bag for the user's own documents and search_online for current events.
- Use save_memory when the user shares lasting personal facts, and retrieve_memory before answering personal questions.
- Dates passed to tools use YYYY-MM-DD or YYYY-MM-DD HH:MM in the user's time zone.
- When a tool reports that a service is unavailable, tell the user instead of retrying.`

const toolGuidanceZH = `## 工具
你可以调用工具。仅在回答需要时调用：问候和闲聊不需要工具。
- 用户自己的资料优先使用 search_knowledge_bag，时事使用 search_online。
- 用户分享长期个人信息时使用 save_memory，回答个人问题前使用 retrieve_memory。
- 传给工具的日期使用用户时区的 YYYY-MM-DD 或 YYYY-MM-DD HH:MM 格式。
- 工具报告服务不可用时，直接告诉用户，不要重试。`

// ToolGuidance describes how to use tools.
func ToolGuidance(lang locale.Lang) string {
	return lang.Pick(toolGuidanceEN, toolGuidanceZH)
}

// CanvasAnnotation tells the model about the open canvas. content has
// already been capped by the caller.
func CanvasAnnotation(lang locale.Lang, title, typ, content string) string {
	var b strings.Builder
	b.WriteString(lang.Pick("## Canvas\nThe user has a canvas open", "## 画布\n用户打开了一个画布"))
	fmt.Fprintf(&b, lang.Pick(" titled %q (%s).", "，标题为“%s”（%s）。"), title, typ)
	b.WriteString(lang.Pick(
		" Change it with edit_canvas instead of rewriting it in the chat. Current content:\n",
		"请使用 edit_canvas 修改，不要在对话中重写全文。当前内容：\n"))
	b.WriteString("```\n")
	b.WriteString(content)
	b.WriteString("\n```")
	return b.String()
}

// ProfileSection introduces what the user has said about themselves.
func ProfileSection(lang locale.Lang, profile string) string {
	return lang.Pick("## About the user\n", "## 关于用户\n") + profile
}

// MemorySection lists saved memories relevant to the conversation.
func MemorySection(lang locale.Lang, memories []string) string {
	var b strings.Builder
	b.WriteString(lang.Pick("## Saved memories\n", "## 已保存的记忆\n"))
	for _, m := range memories {
		b.WriteString("- ")
		b.WriteString(m)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
