package prompts

import (
	"fmt"

	"github.com/nugget/lumen/internal/locale"
)

const planTemplateEN = `Before answering, write a short numbered plan (at most 6 steps) for how you will handle the user's request, including which tools you expect to use. Output only the plan.`

const planTemplateZH = `在回答之前，先为如何处理用户的请求写一个简短的编号计划（最多 6 步），包括预计使用的工具。只输出计划。`

const executeTemplateEN = `Carry out this plan step by step, calling tools as needed, then answer the user:

%s`

const executeTemplateZH = `按照以下计划逐步执行，按需调用工具，然后回答用户：

%s`

// PlanningPrompt asks the model for a plan, or to execute plan when it
// is non-empty.
func PlanningPrompt(lang locale.Lang, plan string) string {
	if plan == "" {
		return lang.Pick(planTemplateEN, planTemplateZH)
	}
	return fmt.Sprintf(lang.Pick(executeTemplateEN, executeTemplateZH), plan)
}
