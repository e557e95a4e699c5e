package prompts

import (
	"fmt"

	"github.com/nugget/lumen/internal/locale"
)

const titleTemplateEN = `Write a short title (at most 8 words) for this conversation. Reply with the title only, no quotes or punctuation at the end.

Conversation:
%s

Title:`

const titleTemplateZH = `为下面的对话写一个简短标题（不超过 15 个字）。只回复标题本身，不要引号，结尾不要标点。

对话：
%s

标题：`

// TitlePrompt returns the prompt for generating a conversation title.
func TitlePrompt(lang locale.Lang, transcript string) string {
	return fmt.Sprintf(lang.Pick(titleTemplateEN, titleTemplateZH), transcript)
}
