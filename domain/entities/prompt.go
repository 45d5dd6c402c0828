package entities

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultGreeting is spoken by the agent when the call connects.
	DefaultGreeting = "可以和我说说心里话吗？"

	// maxPromptPostcards bounds the recency digest.
	maxPromptPostcards = 5

	// maxPostcardRunes caps each digest line's content.
	maxPostcardRunes = 200
)

// promptPolicy is the fixed style and safety block appended to every
// persona prompt. The agent reads the result aloud over a phone-style
// call, so the rules optimize for short, interruptible speech.
var promptPolicy = strings.Join([]string{
	"对话规范（电话场景）：",
	"- 风格：口语化、简短清晰、一次一句、便于打断与转述。",
	"- 长度：尽量在20字（中文）或12词（英文）以内；必要时拆分成多句。",
	"- 互动：重要信息先确认（时间/地点/人名/金额），必要时复述要点。",
	"- 语气：专业、礼貌、自然，不使用网络流行语或夸张表达。",
	"- 错误处理：若未听清或不确定，简短请对方重复，不自作推断。",
	"- 结束：必要时给出一句话小结与下一步确认。",
	"限制与禁止：",
	"- 禁止使用非官方/不真实的信息，不编造事实或来源。",
	"- 禁止长篇大论、背景说明、技术细节堆砌与自言自语。",
	"- 禁止输出链接、表情符号、颜文字、Markdown、代码块与括号内注释。",
	"- 禁止暴力、色情、歧视、隐私数据收集等不当内容。",
	"输出要求：只输出可直接朗读的对话文本，无多余格式与说明。",
}, "\n")

// BuildPersonaPrompt assembles the behavioral instructions sent to the
// backend agent: persona and user-role descriptions, a bounded digest of
// the most recent postcards, and the fixed policy block. Postcards are
// expected newest-first; at most five contribute, each capped at 200
// runes of content.
func BuildPersonaPrompt(character *Character, postcards []Postcard) string {
	var sections []string

	if character != nil {
		if character.Name != "" {
			sections = append(sections, "角色名称: "+character.Name)
		}
		if character.UserRoleName != "" {
			sections = append(sections, "用户扮演角色: "+character.UserRoleName)
		}
		if character.Description != "" {
			sections = append(sections, "角色描述: "+character.Description)
		}
		if character.UserRoleDesc != "" {
			sections = append(sections, "用户扮演角色描述: "+character.UserRoleDesc)
		}
	}

	if len(postcards) > 0 {
		limit := len(postcards)
		if limit > maxPromptPostcards {
			limit = maxPromptPostcards
		}
		lines := make([]string, 0, limit)
		for i, p := range postcards[:limit] {
			who := "AI"
			if p.Type == PostcardTypeUser {
				who = "用户"
			}
			content := p.Content
			if runes := []rune(content); len(runes) > maxPostcardRunes {
				content = string(runes[:maxPostcardRunes])
			}
			createdAt := ""
			if !p.CreatedAt.IsZero() {
				createdAt = p.CreatedAt.Format(time.RFC3339)
			}
			lines = append(lines, fmt.Sprintf("%d. [%s] %s %s", i+1, who, createdAt, content))
		}
		sections = append(sections, "最近明信片（按时间倒序，最多5条）:\n"+strings.Join(lines, "\n"))
	}

	sections = append(sections, promptPolicy)

	return strings.Join(sections, "\n")
}
