package ollama

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxRefineDescriptionLen = 300

func buildRefinePrompt(descriptions []string) string {
	var list strings.Builder
	for idx, d := range descriptions {
		d = truncateRunes(d, maxRefineDescriptionLen)
		list.WriteString(fmt.Sprintf("%d. %s\n", idx+1, strings.TrimSpace(d)))
	}

	return `You rewrite product descriptions from commercial invoices into short customs trade names.
Keep material, product type and use. Drop quantities, prices, sizes, SKUs and brand noise.
Return strict JSON object mapping each line number (as string) to its trade name.
No markdown, no extra keys.

Descriptions:
` + list.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
