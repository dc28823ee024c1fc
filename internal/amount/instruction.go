package amount

import (
	"regexp"
	"strings"
)

// Instruction is the raw quantity/unit pair found in a tipping comment.
type Instruction struct {
	Text     string // the matched text, e.g. "u/chaintip 500 bits"
	Quantity string
	Unit     string
}

// InstructionParser finds "u/<bot> <quantity> [<unit>]" in comment bodies.
type InstructionParser struct {
	re *regexp.Regexp
}

// NewInstructionParser builds a parser for the given bot account name.
func NewInstructionParser(bot string) *InstructionParser {
	pattern := `(?i)(?:^|[\s(])/?u/` + regexp.QuoteMeta(bot) + `[ \t]+(\S+)(?:[ \t]+([^\s]+))?`
	return &InstructionParser{re: regexp.MustCompile(pattern)}
}

// Parse returns the first instruction in text. ok is false when the bot is
// not addressed at all; a bare mention with no quantity is also not ok.
func (p *InstructionParser) Parse(text string) (Instruction, bool) {
	m := p.re.FindStringSubmatch(text)
	if m == nil {
		return Instruction{}, false
	}
	return Instruction{
		Text:     strings.TrimSpace(m[0]),
		Quantity: trimPunct(m[1]),
		Unit:     trimPunct(m[2]),
	}, true
}

func trimPunct(s string) string {
	return strings.TrimRight(s, ".,!?;:)")
}
