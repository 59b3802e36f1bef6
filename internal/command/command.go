// Package command parses chat messages into bot commands.
package command

import (
	"strings"
)

// Kind identifies a command.
type Kind int

const (
	Unknown Kind = iota
	Ball
	List
	Give
	View
	Catch
	Help
)

var kindNames = map[Kind]string{
	Unknown: "unknown",
	Ball:    "ball",
	List:    "list",
	Give:    "give",
	View:    "view",
	Catch:   "catch",
	Help:    "help",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Command is a parsed message. Item is set for Give and View, Target for Give
// and Phrase for Catch.
type Command struct {
	Kind   Kind
	Item   string
	Target string
	Phrase string
	Raw    string
}

const giveSeparator = " to "

// Parse classifies a message by its leading token. Anything that is not a
// well-formed command parses as Unknown.
func Parse(text string) Command {
	raw := strings.TrimSpace(text)
	cmd := Command{Kind: Unknown, Raw: text}
	if !strings.HasPrefix(raw, "!") {
		return cmd
	}

	head, rest, _ := strings.Cut(raw, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(head) {
	case "!ball":
		cmd.Kind = Ball
	case "!list":
		cmd.Kind = List
	case "!help":
		cmd.Kind = Help
	case "!view":
		if rest != "" {
			cmd.Kind = View
			cmd.Item = rest
		}
	case "!catch":
		if rest != "" {
			cmd.Kind = Catch
			cmd.Phrase = rest
		}
	case "!give":
		// item names may contain " to "; the member is whatever follows the last one
		idx := strings.LastIndex(strings.ToLower(rest), giveSeparator)
		if idx <= 0 {
			return cmd
		}
		item := strings.TrimSpace(rest[:idx])
		target := strings.TrimSpace(rest[idx+len(giveSeparator):])
		if item == "" || target == "" {
			return cmd
		}
		cmd.Kind = Give
		cmd.Item = item
		cmd.Target = target
	}
	return cmd
}

// IsCatchOf reports whether text is a catch command naming one of names.
// Comparison ignores case and runs of whitespace, the same way catalog
// lookups do.
func IsCatchOf(text string, names []string) bool {
	cmd := Parse(text)
	if cmd.Kind != Catch {
		return false
	}
	phrase := FoldName(cmd.Phrase)
	for _, n := range names {
		if phrase == FoldName(n) {
			return true
		}
	}
	return false
}

// FoldName lowercases s and collapses every run of whitespace to one space.
func FoldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Usage is the help text posted for !help.
const Usage = `Commands:
!ball - spawn a ball
!catch <name> - catch the ball on screen
!list - show your inventory
!view <item> - show an item you own
!give <item> to <member> - give an item away`
