// Package assistant implements the conversational core: intent parsing,
// generation-backed email transforms, and the dialogue loop that executes
// commands against the mailbox.
package assistant

// Command is one of the assistant's fixed chat commands.
type Command string

// Command vocabulary declared to the generation backend.
const (
	CmdReadEmails       Command = "read_emails"
	CmdGenerateResponse Command = "generate_response"
	CmdSendEmail        Command = "send_email"
	CmdDeleteEmail      Command = "delete_email"
	CmdCategorize       Command = "categorize"
	CmdDailyDigest      Command = "daily_digest"
	CmdHelp             Command = "help"
	CmdUnknown          Command = "unknown"
)

var knownCommands = map[Command]bool{
	CmdReadEmails:       true,
	CmdGenerateResponse: true,
	CmdSendEmail:        true,
	CmdDeleteEmail:      true,
	CmdCategorize:       true,
	CmdDailyDigest:      true,
	CmdHelp:             true,
	CmdUnknown:          true,
}

// Intent is the structured result of interpreting one chat message.
// Ephemeral: produced and consumed within a single turn.
type Intent struct {
	Command Command
	Params  map[string]any
}

// Int returns an integer parameter. Generated JSON numbers arrive as
// float64; numeric strings are tolerated too.
func (in Intent) Int(key string) (int, bool) {
	switch v := in.Params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n := 0
		for _, r := range v {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		if v == "" {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Str returns a non-empty string parameter.
func (in Intent) Str(key string) (string, bool) {
	s, ok := in.Params[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// IntOr returns the integer parameter or a default.
func (in Intent) IntOr(key string, def int) int {
	if v, ok := in.Int(key); ok && v > 0 {
		return v
	}
	return def
}

// StrOr returns the string parameter or a default.
func (in Intent) StrOr(key, def string) string {
	if v, ok := in.Str(key); ok {
		return v
	}
	return def
}
