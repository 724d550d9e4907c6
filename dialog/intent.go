package dialog

import "strings"

// IntentKind tags a classified inbound message. The declaration order is the
// routing priority: a command always wins, an active session captures any
// free text, menu keywords come next, then a structured-data attempt, then
// the fallback reply.
type IntentKind int

const (
	IntentExplicitCommand IntentKind = iota
	IntentContextualReply
	IntentMenuKeyword
	IntentStructuredData
	IntentFallback
)

func (k IntentKind) String() string {
	switch k {
	case IntentExplicitCommand:
		return "explicit_command"
	case IntentContextualReply:
		return "contextual_reply"
	case IntentMenuKeyword:
		return "menu_keyword"
	case IntentStructuredData:
		return "structured_data"
	default:
		return "fallback"
	}
}

type Intent struct {
	Kind IntentKind

	// Command and Args are set for IntentExplicitCommand.
	Command string
	Args    []string

	// Keyword names the matched menu group for IntentMenuKeyword:
	// greeting, thanks, farewell, menu, history, register, familia,
	// consulta, medicamento, examen.
	Keyword string

	// Fields holds the comma-split count for IntentStructuredData.
	Fields int
}

type Router struct {
	keywords *KeywordSets
}

func NewRouter(keywords *KeywordSets) *Router {
	if keywords == nil {
		keywords = DefaultKeywords()
	}
	return &Router{keywords: keywords}
}

// Classify routes one inbound text given the sender's session, if any. A
// user mid-flow must never have a keyword inside a free-text answer
// reinterpreted as a menu command, so the session check precedes keyword
// matching.
func (r *Router) Classify(sess *Session, text string) Intent {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "/") {
		parts := strings.Fields(trimmed)
		cmd := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
		if at := strings.Index(cmd, "@"); at >= 0 {
			cmd = cmd[:at]
		}
		return Intent{Kind: IntentExplicitCommand, Command: cmd, Args: parts[1:]}
	}

	if sess != nil {
		return Intent{Kind: IntentContextualReply}
	}

	lower := strings.ToLower(trimmed)
	if keyword, ok := r.menuKeyword(lower); ok {
		return Intent{Kind: IntentMenuKeyword, Keyword: keyword}
	}

	if n := strings.Count(trimmed, ",") + 1; n >= 5 && n <= 6 {
		return Intent{Kind: IntentStructuredData, Fields: n}
	}

	return Intent{Kind: IntentFallback}
}

func (r *Router) menuKeyword(lower string) (string, bool) {
	switch {
	case matchAny(lower, r.keywords.Menu):
		return "menu", true
	case matchAny(lower, r.keywords.History):
		return "history", true
	case matchAny(lower, r.keywords.Register):
		return "register", true
	case matchAny(lower, r.keywords.Family):
		return "familia", true
	case matchAny(lower, r.keywords.Synonyms["consulta"]):
		return "consulta", true
	case matchAny(lower, r.keywords.Synonyms["medicamento"]):
		return "medicamento", true
	case matchAny(lower, r.keywords.Synonyms["examen"]):
		return "examen", true
	case matchAny(lower, r.keywords.Greetings):
		return "greeting", true
	case matchAny(lower, r.keywords.Thanks):
		return "thanks", true
	case matchAny(lower, r.keywords.Farewells):
		return "farewell", true
	}
	return "", false
}
