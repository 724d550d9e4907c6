package dialog

// State identifies the current step of a conversation.
type State int

const (
	StateOnboardingName State = iota
	StateOnboardingAge
	StateOnboardingPhone
	StateOnboardingEmail
	StateAwaitConsulta
	StateAwaitConsultaFutura
	StateAwaitMedicamento
	StateAwaitExamen
	StateExamAttachments
	StateExamAddFiles
	StateFamilyName
	StateFamilyRelationship
	StateFamilyPhone
	StateFamilyPermissions
	StateFamilyTelegramID
)

func (s State) String() string {
	switch s {
	case StateOnboardingName:
		return "onboarding_name"
	case StateOnboardingAge:
		return "onboarding_age"
	case StateOnboardingPhone:
		return "onboarding_phone"
	case StateOnboardingEmail:
		return "onboarding_email"
	case StateAwaitConsulta:
		return "await_consulta"
	case StateAwaitConsultaFutura:
		return "await_consulta_futura"
	case StateAwaitMedicamento:
		return "await_medicamento"
	case StateAwaitExamen:
		return "await_examen"
	case StateExamAttachments:
		return "exam_attachments"
	case StateExamAddFiles:
		return "exam_add_files"
	case StateFamilyName:
		return "family_name"
	case StateFamilyRelationship:
		return "family_relationship"
	case StateFamilyPhone:
		return "family_phone"
	case StateFamilyPermissions:
		return "family_permissions"
	case StateFamilyTelegramID:
		return "family_telegram_id"
	default:
		return "unknown"
	}
}

// Session is the ephemeral per-chat dialogue state. It lives only in memory
// and is lost on restart; there is no timeout-based expiry.
type Session struct {
	ChatKey string
	State   State
	// Draft accumulates collected fields until the flow persists.
	Draft map[string]string
}

// Sessions is keyed by chat identity. It is mutated only by the single
// update-processing loop, so no locking is needed.
type Sessions struct {
	active map[string]*Session
}

func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]*Session)}
}

func (s *Sessions) Get(chatKey string) *Session {
	return s.active[chatKey]
}

// Start replaces any existing session for the chat with a fresh one in the
// given state.
func (s *Sessions) Start(chatKey string, state State) *Session {
	sess := &Session{ChatKey: chatKey, State: state, Draft: make(map[string]string)}
	s.active[chatKey] = sess
	return sess
}

// End discards the chat's session and its draft.
func (s *Sessions) End(chatKey string) {
	delete(s.active, chatKey)
}

func (s *Sessions) Len() int {
	return len(s.active)
}
