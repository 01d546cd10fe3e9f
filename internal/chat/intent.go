package chat

import (
	"regexp"
	"strings"
)

// Canned assistant texts. The product speaks Spanish first; the patterns
// accept both Spanish and English phrasings.
const (
	welcomeText  = "¡Hola! Soy Atenex. Pregúntame cualquier cosa sobre tus documentos."
	greetingText = "¡Hola! ¿En qué puedo ayudarte hoy?"
	metaText     = `Soy Atenex, tu asistente de inteligencia artificial diseñado para ayudarte a explorar y consultar la base de conocimiento de tu organización. Puedo:
- Buscar información específica dentro de los documentos cargados.
- Responder preguntas basadas en el contenido de esos documentos.
- Mostrarte las fuentes de donde extraje la información.

Simplemente hazme una pregunta sobre el contenido que esperas encontrar.`
)

var (
	greetingRE = regexp.MustCompile(`^\s*(hola|hello|hi|hey|buen(os)?\s+(d[íi]as?|tardes?|noches?))\s*[!¡?.]*\s*$`)

	metaREs = []*regexp.Regexp{
		regexp.MustCompile(`\b(qu[ée] puedes hacer|cu[áa]les son tus func|capacidades|capabilities)\b`),
		regexp.MustCompile(`\b(qui[ée]n eres|what are you)\b`),
		regexp.MustCompile(`\b(qu[ée] informaci[óo]n (tienes|posees)|what info)\b`),
		regexp.MustCompile(`\b(ayuda|help|soporte|support)\b`),
	}
)

// intentRule pairs a predicate over the trimmed, case-folded input with a
// canned response. Rules are evaluated in order before any network dispatch.
type intentRule struct {
	matches  func(string) bool
	response string
}

var intentRules = []intentRule{
	{matches: func(s string) bool { return greetingRE.MatchString(s) }, response: greetingText},
	{matches: isMetaQuery, response: metaText},
}

func isMetaQuery(s string) bool {
	for _, re := range metaREs {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// localAnswer returns the canned response for input handled entirely on the
// client, and whether any rule matched.
func localAnswer(input string) (string, bool) {
	msg := strings.ToLower(strings.TrimSpace(input))
	for _, rule := range intentRules {
		if rule.matches(msg) {
			return rule.response, true
		}
	}
	return "", false
}
