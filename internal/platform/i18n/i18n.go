// Package i18n resolves request languages and renders user-facing messages
// for command rejections and transport errors.
package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LangParam is the query parameter used to select a language.
const LangParam = "lang"

var supportedTags = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var tagMatcher = language.NewMatcher(supportedTags)

// Message keys. Rejection keys match the reason codes stored on rejected events.
const (
	KeyUnknownAction      = "unknown_action"
	KeyInvalidPayload     = "invalid_payload"
	KeyInvalidSource      = "invalid_source"
	KeyArbiterBusy        = "arbiter_busy"
	KeyPersistenceFailure = "persistence_failure"
	KeyMalformedCommand   = "malformed_command"
)

var messages = map[language.Tag]map[string]string{
	language.AmericanEnglish: {
		KeyUnknownAction:      "The action %q is not supported.",
		KeyInvalidPayload:     "The payload for %q is invalid.",
		KeyInvalidSource:      "Commands from source %q are not accepted.",
		KeyArbiterBusy:        "The control plane is busy. Try again shortly.",
		KeyPersistenceFailure: "The command could not be saved.",
		KeyMalformedCommand:   "The command could not be read.",
	},
	language.BrazilianPortuguese: {
		KeyUnknownAction:      "A ação %q não é suportada.",
		KeyInvalidPayload:     "Os dados da ação %q são inválidos.",
		KeyInvalidSource:      "Comandos da origem %q não são aceitos.",
		KeyArbiterBusy:        "O plano de controle está ocupado. Tente novamente em instantes.",
		KeyPersistenceFailure: "Não foi possível salvar o comando.",
		KeyMalformedCommand:   "Não foi possível ler o comando.",
	},
}

func init() {
	for tag, entries := range messages {
		for key, value := range entries {
			if err := message.SetString(tag, key, value); err != nil {
				panic(err)
			}
		}
	}
}

// Default returns the default language tag.
func Default() language.Tag {
	return language.AmericanEnglish
}

// Supported returns the list of supported language tags.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(supportedTags))
	copy(tags, supportedTags)
	return tags
}

// Match returns the best supported tag for an Accept-Language style value.
func Match(value string) language.Tag {
	value = strings.TrimSpace(value)
	if value == "" {
		return Default()
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return Default()
	}
	_, index, confidence := tagMatcher.Match(tags...)
	if confidence == language.No {
		return Default()
	}
	return supportedTags[index]
}

// ResolveTag picks the language for a request: the lang query parameter
// first, then Accept-Language.
func ResolveTag(r *http.Request) language.Tag {
	if r == nil {
		return Default()
	}
	if lang := strings.TrimSpace(r.URL.Query().Get(LangParam)); lang != "" {
		return Match(lang)
	}
	return Match(r.Header.Get("Accept-Language"))
}

// Printer returns a message printer for the supplied tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// Sprintf renders the message key for tag. Unknown keys render as the key.
func Sprintf(tag language.Tag, key string, args ...any) string {
	return Printer(tag).Sprintf(key, args...)
}
