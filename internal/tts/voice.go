package tts

import (
	"fmt"
	"strings"
)

// Language is a BCP-47 language code understood by the Chirp 3 HD voices.
type Language string

const (
	LanguageEnglishUS    Language = "en-US"
	LanguageEnglishGB    Language = "en-GB"
	LanguageSpanishES    Language = "es-ES"
	LanguageSpanishUS    Language = "es-US"
	LanguageFrenchFR     Language = "fr-FR"
	LanguageGermanDE     Language = "de-DE"
	LanguageItalianIT    Language = "it-IT"
	LanguagePortugueseBR Language = "pt-BR"
)

var languages = []Language{
	LanguageEnglishUS,
	LanguageEnglishGB,
	LanguageSpanishES,
	LanguageSpanishUS,
	LanguageFrenchFR,
	LanguageGermanDE,
	LanguageItalianIT,
	LanguagePortugueseBR,
}

// Speaker identifies a Chirp 3 HD voice persona.
type Speaker string

const (
	SpeakerAchernar      Speaker = "Achernar"
	SpeakerAchird        Speaker = "Achird"
	SpeakerAlgenib       Speaker = "Algenib"
	SpeakerAlgieba       Speaker = "Algieba"
	SpeakerAlnilam       Speaker = "Alnilam"
	SpeakerAoede         Speaker = "Aoede"
	SpeakerAutonoe       Speaker = "Autonoe"
	SpeakerCallirrhoe    Speaker = "Callirrhoe"
	SpeakerCharon        Speaker = "Charon"
	SpeakerDespina       Speaker = "Despina"
	SpeakerEnceladus     Speaker = "Enceladus"
	SpeakerErinome       Speaker = "Erinome"
	SpeakerFenrir        Speaker = "Fenrir"
	SpeakerGacrux        Speaker = "Gacrux"
	SpeakerIapetus       Speaker = "Iapetus"
	SpeakerKore          Speaker = "Kore"
	SpeakerLaomedeia     Speaker = "Laomedeia"
	SpeakerLeda          Speaker = "Leda"
	SpeakerOrus          Speaker = "Orus"
	SpeakerPuck          Speaker = "Puck"
	SpeakerPulcherrima   Speaker = "Pulcherrima"
	SpeakerRasalgethi    Speaker = "Rasalgethi"
	SpeakerSadachbia     Speaker = "Sadachbia"
	SpeakerSadaltager    Speaker = "Sadaltager"
	SpeakerSchedar       Speaker = "Schedar"
	SpeakerSulafat       Speaker = "Sulafat"
	SpeakerUmbriel       Speaker = "Umbriel"
	SpeakerVindemiatrix  Speaker = "Vindemiatrix"
	SpeakerZephyr        Speaker = "Zephyr"
	SpeakerZubenelgenubi Speaker = "Zubenelgenubi"
)

var speakers = []Speaker{
	SpeakerAchernar, SpeakerAchird, SpeakerAlgenib, SpeakerAlgieba, SpeakerAlnilam,
	SpeakerAoede, SpeakerAutonoe, SpeakerCallirrhoe, SpeakerCharon, SpeakerDespina,
	SpeakerEnceladus, SpeakerErinome, SpeakerFenrir, SpeakerGacrux, SpeakerIapetus,
	SpeakerKore, SpeakerLaomedeia, SpeakerLeda, SpeakerOrus, SpeakerPuck,
	SpeakerPulcherrima, SpeakerRasalgethi, SpeakerSadachbia, SpeakerSadaltager, SpeakerSchedar,
	SpeakerSulafat, SpeakerUmbriel, SpeakerVindemiatrix, SpeakerZephyr, SpeakerZubenelgenubi,
}

// VoiceName builds the provider voice identifier, e.g. "en-US-Chirp3-HD-Achernar".
func VoiceName(language Language, speaker Speaker) string {
	return fmt.Sprintf("%s-Chirp3-HD-%s", language, speaker)
}

// ParseLanguage matches a language code case-insensitively.
func ParseLanguage(value string) (Language, error) {
	for _, l := range languages {
		if strings.EqualFold(string(l), value) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", value)
}

// ParseSpeaker matches a speaker name case-insensitively and returns the
// canonical spelling.
func ParseSpeaker(value string) (Speaker, error) {
	for _, s := range speakers {
		if strings.EqualFold(string(s), value) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unsupported speaker %q", value)
}
