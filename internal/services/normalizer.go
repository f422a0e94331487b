package services

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/time/rate"
)

// ---------------------------------------------------------------------------
// Normalizer: common interface for LLM text clean-up before synthesis
// OpenAI and Gemini both implement it so the worker can use whichever is
// configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// Normalizer rewrites one extracted page so it reads naturally aloud.
type Normalizer interface {
	Normalize(ctx context.Context, text string) (string, error)
}

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

const textPlaceholder = ":text"

// normalizationPrompt asks the model to clean a single OCR'd page for TTS
// without restructuring sentences. Pages are normalised independently, so
// cut words and trailing commas at page edges must be preserved.
const normalizationPrompt = `
Eres un editor de texto que prepara contenido para conversión de texto a voz (TTS). He extraído texto de una sola página de un documento más grande. Por favor, limpia y optimiza este texto para que se lea de manera natural y clara cuando se hable en voz alta.

Específicamente:
1. Elimina o reformula cualquier artefacto de formato (como números de página, encabezados, pies de página o errores de OCR)
2. Corrige cualquier error tipográfico u ortográfico obvio
3. Expande abreviaturas (por ejemplo, "Sr." → "Señor", "etc." → "y así sucesivamente") a menos que se hablen comúnmente tal como están (como "NASA")
4. Elimina citas, marcadores de notas al pie o referencias entre corchetes que sonarían incómodas cuando se lean en voz alta
5. Asegúrate de que la puntuación sea correcta para que el sistema TTS haga pausas naturales
6. Elimina cualquier línea horizontal, símbolo u otro elemento que no sea texto
7. Sustituye todos los puntos y comas (;) por puntos (.)
8. Preserva el flujo lógico y el significado del texto original
9. NO cambies la estructura de las oraciones
10. Si el texto comienza o termina de forma abrupta, déjalo así (por ejemplo si termina con una coma, debes dejar la coma, o si comienza o termina con una palabra cortada, deja el pedazo de la palabra tal cual está).
11. Si el texto termina con una palabra cortada con un guión, remueve el guión.

Proporciona solo la versión limpia sin explicaciones adicionales:
-- INICIO TEXTO --
:text
-- FIN TEXTO --
`

// BuildNormalizationPrompt substitutes text into the clean-up prompt.
func BuildNormalizationPrompt(text string) string {
	return strings.Replace(normalizationPrompt, textPlaceholder, text, 1)
}

func cleanCompletion(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyCompletion
	}
	return s, nil
}

// RateLimited throttles calls to an underlying Normalizer.
type RateLimited struct {
	next    Normalizer
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls per second with no burst. A
// non-positive perSecond disables throttling.
func NewRateLimited(next Normalizer, perSecond float64) *RateLimited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimited) Normalize(ctx context.Context, text string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Normalize(ctx, text)
}
