package safety

import (
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/model"
)

type Verdict struct {
	IsSafe         bool
	Reason         model.AlertType
	Severity       model.Severity
	Message        model.LocalizedText
	LexiconVersion string
}

var (
	profanityMessage = model.NewLocalizedText(
		"This message contains inappropriate language. Please use kind words!",
		"هذه الرسالة تحتوي على لغة غير لائقة. يرجى استخدام كلمات لطيفة!",
	)
	bullyingMessage = model.NewLocalizedText(
		"This message may hurt others. Let's be kind and respectful!",
		"قد تؤذي هذه الرسالة الآخرين. دعنا نكون لطفاء ومحترمين!",
	)
	inappropriateMessage = model.NewLocalizedText(
		"Please use appropriate language.",
		"يرجى استخدام لغة مناسبة.",
	)
)

// Classifier is a rule-based content matcher. The active lexicon can be
// replaced at runtime; each call sees exactly one lexicon version.
type Classifier struct {
	lexicon atomic.Pointer[CompiledLexicon]
}

func NewClassifier(lexicon *CompiledLexicon) *Classifier {
	c := &Classifier{}
	if lexicon == nil {
		lexicon = MustCompile(DefaultLexicon())
	}
	c.lexicon.Store(lexicon)
	return c
}

func (c *Classifier) Version() string {
	return c.lexicon.Load().Version()
}

// Swap compiles l and makes it the active lexicon. On error the current
// lexicon stays in place.
func (c *Classifier) Swap(l Lexicon) error {
	compiled, err := Compile(l)
	if err != nil {
		return err
	}
	previous := c.lexicon.Swap(compiled)
	log.Info().
		Str("from", previous.Version()).
		Str("to", compiled.Version()).
		Msg("Lexicon swapped")
	return nil
}

func (c *Classifier) Reload(path string) error {
	l, err := LoadLexicon(path)
	if err != nil {
		return err
	}
	return c.Swap(l)
}

// Classify never fails; empty input is safe.
func (c *Classifier) Classify(text string) Verdict {
	lex := c.lexicon.Load()
	safe := Verdict{IsSafe: true, LexiconVersion: lex.version}

	if strings.TrimSpace(text) == "" {
		return safe
	}
	folded := normalize(text)

	if lex.profanity != nil && lex.profanity.MatchString(folded) {
		return Verdict{
			Reason:         model.AlertTypeInappropriateContent,
			Severity:       model.SeverityMedium,
			Message:        profanityMessage,
			LexiconVersion: lex.version,
		}
	}

	for _, re := range lex.bullying {
		if re.MatchString(folded) {
			return Verdict{
				Reason:         model.AlertTypeCyberbullying,
				Severity:       model.SeverityHigh,
				Message:        bullyingMessage,
				LexiconVersion: lex.version,
			}
		}
	}

	for _, re := range lex.inappropriate {
		if re.MatchString(folded) {
			return Verdict{
				Reason:         model.AlertTypeInappropriateContent,
				Severity:       model.SeverityLow,
				Message:        inappropriateMessage,
				LexiconVersion: lex.version,
			}
		}
	}

	return safe
}
