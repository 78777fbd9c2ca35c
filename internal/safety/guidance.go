package safety

import (
	"github.com/brightpath/safety-engine/internal/model"
)

var restBreakGuidance = model.NewLocalizedText(
	"Take a break! Rest is important for your brain. Come back tomorrow for more fun learning!",
	"خذ استراحة! الراحة مهمة لعقلك. عد غدًا لمزيد من التعلم الممتع!",
)

var guidanceTable = map[model.AlertType]model.LocalizedText{
	model.AlertTypeCyberbullying: model.NewLocalizedText(
		"Remember: Words can hurt. Always treat others with kindness and respect, just like you want to be treated!",
		"تذكر: الكلمات يمكن أن تؤذي. عامل الآخرين دائمًا بلطف واحترام، تمامًا كما تريد أن تُعامل!",
	),
	model.AlertTypeInappropriateContent: model.NewLocalizedText(
		"Let's keep our conversations friendly and positive! Use words that make others feel good.",
		"دعنا نحافظ على محادثاتنا ودية وإيجابية! استخدم كلمات تجعل الآخرين يشعرون بالرضا.",
	),
	model.AlertTypeExcessiveGaming: restBreakGuidance,
	model.AlertTypeTimeLimit:       restBreakGuidance,
	model.AlertTypeSuspiciousActivity: model.NewLocalizedText(
		"If something online feels strange or makes you uncomfortable, tell a parent or teacher right away.",
		"إذا شعرت أن شيئًا ما على الإنترنت غريب أو يجعلك غير مرتاح، أخبر والديك أو معلمك فورًا.",
	),
}

// Guidance returns every localized variant for reason, or nil when the table
// has no entry.
func Guidance(reason model.AlertType) model.LocalizedText {
	g, ok := guidanceTable[reason]
	if !ok {
		return nil
	}
	out := make(model.LocalizedText, len(g))
	for k, v := range g {
		out[k] = v
	}
	return out
}

func GenerateGuidance(reason model.AlertType, locale model.Locale) string {
	return Guidance(reason).Get(locale)
}
