package intent

import (
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/go-support-bot/internal/domain"
)

// Unknown is the name returned by the classifier when no pattern matches.
const Unknown = "unknown"

// ExpertPrefix marks intents created or extended from expert answers.
const ExpertPrefix = "expert_"

// Fixed user-facing literals. EscalationNotice once leaked into intent
// response sets through a learning bug; the cache strips it on every load and
// the response selector guards against it at read time.
const (
	// EscalationNotice is the reply sent when a message is routed to an expert.
	EscalationNotice = "Я не смог найти ответ на ваш вопрос. Ваш вопрос отправлен эксперту, и вы получите ответ в ближайшее время."

	// ClarificationReply is the generic fallback when no usable response exists.
	ClarificationReply = "Извините, я не совсем понимаю ваш вопрос. Можете переформулировать?"

	// ExpertAnswerHeader prefixes synthetic expert-answer turns in the history.
	ExpertAnswerHeader = "👨‍💼 Ответ эксперта:\n\n"

	// ExpertAnswerMarker identifies an already-synthesized expert-answer turn.
	ExpertAnswerMarker = "Ответ эксперта"
)

// Defaults returns the built-in intent set installed when the store is empty
// or unreachable. IDs and timestamps are freshly generated so the slice can
// be persisted as-is.
func Defaults() []domain.Intent {
	now := time.Now().UTC()
	mk := func(name string, patterns, responses []string) domain.Intent {
		return domain.Intent{
			ID:        uuid.NewString(),
			Name:      name,
			Patterns:  patterns,
			Responses: responses,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return []domain.Intent{
		mk("greeting",
			[]string{"привет", "здравствуй", "добрый день", "hello", "hi"},
			[]string{"Привет! Чем могу помочь?", "Здравствуйте! Задавайте ваш вопрос", "Добрый день! Как я могу вам помочь?"}),
		mk("help",
			[]string{"помощь", "помоги", "не работает", "проблема", "ошибка"},
			[]string{"Опишите вашу проблему подробнее", "Попробуйте перезагрузить страницу", "Сейчас перенаправлю вас к специалисту"}),
		mk("thanks",
			[]string{"спасибо", "благодарю", "thanks", "мерси"},
			[]string{"Пожалуйста! Обращайтесь ещё", "Рад был помочь!", "Всегда готов помочь!"}),
		mk("farewell",
			[]string{"пока", "до свидания", "всего доброго", "goodbye"},
			[]string{"До свидания! Возвращайтесь", "Всего хорошего!", "Буду рад помочь снова"}),
	}
}
