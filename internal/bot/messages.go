package bot

import "github.com/Flamme-VRM/KazakhBot/internal/usecase"

// User-facing strings. All replies are in Kazakh; internal error detail never
// reaches the user.
const (
	msgGreeting = `🇰🇿 Сәлеметсіз бе! AlatauLLM'ға қош келдіңіз!

  Мен қазақстандық студенттерге арналған ИИ көмекшісімін:

  📚 IELTS/SAT/TOEFL дайындығы
  ✍️ Академиялық жазу көмегі
  📖 Оқу материалдарын түсіндіру
  🎯 Емтихан дайындығы

  Сұрағыңызды жазыңыз - барлық жауаптар қазақ тілінде! 💫`

	msgHistoryCleared = "Сұхбат тарихы тазартылды. Жаңа сұрақ қоя аласыз!"

	msgBlockedContent    = "Кешіріңіз, сұрақ қауіпсіздік фильтрлерімен бөгелді. Басқаша сұраңыз."
	msgGenerationStopped = "Кешіріңіз, жауап генерациясы тоқтатылды. Қайталап көріңіз."
	msgEmptyResponse     = "Кешіріңіз, жауап алу мүмкін болмады. Қайталап көріңіз."
	msgInternalError     = "Кешіріңіз, техникалық қате орын алды. Кейінірек қайталап көріңіз."

	msgDeliveryFailed = "Кешіріңіз, жауап жіберуде қате орын алды."

	msgVoiceTooLarge      = "Кешіріңіз, дауыстық хабарлама тым үлкен (шегі — 10 МБ)."
	msgVoiceNotRecognized = "Кешіріңіз, дауыстық хабарлама танылмады. Қайталап көріңіз немесе мәтінмен жазыңыз."
)

// messageForCode maps the orchestrator's closed error codes to localized
// replies.
func messageForCode(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorBlockedContent:
		return msgBlockedContent
	case usecase.ErrorGenerationStopped:
		return msgGenerationStopped
	case usecase.ErrorEmptyResponse:
		return msgEmptyResponse
	default:
		return msgInternalError
	}
}
