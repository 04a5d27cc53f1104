package bot

import kit "fleetbot/internal/transport"

// Texts holds every user-facing string the bot sends.
type Texts struct {
	Welcome     string
	Denied      string
	Unavailable string
	Failure     string

	Subscribed        string
	AlreadySubscribed string
	Unsubscribed      string
	NotSubscribed     string

	ButtonToday       string
	ButtonYesterday   string
	ButtonWeek        string
	ButtonSubscribe   string
	ButtonUnsubscribe string
}

func DefaultTexts() Texts {
	return Texts{
		Welcome:     "Добро пожаловать! Используйте команды /tday для статистики за сегодня, /yday для статистики за вчера и /week для статистики за неделю.",
		Denied:      "В этой группе команда доступна только администраторам.",
		Unavailable: "Извините, сервер статистики временно недоступен. Попробуйте через несколько минут.",
		Failure:     "Произошла ошибка при получении статистики. Пожалуйста, попробуйте позже.",

		Subscribed:        "Вы подписались на рассылку статистики.",
		AlreadySubscribed: "Вы уже подписаны на рассылку.",
		Unsubscribed:      "Вы отписались от рассылки.",
		NotSubscribed:     "Вы не были подписаны на рассылку.",

		ButtonToday:       "📊 Сегодня",
		ButtonYesterday:   "📅 Вчера",
		ButtonWeek:        "🗓 Неделя",
		ButtonSubscribe:   "🔔 Подписаться",
		ButtonUnsubscribe: "🔕 Отписаться",
	}
}

// Keyboard is the reply keyboard shown after /start.
func (t Texts) Keyboard() kit.Keyboard {
	return kit.Keyboard{
		{t.ButtonToday, t.ButtonYesterday, t.ButtonWeek},
		{t.ButtonSubscribe, t.ButtonUnsubscribe},
	}
}
