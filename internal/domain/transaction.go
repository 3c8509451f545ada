package domain

import "time"

// Transaction — неизменяемый вход пайплайна. Создается один раз на запрос
// и дальше нигде не мутируется.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	CustomerID string    `json:"customer_id"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Country    string    `json:"country"`
	Channel    string    `json:"channel"` // web, mobile, atm, pos
	DeviceID   string    `json:"device_id"`
	// Timestamp обязан нести смещение (RFC3339). Час для time-проверки
	// извлекается в локальной зоне транзакции, а не сервера.
	Timestamp time.Time `json:"timestamp"`
}

// LocalHour возвращает час суток в зоне самой транзакции.
func (t Transaction) LocalHour() int {
	return t.Timestamp.Hour()
}

// BehaviorProfile — исторический паттерн клиента из внешнего хранилища.
// Отсутствие профиля — валидное состояние: все проверки деградируют
// в "no data", а не в ошибку.
type BehaviorProfile struct {
	CustomerID     string   `json:"customer_id"`
	UsualAmountAvg float64  `json:"usual_amount_avg"` // 0 означает "нет данных"
	UsualHours     string   `json:"usual_hours"`      // диапазон "08-20"
	UsualCountries []string `json:"usual_countries"`
	UsualDevices   []string `json:"usual_devices"`
}

// HasCountry проверяет точное вхождение страны в привычный набор.
func (p *BehaviorProfile) HasCountry(code string) bool {
	for _, c := range p.UsualCountries {
		if c == code {
			return true
		}
	}
	return false
}

// HasDevice проверяет точное вхождение устройства в привычный набор.
func (p *BehaviorProfile) HasDevice(id string) bool {
	for _, d := range p.UsualDevices {
		if d == id {
			return true
		}
	}
	return false
}
