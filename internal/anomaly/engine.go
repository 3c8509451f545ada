package anomaly

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

/*
Пакет anomaly — детерминированное ядро скоринга. Никакого I/O и никаких
вызовов reasoning-сервиса: это единственная часть системы с точной,
воспроизводимой числовой семантикой, поэтому она вынесена в чистые функции.
*/

// AmountThreshold — множитель от среднего чека, выше которого сумма аномальна.
const AmountThreshold = 2.0

// Метки сигналов. Одна фиксированная метка на сработавшее измерение;
// если не сработало ничего — единственная метка "normal transaction".
const (
	LabelUnusualAmount  = "unusual amount"
	LabelUnusualHour    = "unusual hour"
	LabelUnusualDevice  = "unusual device"
	LabelUnusualCountry = "unusual country"
	LabelNormal         = "normal transaction"
)

const noDataReason = "no behavior data available"

// Engine группирует проверки. Состояния у него нет — структура нужна,
// чтобы стадия пайплайна получала зависимость интерфейсного вида.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Analyze прогоняет все четыре проверки и собирает производные значения:
// композитный риск и список меток.
func (e *Engine) Analyze(tx domain.Transaction, profile *domain.BehaviorProfile) (domain.AnomalySet, float64, []string) {
	set := domain.AnomalySet{
		Amount:  e.CheckAmount(tx, profile),
		Time:    e.CheckTime(tx, profile),
		Device:  e.CheckDevice(tx, profile),
		Country: e.CheckCountry(tx, profile),
	}
	return set, CompositeRisk(set), CollectSignals(set)
}

// CheckAmount сравнивает сумму со средним чеком клиента.
// ratio = amount / avg; при avg <= 0 ratio = 0 (сигнал "нет данных").
// Аномалия при ratio > 2; скор растет монотонно по обе стороны порога.
func (e *Engine) CheckAmount(tx domain.Transaction, profile *domain.BehaviorProfile) domain.AnomalySignal {
	if profile == nil {
		return noData()
	}

	ratio := 0.0
	if profile.UsualAmountAvg > 0 {
		ratio = tx.Amount / profile.UsualAmountAvg
	}

	isAnomaly := ratio > AmountThreshold

	var score float64
	if isAnomaly {
		score = math.Min(ratio/AmountThreshold*0.95, 1.0)
	} else {
		score = ratio / AmountThreshold * 0.3
	}

	reason := fmt.Sprintf("amount is %.1fx the usual average (within normal range)", ratio)
	if isAnomaly {
		reason = fmt.Sprintf("amount is %.1fx the usual average", ratio)
	}

	return domain.AnomalySignal{
		IsAnomaly: isAnomaly,
		Score:     round2(score),
		Reason:    reason,
	}
}

// CheckTime проверяет попадание локального часа транзакции в привычный
// диапазон "start-end". Нечитаемый формат диапазона — fail-open:
// is_anomaly=false, score=0, диагностика в reason.
func (e *Engine) CheckTime(tx domain.Transaction, profile *domain.BehaviorProfile) domain.AnomalySignal {
	if profile == nil {
		return noData()
	}

	hour := tx.LocalHour()
	start, end, err := parseHourRange(profile.UsualHours)
	if err != nil {
		return domain.AnomalySignal{
			IsAnomaly: false,
			Score:     0.0,
			Reason:    fmt.Sprintf("invalid usual_hours format %q: %v", profile.UsualHours, err),
		}
	}

	inRange := start <= hour && hour <= end
	if inRange {
		return domain.AnomalySignal{
			IsAnomaly: false,
			Score:     0.10,
			Reason:    fmt.Sprintf("transaction at %02d:00 is within usual hours", hour),
		}
	}
	return domain.AnomalySignal{
		IsAnomaly: true,
		Score:     0.85,
		Reason:    fmt.Sprintf("transaction at %02d:00 is outside usual range %02d:00-%02d:00", hour, start, end),
	}
}

// CheckDevice — точное членство device_id в привычном наборе устройств.
func (e *Engine) CheckDevice(tx domain.Transaction, profile *domain.BehaviorProfile) domain.AnomalySignal {
	if profile == nil {
		return noData()
	}

	if profile.HasDevice(tx.DeviceID) {
		return domain.AnomalySignal{
			IsAnomaly: false,
			Score:     0.05,
			Reason:    fmt.Sprintf("device %s is known and trusted", tx.DeviceID),
		}
	}
	return domain.AnomalySignal{
		IsAnomaly: true,
		Score:     0.85,
		Reason:    fmt.Sprintf("device %s is new/unknown", tx.DeviceID),
	}
}

// CheckCountry — точное членство страны в привычном наборе.
func (e *Engine) CheckCountry(tx domain.Transaction, profile *domain.BehaviorProfile) domain.AnomalySignal {
	if profile == nil {
		return noData()
	}

	if profile.HasCountry(tx.Country) {
		return domain.AnomalySignal{
			IsAnomaly: false,
			Score:     0.05,
			Reason:    fmt.Sprintf("country %s is among usual countries", tx.Country),
		}
	}
	return domain.AnomalySignal{
		IsAnomaly: true,
		Score:     0.75,
		Reason:    fmt.Sprintf("country %s is unusual", tx.Country),
	}
}

// CompositeRisk — симметричная "дистанция от точки максимальной
// неоднозначности": abs(count - 2) / 2.
//
// 0 или 4 аномалии => 1.0 (картина предельно ясная: либо чисто, либо фрод);
// ровно 2 => 0.0 (максимальная неоднозначность, нужны дебаты).
// Склейка "точно чисто" и "точно фрод" в один числовой сигнал — осознанное
// свойство метрики: она решает только вопрос "запускать ли дебаты".
func CompositeRisk(set domain.AnomalySet) float64 {
	return round2(math.Abs(float64(set.Count())-2) / 2.0)
}

// CollectSignals возвращает фиксированные метки сработавших измерений.
func CollectSignals(set domain.AnomalySet) []string {
	var signals []string
	if set.Amount.IsAnomaly {
		signals = append(signals, LabelUnusualAmount)
	}
	if set.Time.IsAnomaly {
		signals = append(signals, LabelUnusualHour)
	}
	if set.Device.IsAnomaly {
		signals = append(signals, LabelUnusualDevice)
	}
	if set.Country.IsAnomaly {
		signals = append(signals, LabelUnusualCountry)
	}
	if len(signals) == 0 {
		signals = append(signals, LabelNormal)
	}
	return signals
}

// parseHourRange разбирает диапазон вида "08-20" в пару часов [start, end].
func parseHourRange(raw string) (start, end int, err error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"start-end\"")
	}

	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("start hour: %w", err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("end hour: %w", err)
	}

	if start < 0 || start > 23 || end < 0 || end > 23 || start > end {
		return 0, 0, fmt.Errorf("hours out of range")
	}
	return start, end, nil
}

func noData() domain.AnomalySignal {
	return domain.AnomalySignal{IsAnomaly: false, Score: 0.0, Reason: noDataReason}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
