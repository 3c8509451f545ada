package anomaly_test

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/anomaly"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

func baseTx() domain.Transaction {
	return domain.Transaction{
		ID:         "tx-001",
		CustomerID: "C-001",
		Amount:     100,
		Currency:   "PEN",
		Country:    "PE",
		Channel:    "web",
		DeviceID:   "D-01",
		Timestamp:  time.Date(2026, 3, 10, 14, 0, 0, 0, time.FixedZone("-05", -5*3600)),
	}
}

func baseProfile() *domain.BehaviorProfile {
	return &domain.BehaviorProfile{
		CustomerID:     "C-001",
		UsualAmountAvg: 50,
		UsualHours:     "08-20",
		UsualCountries: []string{"PE"},
		UsualDevices:   []string{"D-01"},
	}
}

func TestCheckAmount_ThresholdIsStrict(t *testing.T) {
	e := anomaly.NewEngine()

	tests := []struct {
		name      string
		amount    float64
		avg       float64
		isAnomaly bool
		score     float64
	}{
		{"ratio exactly 2 is not anomalous", 100, 50, false, 0.30},
		{"ratio just above 2 is anomalous", 100.5, 50, true, 0.95},
		{"ratio 5 is anomalous, score capped", 250, 50, true, 1.0},
		{"ratio below 1", 25, 50, false, 0.08},
		{"zero average means no data, ratio 0", 100, 0, false, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := baseTx()
			tx.Amount = tc.amount
			p := baseProfile()
			p.UsualAmountAvg = tc.avg

			sig := e.CheckAmount(tx, p)
			if sig.IsAnomaly != tc.isAnomaly {
				t.Errorf("is_anomaly = %v, want %v", sig.IsAnomaly, tc.isAnomaly)
			}
			if math.Abs(sig.Score-tc.score) > 1e-9 {
				t.Errorf("score = %v, want %v", sig.Score, tc.score)
			}
		})
	}
}

// Скор монотонно не убывает по ratio на каждой стороне порога.
func TestCheckAmount_ScoreMonotonic(t *testing.T) {
	e := anomaly.NewEngine()
	p := baseProfile()

	prev := -1.0
	for _, amount := range []float64{10, 25, 50, 75, 100} { // ratio 0.2..2.0
		tx := baseTx()
		tx.Amount = amount
		sig := e.CheckAmount(tx, p)
		if sig.IsAnomaly {
			t.Fatalf("ratio %v must not be anomalous", amount/p.UsualAmountAvg)
		}
		if sig.Score < prev {
			t.Errorf("score decreased at amount %v: %v < %v", amount, sig.Score, prev)
		}
		prev = sig.Score
	}

	prev = -1.0
	for _, amount := range []float64{101, 150, 200, 500} { // ratio > 2
		tx := baseTx()
		tx.Amount = amount
		sig := e.CheckAmount(tx, p)
		if !sig.IsAnomaly {
			t.Fatalf("ratio %v must be anomalous", amount/p.UsualAmountAvg)
		}
		if sig.Score < prev {
			t.Errorf("score decreased at amount %v: %v < %v", amount, sig.Score, prev)
		}
		prev = sig.Score
	}
}

func TestCheckTime(t *testing.T) {
	e := anomaly.NewEngine()

	tests := []struct {
		name      string
		hour      int
		hours     string
		isAnomaly bool
		score     float64
	}{
		{"inside range", 14, "08-20", false, 0.10},
		{"start boundary inclusive", 8, "08-20", false, 0.10},
		{"end boundary inclusive", 20, "08-20", false, 0.10},
		{"before range", 3, "08-20", true, 0.85},
		{"after range", 23, "08-20", true, 0.85},
		{"malformed range fails open", 3, "whenever", false, 0.0},
		{"inverted range fails open", 3, "20-08", false, 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := baseTx()
			tx.Timestamp = time.Date(2026, 3, 10, tc.hour, 30, 0, 0, time.FixedZone("-05", -5*3600))
			p := baseProfile()
			p.UsualHours = tc.hours

			sig := e.CheckTime(tx, p)
			if sig.IsAnomaly != tc.isAnomaly || math.Abs(sig.Score-tc.score) > 1e-9 {
				t.Errorf("got (%v, %v), want (%v, %v); reason: %s",
					sig.IsAnomaly, sig.Score, tc.isAnomaly, tc.score, sig.Reason)
			}
		})
	}
}

// Час берется в зоне транзакции, а не в UTC.
func TestCheckTime_UsesLocalHour(t *testing.T) {
	e := anomaly.NewEngine()
	tx := baseTx()
	// 19:00 UTC == 14:00 в -05 — внутри диапазона 08-20.
	tx.Timestamp = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC).In(time.FixedZone("-05", -5*3600))

	sig := e.CheckTime(tx, baseProfile())
	if sig.IsAnomaly {
		t.Errorf("expected local hour 14 inside 08-20, got anomaly: %s", sig.Reason)
	}
}

func TestCheckDeviceAndCountry(t *testing.T) {
	e := anomaly.NewEngine()

	tx := baseTx()
	p := baseProfile()

	if sig := e.CheckDevice(tx, p); sig.IsAnomaly || sig.Score != 0.05 {
		t.Errorf("known device: got (%v, %v)", sig.IsAnomaly, sig.Score)
	}
	tx.DeviceID = "D-99"
	if sig := e.CheckDevice(tx, p); !sig.IsAnomaly || sig.Score != 0.85 {
		t.Errorf("unknown device: got (%v, %v)", sig.IsAnomaly, sig.Score)
	}

	tx = baseTx()
	if sig := e.CheckCountry(tx, p); sig.IsAnomaly || sig.Score != 0.05 {
		t.Errorf("known country: got (%v, %v)", sig.IsAnomaly, sig.Score)
	}
	tx.Country = "RO"
	if sig := e.CheckCountry(tx, p); !sig.IsAnomaly || sig.Score != 0.75 {
		t.Errorf("unknown country: got (%v, %v)", sig.IsAnomaly, sig.Score)
	}
}

func TestMissingProfile_AllChecksDegrade(t *testing.T) {
	e := anomaly.NewEngine()
	set, risk, signals := e.Analyze(baseTx(), nil)

	for name, sig := range map[string]domain.AnomalySignal{
		"amount": set.Amount, "time": set.Time, "device": set.Device, "country": set.Country,
	} {
		if sig.IsAnomaly || sig.Score != 0.0 {
			t.Errorf("%s: expected no-data signal, got (%v, %v)", name, sig.IsAnomaly, sig.Score)
		}
	}
	// 0 аномалий — композит 1.0, метка одна.
	if risk != 1.0 {
		t.Errorf("composite = %v, want 1.0", risk)
	}
	if diff := cmp.Diff([]string{anomaly.LabelNormal}, signals); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}
}

func TestCompositeRisk_SymmetricAroundTwo(t *testing.T) {
	mk := func(n int) domain.AnomalySet {
		var set domain.AnomalySet
		sigs := []*domain.AnomalySignal{&set.Amount, &set.Time, &set.Device, &set.Country}
		for i := 0; i < n; i++ {
			sigs[i].IsAnomaly = true
		}
		return set
	}

	want := map[int]float64{0: 1.0, 1: 0.5, 2: 0.0, 3: 0.5, 4: 1.0}
	for n, risk := range want {
		if got := anomaly.CompositeRisk(mk(n)); got != risk {
			t.Errorf("risk(%d) = %v, want %v", n, got, risk)
		}
	}
	// Симметрия risk(n) == risk(4-n).
	for n := 0; n <= 4; n++ {
		if anomaly.CompositeRisk(mk(n)) != anomaly.CompositeRisk(mk(4-n)) {
			t.Errorf("risk(%d) != risk(%d)", n, 4-n)
		}
	}
}

func TestCollectSignals_AllAnomalous(t *testing.T) {
	set := domain.AnomalySet{
		Amount:  domain.AnomalySignal{IsAnomaly: true},
		Time:    domain.AnomalySignal{IsAnomaly: true},
		Device:  domain.AnomalySignal{IsAnomaly: true},
		Country: domain.AnomalySignal{IsAnomaly: true},
	}
	want := []string{
		anomaly.LabelUnusualAmount,
		anomaly.LabelUnusualHour,
		anomaly.LabelUnusualDevice,
		anomaly.LabelUnusualCountry,
	}
	if diff := cmp.Diff(want, anomaly.CollectSignals(set)); diff != "" {
		t.Errorf("signals mismatch (-want +got):\n%s", diff)
	}
}
