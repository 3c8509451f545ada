package audit

/*
Файл recorder.go — асинхронный сборщик журнала аудита пайплайна.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят в неблокирующий канал из Hot Path
  пайплайна, задержки записи в БД не влияют на время ответа.
- Batching & Efficiency: накопление событий в памяти и пакетная запись
  (Bulk Insert) в PostgreSQL по таймеру или при достижении лимита (100 событий).
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается
  полностью (sync.WaitGroup + закрытие канала), финальный flush гарантирован.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []StageEvent) error
}

type Auditor interface {
	Log(event StageEvent)
}

type Recorder struct {
	ch     chan StageEvent
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewRecorder(repo StorageInterface, logger *zap.Logger) *Recorder {
	return &Recorder{
		ch:     make(chan StageEvent, 10000), // Очередь на 10к событий
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit-recorder")),
	}
}

func (rec *Recorder) Start() {
	rec.wg.Add(1)
	go rec.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (rec *Recorder) Stop() {
	atomic.StoreInt32(&rec.isClosed, 1)

	// Даем крошечную паузу, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	rec.logger.Info("stopping audit recorder: closing channel and flushing buffer...")
	close(rec.ch)
	rec.wg.Wait()
	rec.logger.Info("audit recorder stopped gracefully")
}

func (rec *Recorder) Log(event StageEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&rec.isClosed) == 1 {
		rec.logger.Warn("audit event dropped: recorder is stopping", zap.String("id", event.ID))
		return
	}

	// Стратегия Load Shedding: переполненный буфер не блокирует пайплайн
	select {
	case rec.ch <- event:
	default:
		rec.logger.Error("audit_buffer_overflow",
			zap.String("transaction_id", event.TransactionID),
			zap.String("stage", event.Stage),
		)
	}
}

func (rec *Recorder) worker() {
	defer rec.wg.Done()

	batch := make([]StageEvent, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на момент drain может быть закрыт
			if err := rec.repo.WriteBatch(context.Background(), batch); err != nil {
				rec.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-rec.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитываем остатки и выходим
				flush()
				rec.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
