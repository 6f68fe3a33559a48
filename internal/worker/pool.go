// Package worker выполняет долгие операции (выгрузки, пакетные запросы расстояний,
// расчет зарплаты) в фиксированном пуле горутин.
//
// Каждая задача получает uuid и собственный отменяемый контекст. Ход выполнения
// публикуется в канал сообщений, итог можно запросить по id.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rideguardian/internal/apperrors"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished - задача завершилась тем или иным образом.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Func - тело задачи. progress публикует промежуточное сообщение.
type Func func(ctx context.Context, progress func(text string)) (interface{}, error)

// Job - снимок состояния задачи.
type Job struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Result    interface{}    `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind apperrors.Kind `json:"error_kind,omitempty"`
	Created   time.Time      `json:"created_at"`
	Started   *time.Time     `json:"started_at,omitempty"`
	Finished  *time.Time     `json:"finished_at,omitempty"`
}

// Message - уведомление о ходе задачи.
type Message struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
}

type entry struct {
	job    Job
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
}

// Pool - пул исполнителей с реестром задач.
type Pool struct {
	mu       sync.RWMutex
	jobs     map[string]*entry
	queue    chan *entry
	messages chan Message
	closed   bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	now        func() time.Time
}

// NewPool запускает workers горутин. queueSize - сколько задач может ждать в очереди.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:       make(map[string]*entry),
		queue:      make(chan *entry, queueSize),
		messages:   make(chan Message, 4*queueSize),
		baseCtx:    ctx,
		baseCancel: cancel,
		now:        time.Now,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	log.Printf("Пул задач запущен: %d исполнителей, очередь %d", workers, queueSize)
	return p
}

// Messages - канал уведомлений. Если читатель не успевает, сообщения отбрасываются,
// состояние задачи при этом остается доступным через Get.
func (p *Pool) Messages() <-chan Message { return p.messages }

// Submit ставит задачу в очередь и возвращает ее id.
func (p *Pool) Submit(kind string, fn Func) (string, error) {
	ctx, cancel := context.WithCancel(p.baseCtx)
	e := &entry{
		job:    Job{ID: uuid.NewString(), Kind: kind, Status: StatusQueued, Created: p.now()},
		fn:     fn,
		ctx:    ctx,
		cancel: cancel,
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return "", apperrors.Conflict("job", "Der Aufgabenpool ist beendet")
	}
	select {
	case p.queue <- e:
	default:
		p.mu.Unlock()
		cancel()
		return "", apperrors.Conflict("job", "Zu viele laufende Aufgaben, bitte später erneut versuchen")
	}
	p.jobs[e.job.ID] = e
	p.mu.Unlock()

	jobsTotal.WithLabelValues(kind, string(StatusQueued)).Inc()
	p.publish(e.job, "")
	return e.job.ID, nil
}

// Get возвращает снимок задачи.
func (p *Pool) Get(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// List - снимки всех известных задач.
func (p *Pool) List() []Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Job, 0, len(p.jobs))
	for _, e := range p.jobs {
		out = append(out, e.job)
	}
	return out
}

// Cancel отменяет задачу. Завершенную задачу отменить нельзя.
func (p *Pool) Cancel(id string) error {
	p.mu.Lock()
	e, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return apperrors.NotFound("Aufgabe %s nicht gefunden", id)
	}
	if e.job.Status.Finished() {
		p.mu.Unlock()
		return apperrors.Conflict("job", "Aufgabe %s ist bereits abgeschlossen", id)
	}
	p.mu.Unlock()
	e.cancel()
	log.WithField("job_id", id).Info("Отмена задачи запрошена")
	return nil
}

// Prune удаляет из реестра задачи, завершенные раньше before.
func (p *Pool) Prune(before time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, e := range p.jobs {
		if e.job.Finished != nil && e.job.Finished.Before(before) {
			delete(p.jobs, id)
			n++
		}
	}
	return n
}

// Shutdown перестает принимать задачи, отменяет выполняемые и ждет исполнителей.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.baseCancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		close(p.messages)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("пул задач не остановился: %w", ctx.Err())
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for e := range p.queue {
		p.run(e)
	}
}

func (p *Pool) run(e *entry) {
	defer e.cancel()
	if e.ctx.Err() != nil {
		p.finish(e, nil, apperrors.Cancelled(e.ctx.Err()))
		return
	}
	started := p.now()
	p.update(e, func(j *Job) {
		j.Status = StatusRunning
		j.Started = &started
	})
	progress := func(text string) {
		p.update(e, func(j *Job) { j.Message = text })
	}
	result, err := p.call(e, progress)
	p.finish(e, result, err)
}

func (p *Pool) call(e *entry, progress func(string)) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("job_id", e.job.ID).Errorf("Паника в задаче %s: %v", e.job.Kind, r)
			err = apperrors.Internal(fmt.Errorf("panic: %v", r), "Interner Fehler in Aufgabe %s", e.job.Kind)
		}
	}()
	return e.fn(e.ctx, progress)
}

func (p *Pool) finish(e *entry, result interface{}, err error) {
	finished := p.now()
	status := StatusDone
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrCancelled):
		status = StatusCancelled
	default:
		status = StatusFailed
	}
	p.update(e, func(j *Job) {
		j.Status = status
		j.Result = result
		j.Finished = &finished
		if err != nil {
			j.Error = err.Error()
			j.ErrorKind = apperrors.KindOf(err)
		}
	})
	jobsTotal.WithLabelValues(e.job.Kind, string(status)).Inc()
	fields := log.Fields{"job_id": e.job.ID, "kind": e.job.Kind, "status": status}
	if err != nil && status == StatusFailed {
		log.WithFields(fields).Errorf("Задача завершилась с ошибкой: %v", err)
	} else {
		log.WithFields(fields).Info("Задача завершена")
	}
}

func (p *Pool) update(e *entry, mutate func(*Job)) {
	p.mu.Lock()
	mutate(&e.job)
	snapshot := e.job
	p.mu.Unlock()
	p.publish(snapshot, snapshot.Message)
}

func (p *Pool) publish(j Job, text string) {
	if j.Error != "" {
		text = j.Error
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed && j.Status == StatusQueued {
		return
	}
	select {
	case p.messages <- Message{JobID: j.ID, Kind: j.Kind, Status: j.Status, Text: text}:
	default:
		log.WithField("job_id", j.ID).Debug("Канал сообщений переполнен, сообщение отброшено")
	}
}
