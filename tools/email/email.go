// Package email provides the email_scheduler tool,
// that sends an email now or schedules it for later.
package email

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Message is an outbound email
type Message struct {
	To      []string `json:"to" yaml:"to"`
	Subject string   `json:"subject" yaml:"subject"`
	Body    string   `json:"body" yaml:"body"`
}

// Mailer sends emails on behalf of the user
type Mailer interface {
	// Send returns the ID of the sent message
	Send(ctx context.Context, msg *Message) (string, error)
}

// Job is the scheduled function
type Job func(ctx context.Context) error

// Scheduler runs jobs at the specified time
type Scheduler interface {
	// Schedule returns the ID of the scheduled job
	Schedule(at time.Time, job Job) (string, error)
}

// MemoryMailer keeps the sent messages in memory
type MemoryMailer struct {
	lock sync.Mutex
	sent []*Message
}

// NewMemoryMailer returns an in-memory Mailer
func NewMemoryMailer() *MemoryMailer {
	return &MemoryMailer{}
}

func (m *MemoryMailer) Send(_ context.Context, msg *Message) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sent = append(m.sent, msg)
	return strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

// Sent returns the sent messages
func (m *MemoryMailer) Sent() []*Message {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]*Message(nil), m.sent...)
}

type scheduled struct {
	id  string
	at  time.Time
	job Job
}

// MemoryScheduler keeps the jobs in memory until RunDue is called
type MemoryScheduler struct {
	lock sync.Mutex
	jobs []*scheduled
}

// NewMemoryScheduler returns an in-memory Scheduler
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

func (s *MemoryScheduler) Schedule(at time.Time, job Job) (string, error) {
	if job == nil {
		return "", errors.New("job must not be nil")
	}
	j := &scheduled{
		id:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		at:  at,
		job: job,
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.jobs = append(s.jobs, j)
	sort.SliceStable(s.jobs, func(i, k int) bool {
		return s.jobs[i].at.Before(s.jobs[k].at)
	})
	return j.id, nil
}

// Pending returns the number of jobs not yet run
func (s *MemoryScheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.jobs)
}

// RunDue runs the jobs scheduled at or before now,
// and returns the number of jobs run and the first error.
func (s *MemoryScheduler) RunDue(ctx context.Context, now time.Time) (int, error) {
	s.lock.Lock()
	var due []*scheduled
	i := 0
	for ; i < len(s.jobs) && !s.jobs[i].at.After(now); i++ {
		due = append(due, s.jobs[i])
	}
	s.jobs = s.jobs[i:]
	s.lock.Unlock()

	var firstErr error
	for _, j := range due {
		if err := j.job(ctx); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "job %s", j.id)
		}
	}
	return len(due), firstErr
}
