package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marlowe-agent/marlowe/internal/agent"
	"github.com/marlowe-agent/marlowe/internal/channel"
	"github.com/marlowe-agent/marlowe/internal/storage"
	"github.com/marlowe-agent/marlowe/internal/tools"
)

// Prompter sends a scheduler-originated prompt through the agent.
type Prompter interface {
	Send(ctx context.Context, req agent.SendRequest) (string, error)
}

// StoredJob is the durable form of a model-created job.
type StoredJob struct {
	ID      string    `msgpack:"id"`
	Prompt  string    `msgpack:"prompt"`
	Seconds int       `msgpack:"seconds"`
	Repeat  bool      `msgpack:"repeat"`
	Channel string    `msgpack:"channel"`
	Created time.Time `msgpack:"created"`
}

// Toolset exposes job management to the model and survives restarts by
// persisting jobs. It owns every job on its scheduler, so stored order
// and scheduler positions stay aligned.
type Toolset struct {
	logger  *slog.Logger
	sched   *Scheduler
	prompts Prompter
	hub     *channel.Hub
	file    *storage.File[StoredJob]
}

func NewToolset(logger *slog.Logger, sched *Scheduler, prompts Prompter, hub *channel.Hub, file *storage.File[StoredJob]) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{
		logger:  logger.With("component", "jobs"),
		sched:   sched,
		prompts: prompts,
		hub:     hub,
		file:    file,
	}
}

// Reload restores persisted jobs into the scheduler. One-shot jobs
// whose due time passed while the agent was down fire on the next
// tick.
func (t *Toolset) Reload(ctx context.Context) error {
	jobs, err := t.file.Load()
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, j := range jobs {
		delay := time.Until(j.Created.Add(time.Duration(j.Seconds) * time.Second))
		if delay < 0 {
			delay = 0
		}
		t.schedule(j, delay)
	}
	if len(jobs) > 0 {
		t.logger.Info("jobs restored", "count", len(jobs))
	}
	return nil
}

func (t *Toolset) schedule(j StoredJob, delay time.Duration) {
	repeat := time.Duration(0)
	if j.Repeat {
		repeat = time.Duration(j.Seconds) * time.Second
	}
	t.sched.Add(func(ctx context.Context) {
		t.fire(ctx, j)
	}, delay, repeat)
}

// fire sends the job's prompt through the agent outside the
// conversation window, with tools available, and announces the reply
// on the job's channel.
func (t *Toolset) fire(ctx context.Context, j StoredJob) {
	t.logger.Info("job fired", "id", j.ID, "repeat", j.Repeat)

	if j.Repeat {
		// The scheduler re-adds a fired repeating job at the end of its
		// list; move the stored record there too so list_jobs positions
		// keep matching, and re-anchor it so a restart resumes the
		// interval from this firing.
		if err := t.requeue(j.ID); err != nil {
			t.logger.Error("requeue repeating job", "id", j.ID, "error", err)
		}
	} else {
		if err := t.forget(j.ID); err != nil {
			t.logger.Error("drop finished job", "id", j.ID, "error", err)
		}
	}

	out, err := t.prompts.Send(ctx, agent.SendRequest{
		Content:  fmt.Sprintf("A job you scheduled is due. Carry it out now: %s", j.Prompt),
		Channel:  "scheduler",
		UseTools: true,
	})
	if err != nil {
		t.logger.Error("job prompt failed", "id", j.ID, "error", err)
		return
	}
	if out == "" || t.hub == nil {
		return
	}
	if err := t.hub.Announce(ctx, j.Channel, out); err != nil {
		t.logger.Error("job announce failed", "id", j.ID, "error", err)
	}
}

func (t *Toolset) requeue(id string) error {
	jobs, err := t.file.Load()
	if err != nil {
		return err
	}
	kept := make([]StoredJob, 0, len(jobs))
	var fired *StoredJob
	for _, j := range jobs {
		if j.ID == id {
			moved := j
			fired = &moved
			continue
		}
		kept = append(kept, j)
	}
	if fired == nil {
		return fmt.Errorf("no stored job %s", id)
	}
	fired.Created = time.Now()
	return t.file.Save(append(kept, *fired))
}

func (t *Toolset) forget(id string) error {
	jobs, err := t.file.Load()
	if err != nil {
		return err
	}
	kept := jobs[:0]
	for _, j := range jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	return t.file.Save(kept)
}

// Methods implements tools.Toolset.
func (t *Toolset) Methods() []tools.Method {
	return []tools.Method{
		{
			Name: "add_job",
			Doc: `Schedule a prompt to be sent back to you later. Use this for reminders, delayed actions, and recurring checks.

Args:
    prompt: The instruction to carry out when the job fires.
    seconds: How many seconds from now the job fires.
    repeat: Fire every interval instead of once.`,
			Args: addJobArgs{},
			Call: t.addJob,
		},
		{
			Name: "list_jobs",
			Doc:  "List pending scheduled jobs with their positions.",
			Call: t.listJobs,
		},
		{
			Name: "cancel_job",
			Doc: `Cancel a pending job.

Args:
    index: The job position as shown by list_jobs.`,
			Args: cancelJobArgs{},
			Call: t.cancelJob,
		},
	}
}

type addJobArgs struct {
	Prompt  string `json:"prompt"`
	Seconds int    `json:"seconds"`
	Repeat  bool   `json:"repeat"`
}

type cancelJobArgs struct {
	Index int `json:"index"`
}

func (t *Toolset) addJob(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a addJobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	if a.Seconds < 0 {
		return nil, fmt.Errorf("seconds must not be negative")
	}
	if a.Repeat && a.Seconds == 0 {
		return nil, fmt.Errorf("a repeating job needs a non-zero interval")
	}

	j := StoredJob{
		ID:      uuid.NewString(),
		Prompt:  a.Prompt,
		Seconds: a.Seconds,
		Repeat:  a.Repeat,
		Channel: inv.Channel,
		Created: time.Now(),
	}

	jobs, err := t.file.Load()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	if err := t.file.Save(append(jobs, j)); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}
	t.schedule(j, time.Duration(a.Seconds)*time.Second)

	kind := "one-shot"
	if a.Repeat {
		kind = "repeating"
	}
	return fmt.Sprintf("Scheduled %s job in %d seconds.", kind, a.Seconds), nil
}

func (t *Toolset) listJobs(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	jobs, err := t.file.Load()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	if len(jobs) == 0 {
		return "No pending jobs.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending job(s):\n", len(jobs))
	for i, j := range jobs {
		kind := "once"
		if j.Repeat {
			kind = fmt.Sprintf("every %ds", j.Seconds)
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i, kind, j.Prompt)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (t *Toolset) cancelJob(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a cancelJobArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	jobs, err := t.file.Load()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	if a.Index < 0 || a.Index >= len(jobs) {
		return nil, fmt.Errorf("no job at index %d", a.Index)
	}
	if !t.sched.Delete(a.Index) {
		return nil, fmt.Errorf("no job at index %d", a.Index)
	}

	cancelled := jobs[a.Index]
	if err := t.file.Save(append(jobs[:a.Index], jobs[a.Index+1:]...)); err != nil {
		return nil, fmt.Errorf("save jobs: %w", err)
	}
	return fmt.Sprintf("Cancelled job: %s", cancelled.Prompt), nil
}
