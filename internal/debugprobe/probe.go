// Package debugprobe is a diagnostic channel to the backend, independent of
// any assessment in progress.
package debugprobe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/talent-manual/internal/backend"
)

// Role tags a log entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
	RoleSuccess   Role = "success"
)

const readyMessage = "调试面板已就绪。点击 \"开始\" 或发送消息测试后端。"

// Entry is one line of the probe log.
type Entry struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Probe records every diagnostic exchange with the backend.
type Probe struct {
	client  backend.Debugger
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries []Entry
}

// New creates a probe whose log holds a single ready entry.
func New(client backend.Debugger, timeout time.Duration, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Probe{client: client, timeout: timeout, logger: logger}
	p.append(RoleSystem, readyMessage)
	return p
}

// Open asks the backend for its opening debug message.
func (p *Probe) Open(ctx context.Context) []Entry {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	reply, err := p.client.DebugStart(ctx)
	if err != nil {
		p.fail("start", err)
		return p.Entries()
	}
	p.append(RoleAssistant, reply.Reply)
	return p.Entries()
}

// Ping checks backend health.
func (p *Probe) Ping(ctx context.Context) []Entry {
	ctx, cancel := p.callContext(ctx)
	defer cancel()

	status, err := p.client.Health(ctx)
	if err != nil {
		p.fail("health", err)
		return p.Entries()
	}
	p.append(RoleSuccess, fmt.Sprintf("后端状态: %s, 模型: %s", status.Status, status.Model))
	return p.Entries()
}

// Send forwards a free-form message. Blank messages are ignored.
func (p *Probe) Send(ctx context.Context, message string) []Entry {
	message = strings.TrimSpace(message)
	if message == "" {
		return p.Entries()
	}
	p.append(RoleUser, message)

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	reply, err := p.client.DebugChat(ctx, message)
	if err != nil {
		p.fail("chat", err)
		return p.Entries()
	}
	if strings.TrimSpace(reply.Reply) == "" {
		p.append(RoleError, "后端返回了空回复")
		return p.Entries()
	}
	p.append(RoleAssistant, reply.Reply)
	return p.Entries()
}

// Entries returns a copy of the log.
func (p *Probe) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Entry(nil), p.entries...)
}

func (p *Probe) fail(op string, err error) {
	p.logger.Warn("Debug probe call failed", "op", op, "error", err)
	p.append(RoleError, fmt.Sprintf("%s 失败: %v", op, err))
}

func (p *Probe) append(role Role, content string) {
	p.mu.Lock()
	p.entries = append(p.entries, Entry{Role: role, Content: content, At: time.Now()})
	p.mu.Unlock()
}

func (p *Probe) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}
