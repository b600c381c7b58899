// Package scanui renders a running scan in the terminal.
package scanui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/rxscan/rxscan/pkg/bus"
	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/pipeline"
	"github.com/rxscan/rxscan/pkg/scanner"
)

type Runner interface {
	Run(ctx context.Context, mode scanner.ColorMode) (pipeline.Outcome, error)
}

var (
	accentColor = lipgloss.Color("#0176CE")
	doneColor   = lipgloss.Color("#3FA34D")
	failColor   = lipgloss.Color("#E88B8D")
	faint       = lipgloss.NewStyle().Faint(true)
)

var stages = []events.Status{events.Scanning, events.Converting, events.Done}

type eventMsg events.PipelineEvent

type outcomeMsg struct {
	outcome pipeline.Outcome
	err     error
}

type scanModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	runner  Runner
	mode    scanner.ColorMode
	device  string
	updates <-chan events.PipelineEvent

	status events.Status
	// reached is the index in stages of the furthest stage seen.
	reached  int
	started  time.Time
	spinner  spinner.Model
	canceled bool

	outcome *pipeline.Outcome
	err     error
}

func newScanModel(ctx context.Context, runner Runner, mode scanner.ColorMode, device string, updates <-chan events.PipelineEvent) scanModel {
	ctx, cancel := context.WithCancel(ctx)
	return scanModel{
		ctx:     ctx,
		cancel:  cancel,
		runner:  runner,
		mode:    mode,
		device:  device,
		updates: updates,
		status:  events.Ready,
		started: time.Now(),
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(accentColor)),
		),
	}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, runScan(m.ctx, m.runner, m.mode), waitForEvent(m.updates))
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Everything but cancel is ignored while the scan runs.
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.canceled = true
			m.cancel()
		}
		return m, nil

	case eventMsg:
		m.setStatus(msg.Status)
		return m, waitForEvent(m.updates)

	case outcomeMsg:
		m.outcome = &msg.outcome
		m.err = msg.err
		if msg.err == nil {
			m.setStatus(msg.outcome.Status)
		} else {
			m.setStatus(events.Failed)
		}
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m *scanModel) setStatus(s events.Status) {
	m.status = s
	if i := stageIndex(s); i > m.reached {
		m.reached = i
	}
}

func (m scanModel) View() string {
	var b strings.Builder
	device := m.device
	if device == "" {
		device = "no scanner"
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render("⬢ "+device) + " " + faint.Render(m.mode.String()) + "\n\n")

	for i, stage := range stages {
		switch {
		case i < m.reached || (i == m.reached && m.status == events.Done):
			b.WriteString(lipgloss.NewStyle().Foreground(doneColor).Render("✓ "+label(stage)) + "\n")
		case i == m.reached && m.status == events.Failed:
			b.WriteString(lipgloss.NewStyle().Foreground(failColor).Render("✗ "+label(stage)) + "\n")
		case i == m.reached && m.status == events.Cancelled:
			b.WriteString(faint.Render("- "+label(stage)+" (cancelled)") + "\n")
		case i == m.reached:
			b.WriteString(m.spinner.View() + " " + stage.Message() + "\n")
		default:
			b.WriteString(faint.Render("  "+label(stage)) + "\n")
		}
	}
	b.WriteString("\n" + faint.Render(fmt.Sprintf("%s elapsed", time.Since(m.started).Round(time.Second))))
	if m.canceled {
		b.WriteString(faint.Render(" · cancelling..."))
	} else if m.outcome == nil {
		b.WriteString(faint.Render(" · press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func label(s events.Status) string {
	switch s {
	case events.Scanning:
		return "Scan"
	case events.Converting:
		return "Convert to JPEG"
	case events.Done:
		return "Save"
	}
	return string(s)
}

func stageIndex(s events.Status) int {
	for i, stage := range stages {
		if stage == s {
			return i
		}
	}
	return -1
}

func runScan(ctx context.Context, runner Runner, mode scanner.ColorMode) tea.Cmd {
	return func() tea.Msg {
		out, err := runner.Run(ctx, mode)
		return outcomeMsg{outcome: out, err: err}
	}
}

func waitForEvent(updates <-chan events.PipelineEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-updates
		if !ok {
			return nil
		}
		return eventMsg(evt)
	}
}

// RunScanUI runs one scan while rendering its progress, then prints the
// result to w.
func RunScanUI(ctx context.Context, runner Runner, sub bus.Subscriber, mode scanner.ColorMode, device string, w io.Writer) (pipeline.Outcome, error) {
	updates := make(chan events.PipelineEvent, 8)
	handler := func(evt events.PipelineEvent) {
		select {
		case updates <- evt:
		default:
		}
	}
	unsubscribe, err := bus.OnPipeline(sub, handler)
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("subscribing to pipeline events: %w", err)
	}
	defer unsubscribe()

	var teaOpts []tea.ProgramOption
	// if no tty present, don't expect one (e.g. when a debugger is attached)
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		teaOpts = append(teaOpts,
			tea.WithoutRenderer(),
			tea.WithInput(io.NopCloser(strings.NewReader(""))),
			tea.WithOutput(io.Discard),
		)
	}
	model := newScanModel(ctx, runner, mode, device, updates)
	defer model.cancel()
	final, err := tea.NewProgram(model, teaOpts...).Run()
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("running scan UI: %w", err)
	}
	m := final.(scanModel)
	if m.outcome == nil {
		return pipeline.Outcome{}, errors.New("scan UI exited before the scan finished")
	}
	if m.err != nil {
		return *m.outcome, m.err
	}

	switch m.outcome.Status {
	case events.Cancelled:
		fmt.Fprintln(w, events.Cancelled.Message())
	case events.Done:
		fmt.Fprintf(w, "Saved %s (%s)\n", m.outcome.Output, humanize.IBytes(uint64(m.outcome.Size)))
	}
	return *m.outcome, nil
}
