package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/abennett/rollbot/pkg/client"
	"github.com/abennett/rollbot/pkg/messages"
)

const visibleReplies = 10

var (
	chatFlags = flag.NewFlagSet("chat", flag.ExitOnError)
	chatLog   = registerLogFlags(chatFlags)
	_         = chatFlags.String("config", "", "config file (optional)")
)

var chatCmd = &ffcli.Command{
	Name:       "chat",
	ShortUsage: "rollbot chat [flags] <host> <room> <user>",
	ShortHelp:  "join a dice room",
	FlagSet:    chatFlags,
	Options:    options(),
	Exec:       chatRemote,
}

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	Align(lipgloss.Center)

var columns = []table.Column{
	{Title: "User", Width: 10},
	{Title: "Roll", Width: 24},
	{Title: "Total", Width: 6},
}

type chat struct {
	client *client.Client
	table  table.Model
	input  textinput.Model
	latest string
}

func newChat(c *client.Client) *chat {
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(0),
		table.WithFocused(false),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Foreground(lipgloss.Color("#01c5d1"))
	s.Selected = s.Selected.Foreground(lipgloss.NoColor{}).Bold(false)
	t.SetStyles(s)

	in := textinput.New()
	in.Placeholder = "2d6 + 3"
	in.Prompt = "roll> "
	in.CharLimit = 256
	in.Focus()

	return &chat{
		client: c,
		table:  t,
		input:  in,
	}
}

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg {
		return err
	}
}

func (c *chat) readUpdate() tea.Msg {
	return c.client.ReadUpdate()
}

func (c *chat) Init() tea.Cmd {
	if err := c.client.Init(); err != nil {
		return errorCmd(err)
	}
	return tea.Batch(textinput.Blink, c.readUpdate)
}

func repliesToRows(replies []messages.RollReply) []table.Row {
	if len(replies) > visibleReplies {
		replies = replies[len(replies)-visibleReplies:]
	}
	rows := make([]table.Row, len(replies))
	for idx, reply := range replies {
		rows[idx] = table.Row{reply.User, reply.Expression, strconv.Itoa(reply.Total)}
	}
	return rows
}

func (c *chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case []messages.RollReply:
		slog.Debug("room update", "replies", len(msg))
		rows := repliesToRows(msg)
		c.table.SetHeight(len(rows) + 1)
		c.table.SetRows(rows)
		if len(msg) > 0 {
			c.latest = msg[len(msg)-1].Text
		}
		return c, c.readUpdate
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if err := c.client.Close(); err != nil {
				slog.Error("failed to close client", "error", err)
			}
			return c, tea.Quit
		case tea.KeyEnter:
			line := c.input.Value()
			c.input.Reset()
			if line == "" {
				return c, nil
			}
			if err := c.client.Roll(line); err != nil {
				return c, errorCmd(err)
			}
			return c, nil
		}
	case error:
		if !errors.Is(msg, client.ErrClosed) {
			slog.Error("exiting for error", "error", msg)
		}
		return c, tea.Quit
	}
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c *chat) View() string {
	view := baseStyle.Render(c.table.View()) + "\n"
	if c.latest != "" {
		view += renderMarkup(c.latest) + "\n"
	}
	return view + "\n" + c.input.View() + "\n"
}

func chatRemote(_ context.Context, args []string) error {
	if len(args) != 3 {
		return flag.ErrHelp
	}
	// the terminal belongs to the UI, so logs only go to a file
	logger, logWriter, err := chatLog.logger(io.Discard)
	if err != nil {
		return err
	}
	defer logWriter.Close()
	slog.SetDefault(logger)

	c, err := client.New(args[0], args[1], args[2], logWriter)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(newChat(c)).Run()
	return err
}
