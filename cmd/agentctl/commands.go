package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/effective-security/agentloop/chatmodel"
	"github.com/effective-security/x/slices"
)

// RunCmd runs one turn
type RunCmd struct {
	ChatID  string   `name:"chat" help:"ID of the chat to continue, a new chat is started if empty"`
	Message []string `arg:"" help:"The user message"`
}

func (c *RunCmd) Run(g *Globals) error {
	app, err := g.app()
	if err != nil {
		return err
	}
	ctx := app.ChatContext(g.ctx, c.ChatID)
	_, err = app.Turn(ctx, strings.Join(c.Message, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "chat: %s\n", chatmodel.GetChatID(ctx))
	return nil
}

// ChatCmd runs the interactive chat
type ChatCmd struct {
	ChatID string `name:"chat" help:"ID of the chat to continue, a new chat is started if empty"`
}

const (
	cmdExit  = "/exit"
	cmdReset = "/reset"
)

func (c *ChatCmd) Run(g *Globals) error {
	app, err := g.app()
	if err != nil {
		return err
	}
	ctx := app.ChatContext(g.ctx, c.ChatID)
	fmt.Fprintf(g.out, "chat: %s, type %s to quit or %s to start over\n", chatmodel.GetChatID(ctx), cmdExit, cmdReset)

	scanner := bufio.NewScanner(g.in)
	for {
		fmt.Fprint(g.out, "user> ")
		if !scanner.Scan() {
			fmt.Fprintln(g.out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case cmdExit:
			return nil
		case cmdReset:
			if err = app.store.Reset(ctx); err != nil {
				return err
			}
			ctx = app.ChatContext(g.ctx, "")
			fmt.Fprintf(g.out, "chat: %s\n", chatmodel.GetChatID(ctx))
			continue
		}

		if _, err = app.Turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return err
			}
			// the conversation can continue after the LLM failure
			fmt.Fprintf(g.out, "error: %s\n", err.Error())
		}
	}
}

// ToolsCmd prints the tools
type ToolsCmd struct{}

func (c *ToolsCmd) Run(g *Globals) error {
	app, err := g.app()
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out, app.registry.Describe())
	return nil
}

// ChatsCmd lists the chats
type ChatsCmd struct{}

func (c *ChatsCmd) Run(g *Globals) error {
	app, err := g.app()
	if err != nil {
		return err
	}
	ctx := app.ChatContext(g.ctx, "")
	list, err := app.store.ListChats(ctx)
	if err != nil {
		return err
	}
	for _, id := range list {
		info, err := app.store.GetChatInfo(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "%s\t%s\t%s\n", id, info.UpdatedAt.Format("2006-01-02 15:04:05"), info.Title)
	}
	return nil
}

// HistoryCmd prints the messages of the chat
type HistoryCmd struct {
	ChatID string `arg:"" help:"ID of the chat"`
	Full   bool   `name:"full" help:"Do not truncate the messages"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	app, err := g.app()
	if err != nil {
		return err
	}
	messages, err := app.store.Messages(app.ChatContext(g.ctx, c.ChatID))
	if err != nil {
		return err
	}
	for _, m := range messages {
		content := m.Content
		if !c.Full {
			content = slices.StringUpto(content, 256)
		}
		fmt.Fprintf(g.out, "[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Role, content)
	}
	return nil
}
