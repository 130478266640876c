package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/spf13/cobra"

	"gaiachat/internal/chatui"
	"gaiachat/internal/client"
	"gaiachat/internal/config"
	"gaiachat/internal/data/embedded"
	"gaiachat/internal/network"
	"gaiachat/internal/output"
	"gaiachat/internal/services"
	"gaiachat/internal/version"
	"gaiachat/internal/wallet"
	"gaiachat/pkg/gaiatypes"
)

type chatFlags struct {
	wallet    string
	chainID   int64
	sessionID string
	plain     bool
}

func (a *app) newChatCmd() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive terminal chat client",
		Long: `Chat with the Gaia node through a running gaiachat server.

The terminal has no browser wallet, so a local wallet holding --wallet is
simulated. It starts on --chain-id, which may differ from Autonomys EVM to
exercise the network switch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runChat(cmd.Context(), f)
		},
	}

	flags := cmd.Flags()
	flags.String("server", config.DefaultServerURL, "gaiachat server URL")
	flags.StringVar(&f.wallet, "wallet", "", "Wallet address to connect with")
	flags.Int64Var(&f.chainID, "chain-id", 0, "Chain the wallet starts on [default: the supported chain]")
	flags.StringVar(&f.sessionID, "session", "", "Session id to resume [default: random]")
	flags.BoolVar(&f.plain, "plain", false, "Disable colours")
	mustBind(a.v, config.KeyServerURL, flags.Lookup("server"))
	return cmd
}

func (a *app) runChat(ctx context.Context, f chatFlags) error {
	chain := network.MustDefault()
	if f.chainID == 0 {
		f.chainID = chain.ChainID
	}

	provider := wallet.NewLocalProvider(f.wallet, f.chainID)
	defer provider.Close()
	machine := wallet.NewMachine(provider, chain)

	api := client.New(a.cfg.ServerURL, &http.Client{Timeout: a.cfg.UpstreamTimeout})
	ctrl := chatui.NewController(api, machine, chatui.Options{
		SessionID: f.sessionID,
		Renderer:  services.NewMarkdownService(),
	})

	opts := []output.Option{output.ForTerminal(os.Stdout)}
	if f.plain {
		opts = append(opts, output.PlainText())
	}
	printer := output.NewPrinter(opts...)

	cs := newChatShell(ctrl, provider, printer)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = machine.Run(runCtx) }()

	cs.start(runCtx, api)
	return cs.run(runCtx)
}

// shellCommand is one terminal command.
type shellCommand struct {
	name string
	help string
	run  func(ctx context.Context, args []string) error
}

// chatShell maps terminal commands onto the chat controller.
type chatShell struct {
	ctrl     *chatui.Controller
	provider *wallet.LocalProvider
	printer  *output.Printer
	chain    network.Chain
	width    int
	commands []shellCommand
}

func newChatShell(ctrl *chatui.Controller, provider *wallet.LocalProvider, printer *output.Printer) *chatShell {
	s := &chatShell{
		ctrl:     ctrl,
		provider: provider,
		printer:  printer,
		chain:    ctrl.Wallet().Chain(),
		width:    terminalWidth(),
	}
	s.commands = []shellCommand{
		{"connect", "Request accounts and switch to " + s.chain.Name, s.connect},
		{"disconnect", "Forget the connected account", s.disconnect},
		{"account", "Simulate an account change (no address disconnects)", s.account},
		{"chain", "Simulate a chain change", s.switchChain},
		{"wallet", "Show wallet status", s.walletStatus},
		{"models", "List models published by the node", s.models},
		{"session", "Show the server-side session", s.session},
		{"tokens", "Show token usage", s.tokens},
		{"prompt", "Show the current system prompt", s.prompt},
		{"prompt-set", "Override the system prompt for every session", s.promptSet},
		{"prompt-reset", "Return to the node default prompt", s.promptReset},
		{"node", "Show the node's published configuration", s.node},
		{"store", "Store this conversation on AutoDrive", s.store},
		{"history", "List transcripts stored by this wallet", s.history},
		{"download", "Fetch a stored transcript: download <cid> [file]", s.download},
		{"help", "Show help", s.help},
	}

	ctrl.OnChange(s.showPending)
	ctrl.Wallet().Watch(func(prev, next wallet.State) {
		if prev.Status != next.Status || prev.Address != next.Address {
			s.printer.Muted(s.statusLine())
		}
	})
	return s
}

// start prints the banner and loads node details.
func (s *chatShell) start(ctx context.Context, api *client.Client) {
	s.printer.Println(version.GetFormattedVersion() + " terminal chat")
	s.printer.Field("Session", s.ctrl.SessionID())

	if health, err := api.Health(ctx); err != nil {
		s.printer.Error("Server unreachable at " + api.BaseURL() + ": " + err.Error())
	} else if cmp, err := version.CompareVersions(version.GetBaseVersion(), health.Version); err == nil && cmp != 0 {
		s.printer.Warning(fmt.Sprintf("Server runs gaiachat %s, this client is %s", health.Version, version.GetBaseVersion()))
	}

	info, err := s.ctrl.Load(ctx)
	if info != nil {
		s.printer.Field("Node", valueOr(info.GaiaNodeURL, "not configured"))
		if len(info.Models) > 0 {
			s.printer.Field("Models", modelNames(info.Models))
		}
	}
	if err != nil {
		s.printer.Warning(err.Error())
	}
	s.printer.Muted(s.statusLine())
	s.printer.Info("Type 'connect' to connect your wallet, 'help' for commands.")
}

func (s *chatShell) run(ctx context.Context) error {
	sh := ishell.New()
	sh.SetPrompt("> ")
	sh.DeleteCmd("help")

	for _, c := range s.commands {
		run := c.run
		sh.AddCmd(&ishell.Cmd{
			Name: c.name,
			Help: c.help,
			Func: func(ic *ishell.Context) {
				if err := run(ctx, ic.Args); err != nil {
					s.printer.Error(err.Error())
				}
			},
		})
	}
	sh.NotFound(func(ic *ishell.Context) {
		if err := s.send(ctx, strings.Join(ic.RawArgs, " ")); err != nil && !errors.Is(err, chatui.ErrEmptyMessage) {
			s.printer.Error(err.Error())
		}
	})

	sh.Run()
	return nil
}

// dispatch runs a named command, as the shell would.
func (s *chatShell) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	for _, c := range s.commands {
		if c.name == fields[0] {
			return c.run(ctx, fields[1:])
		}
	}
	return s.send(ctx, line)
}

func (s *chatShell) send(ctx context.Context, text string) error {
	reply, err := s.ctrl.Send(ctx, text)
	if err != nil {
		if reply.Content != "" {
			s.printer.Error(reply.Content)
			return nil
		}
		return err
	}
	s.printer.Assistant(reply.Content)
	s.printer.Muted(s.statusLine())
	return nil
}

// showPending prints the placeholder as soon as it is inserted.
func (s *chatShell) showPending() {
	entries := s.ctrl.Entries()
	if n := len(entries); n > 0 && entries[n-1].Pending {
		s.printer.Pending(entries[n-1].Content)
	}
}

func (s *chatShell) statusLine() string {
	state := s.ctrl.Wallet().State()
	segments := []string{state.Label(s.chain), state.ShortAddress()}
	if s.ctrl.HasConversation() {
		segments = append(segments, fmt.Sprintf("%d tokens", s.ctrl.TotalTokens()))
	}
	segments = append(segments, s.ctrl.Model(), s.ctrl.StoreButton().Label)
	return output.StatusLine(s.width, segments...)
}

func (s *chatShell) connect(ctx context.Context, _ []string) error {
	if err := s.ctrl.Wallet().Connect(ctx); err != nil {
		return err
	}
	s.printer.Success("Wallet connected: " + s.ctrl.Wallet().State().ShortAddress())
	return nil
}

func (s *chatShell) disconnect(_ context.Context, _ []string) error {
	s.ctrl.Wallet().Disconnect()
	s.printer.Info("To fully disconnect, disconnect gaiachat from your wallet.")
	return nil
}

func (s *chatShell) account(_ context.Context, args []string) error {
	s.provider.SetAccounts(args...)
	return nil
}

func (s *chatShell) switchChain(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: chain <id>")
	}
	id, err := parseChainID(args[0])
	if err != nil {
		return err
	}
	s.provider.SetChain(id)
	return nil
}

func (s *chatShell) walletStatus(_ context.Context, _ []string) error {
	state := s.ctrl.Wallet().State()
	s.printer.Field("Status", state.Label(s.chain))
	if state.IsConnected() {
		s.printer.Field("Address", state.Address)
		s.printer.Field("Chain ID", strconv.FormatInt(state.ChainID, 10))
	}
	s.printer.Field("Chat", s.ctrl.Input().Send.Label)
	s.printer.Field("Store", s.ctrl.StoreButton().Label)
	return nil
}

func (s *chatShell) models(ctx context.Context, _ []string) error {
	models, err := s.ctrl.Models(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		s.printer.Info("No models available")
		return nil
	}
	for _, m := range models {
		line := m.ID
		if m.ID == s.ctrl.Model() {
			line += " (current)"
		}
		s.printer.Println("  " + line)
	}
	return nil
}

func (s *chatShell) session(ctx context.Context, _ []string) error {
	session, err := s.ctrl.Session(ctx)
	if err != nil {
		return err
	}
	s.printer.Field("Session", s.ctrl.SessionID())
	s.printer.Field("Model", session.Model)
	s.printer.Field("Messages", strconv.Itoa(len(session.Messages)))
	s.printer.Field("Total tokens", strconv.FormatInt(session.TotalTokens, 10))
	s.printer.Field("Created", session.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func (s *chatShell) tokens(_ context.Context, _ []string) error {
	s.printer.Field("Total tokens", strconv.FormatInt(s.ctrl.TotalTokens(), 10))
	return nil
}

func (s *chatShell) prompt(ctx context.Context, _ []string) error {
	info, err := s.ctrl.Prompt(ctx)
	if err != nil {
		return err
	}
	s.showPrompt(info)
	return nil
}

func (s *chatShell) promptSet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: prompt-set <text>")
	}
	info, err := s.ctrl.SetPrompt(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.printer.Success("System prompt updated successfully!")
	s.showPrompt(info)
	return nil
}

func (s *chatShell) promptReset(ctx context.Context, _ []string) error {
	info, err := s.ctrl.ResetPrompt(ctx)
	if err != nil {
		return err
	}
	s.printer.Success("System prompt reset to node default!")
	s.showPrompt(info)
	return nil
}

func (s *chatShell) showPrompt(info *gaiatypes.SystemPromptInfo) {
	source := "node default"
	if info.CustomSystemPrompt != nil {
		source = "custom"
	}
	s.printer.Field("System prompt ("+source+")", info.CurrentSystemPrompt)
}

func (s *chatShell) node(ctx context.Context, _ []string) error {
	cfg, err := s.ctrl.NodeConfig(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	s.printer.Println(string(data))
	return nil
}

func (s *chatShell) store(ctx context.Context, _ []string) error {
	if button := s.ctrl.StoreButton(); !button.Enabled {
		return errors.New(button.Label)
	}
	s.printer.Info("Storing...")
	receipt, err := s.ctrl.Store(ctx)
	if err != nil {
		return err
	}
	s.printer.Success("Chat transcript stored successfully on AutoDrive!")
	s.printer.Field("CID", receipt.CID)
	s.printer.Field("Gateway URL", receipt.GatewayURL)
	if receipt.PublicURL != nil {
		s.printer.Field("Public URL", *receipt.PublicURL)
	}
	s.printer.Field("Storage cost", fmt.Sprintf("%s %s", strconv.FormatFloat(receipt.EstimatedCostTAI3, 'f', -1, 64), s.chain.Currency.Symbol))
	s.printer.Field("File size", strconv.FormatFloat(receipt.SizeKB, 'f', -1, 64)+" KB")
	return nil
}

func (s *chatShell) history(ctx context.Context, args []string) error {
	page := 0
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil || p < 0 {
			return errors.New("usage: history [page]")
		}
		page = p
	}
	files, err := s.ctrl.History(ctx, page, services.DefaultFilesLimit)
	if err != nil {
		return err
	}
	if len(files.Files) == 0 {
		s.printer.Info("No stored chats found.")
		return nil
	}
	for _, f := range files.Files {
		s.printer.Highlight(f.Name())
		if size, ok := f["size"]; ok {
			s.printer.Muted(fmt.Sprintf("  Size: %v bytes", size))
		}
		if created, ok := f["createdAt"].(string); ok {
			s.printer.Muted("  Created: " + created)
		}
		if url, ok := f["gatewayUrl"].(string); ok {
			s.printer.Muted("  " + url)
		}
	}
	s.printer.Muted(fmt.Sprintf("%d of %d (page %d)", len(files.Files), files.TotalCount, files.Page))
	return nil
}

func (s *chatShell) download(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: download <cid> [file]")
	}
	data, err := s.ctrl.Download(ctx, args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		s.printer.Println(string(data))
		return nil
	}
	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	s.printer.Success(fmt.Sprintf("Saved %d bytes to %s", len(data), args[1]))
	return nil
}

func (s *chatShell) help(_ context.Context, _ []string) error {
	s.printer.Print(output.RenderMarkdown(string(embedded.ChatHelpData), s.printer.ThemeType(), s.width))
	return nil
}

// parseChainID accepts decimal or 0x-prefixed hexadecimal ids.
func parseChainID(s string) (int64, error) {
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		return wallet.ParseHexChainID(s)
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

// terminalWidth reads COLUMNS, falling back to the markdown wrap width.
func terminalWidth() int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return output.DefaultWordWrap
}

func modelNames(models []gaiatypes.Model) string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.ID)
	}
	return strings.Join(names, ", ")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
