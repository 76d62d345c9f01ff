package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
	"github.com/Aman-CERP/amanmcp/internal/ui"
)

// newReplCmd creates the interactive query shell, modeled on the original
// laurus-cli REPL's command set (search/doc/commit/stats/help/quit) but
// rendered with bubbletea+lipgloss the way the teacher renders its own
// interactive views in internal/ui.
func newReplCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive query shell over the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				return fmt.Errorf("--schema is required: a YAML file declaring the engine's field layout")
			}
			return runRepl(cmd, schemaPath)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a schema YAML file (see internal/config.SchemaFile)")
	return cmd
}

func runRepl(cmd *cobra.Command, schemaPath string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if storageRoot != "" {
		cfg.Storage.RootPath = storageRoot
	}

	sf, err := config.LoadSchemaFile(schemaPath)
	if err != nil {
		return err
	}
	schema, err := sf.ToEngineSchema()
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	store, err := storage.NewLocalStorage(cfg.Storage.RootPath)
	if err != nil {
		return fmt.Errorf("opening storage root %s: %w", cfg.Storage.RootPath, err)
	}

	var embedder engine.Embedder
	if cfg.Embedding.Provider != "" {
		embedder, err = openConfiguredEmbedder(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing embedder: %w", err)
		}
	}

	eng, err := engine.Open(ctx, store, schema, embedder, nil)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	model := newReplModel(ctx, eng, cfg.Storage.RootPath)
	p := tea.NewProgram(model)
	_, err = p.Run()
	return err
}

// walChangedMsg fires on every write to the storage root's write-ahead log
// (including this shell's own commits); the shell answers it by appending a
// notice line to its history and does not refresh stats itself. Grounded on the teacher's internal/watcher
// use of fsnotify for filesystem change notification.
type walChangedMsg struct{}

type replLine struct {
	style lipgloss.Style
	text  string
}

type replModel struct {
	ctx        context.Context
	eng        *engine.Engine
	storageDir string

	input   textinput.Model
	history []replLine
	styles  ui.Styles
	watcher *fsnotify.Watcher
	width   int
	quit    bool
}

func newReplModel(ctx context.Context, eng *engine.Engine, storageDir string) *replModel {
	ti := textinput.New()
	ti.Placeholder = "search <query> | doc add|get|delete ... | commit | stats | help | quit"
	ti.Prompt = "irisd> "
	ti.Focus()

	m := &replModel{
		ctx:        ctx,
		eng:        eng,
		storageDir: storageDir,
		input:      ti,
		styles:     ui.DefaultStyles(),
	}
	m.history = append(m.history, replLine{m.styles.Header, "irisd REPL (type 'help' for commands, 'quit' to exit)"})

	if w, err := fsnotify.NewWatcher(); err == nil {
		_ = w.Add(storageDir)
		m.watcher = w
	}
	return m
}

func (m *replModel) Init() tea.Cmd {
	if m.watcher == nil {
		return textinput.Blink
	}
	return tea.Batch(textinput.Blink, m.watchWAL())
}

// watchWAL blocks on the fsnotify event channel until a write to the WAL
// file is observed, then returns a single walChangedMsg; Update re-arms it.
func (m *replModel) watchWAL() tea.Cmd {
	return func() tea.Msg {
		for ev := range m.watcher.Events {
			if filepath.Base(ev.Name) == "engine.wal" && (ev.Op&fsnotify.Write == fsnotify.Write) {
				return walChangedMsg{}
			}
		}
		return nil
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case walChangedMsg:
		m.history = append(m.history, replLine{m.styles.Dim, "(another process committed changes)"})
		return m, m.watchWAL()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quit = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			m.history = append(m.history, replLine{m.styles.Active, "irisd> " + line})
			if m.runCommand(line) {
				m.quit = true
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// runCommand executes one REPL line and appends its output to history.
// Returns true if the shell should exit.
func (m *replModel) runCommand(line string) bool {
	parts := strings.SplitN(line, " ", 3)
	switch parts[0] {
	case "help":
		m.printHelp()
	case "quit", "exit":
		return true
	case "search":
		if len(parts) < 2 {
			m.printErr("usage: search <query> [limit]")
			return false
		}
		m.handleSearch(strings.Join(parts[1:], " "))
	case "doc":
		if len(parts) < 2 {
			m.printErr("usage: doc <add|get|delete> ...")
			return false
		}
		var rest string
		if len(parts) == 3 {
			rest = parts[2]
		}
		m.handleDoc(parts[1], rest)
	case "commit":
		if err := m.eng.Commit(m.ctx); err != nil {
			m.printErr(err.Error())
			return false
		}
		m.printOK("changes committed")
	case "stats":
		stats := m.eng.Stats(m.ctx)
		m.printOK(fmt.Sprintf("lexical documents: %d, vector fields: %v", stats.Lexical.DocumentCount, stats.Vector.FieldCounts))
	default:
		m.printErr(fmt.Sprintf("unknown command %q; type 'help' for available commands", parts[0]))
	}
	return false
}

func (m *replModel) handleSearch(rest string) {
	query, limit := rest, 10
	if i := strings.LastIndex(rest, " "); i >= 0 {
		if n, err := strconv.Atoi(rest[i+1:]); err == nil {
			query = rest[:i]
			limit = n
		}
	}
	results, err := m.eng.Search(m.ctx, engine.SearchRequest{QueryString: query, Limit: limit})
	if err != nil {
		m.printErr(err.Error())
		return
	}
	if len(results) == 0 {
		m.printOK("no results")
		return
	}
	for _, r := range results {
		m.history = append(m.history, replLine{m.styles.Label,
			fmt.Sprintf("  %.4f  %s  (doc_id=%d)", r.Score, r.ExternalID, r.DocID)})
	}
}

func (m *replModel) handleDoc(sub, rest string) {
	switch sub {
	case "add":
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			m.printErr("usage: doc add <id> <json>")
			return
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(parts[1]), &fields); err != nil {
			m.printErr("invalid json: " + err.Error())
			return
		}
		doc := engine.NewDocument()
		for name, raw := range fields {
			v, err := dataValueFromAny(raw)
			if err != nil {
				m.printErr(fmt.Sprintf("field %q: %s", name, err))
				return
			}
			doc.Set(name, v)
		}
		docID, err := m.eng.PutDocument(m.ctx, parts[0], doc)
		if err != nil {
			m.printErr(err.Error())
			return
		}
		m.printOK(fmt.Sprintf("stored as doc_id=%d", docID))
	case "get":
		if rest == "" {
			m.printErr("usage: doc get <id>")
			return
		}
		docs, err := m.eng.GetDocuments(m.ctx, rest)
		if err != nil {
			m.printErr(err.Error())
			return
		}
		if len(docs) == 0 {
			m.printOK("not found")
			return
		}
		for _, d := range docs {
			b, _ := json.Marshal(d.Fields)
			m.history = append(m.history, replLine{m.styles.Label, "  " + string(b)})
		}
	case "delete":
		if rest == "" {
			m.printErr("usage: doc delete <id>")
			return
		}
		if err := m.eng.DeleteDocuments(m.ctx, rest); err != nil {
			m.printErr(err.Error())
			return
		}
		m.printOK("deleted")
	default:
		m.printErr("usage: doc <add|get|delete> ...")
	}
}

// dataValueFromAny mirrors internal/mcpserver's JSON-to-DataValue mapping,
// kept separate since the REPL has no MCP schema dependency.
func dataValueFromAny(raw any) (engine.DataValue, error) {
	switch x := raw.(type) {
	case string:
		return engine.TextValue(x), nil
	case bool:
		return engine.BoolValue(x), nil
	case float64:
		if x == float64(int64(x)) {
			return engine.Int64Value(int64(x)), nil
		}
		return engine.Float64Value(x), nil
	case []any:
		vec := make([]float32, len(x))
		for i, elem := range x {
			f, ok := elem.(float64)
			if !ok {
				return engine.DataValue{}, fmt.Errorf("vector element %d is not numeric", i)
			}
			vec[i] = float32(f)
		}
		return engine.VectorValue(vec), nil
	default:
		return engine.DataValue{}, fmt.Errorf("unsupported field value type %T", raw)
	}
}

func (m *replModel) printOK(msg string) {
	m.history = append(m.history, replLine{m.styles.Success, msg})
}

func (m *replModel) printErr(msg string) {
	m.history = append(m.history, replLine{m.styles.Error, "error: " + msg})
}

func (m *replModel) printHelp() {
	for _, line := range []string{
		"Available commands:",
		"  search <query> [limit]       Search the index",
		"  doc add <id> <json>          Add a document",
		"  doc get <id>                 Get a document by id",
		"  doc delete <id>              Delete a document by id",
		"  commit                       Commit pending changes",
		"  stats                        Show index statistics",
		"  help                         Show this help",
		"  quit                         Exit the REPL",
	} {
		m.history = append(m.history, replLine{m.styles.Dim, line})
	}
}

func (m *replModel) View() string {
	if m.quit {
		return "Goodbye.\n"
	}
	var b strings.Builder
	// Keep the scrollback bounded so a long-running session doesn't grow
	// the rendered view without limit.
	start := 0
	if len(m.history) > 200 {
		start = len(m.history) - 200
	}
	for _, line := range m.history[start:] {
		b.WriteString(line.style.Render(line.text))
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	return b.String()
}
