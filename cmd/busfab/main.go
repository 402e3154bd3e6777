package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"busfab/internal/busconfig"
	"busfab/internal/caravel"
	"busfab/internal/catalog"
	"busfab/internal/fabric"
	"busfab/internal/patch"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "generate",
		short: "Generate the bus interconnect and address-map header",
		usage: "busfab generate <bus.yaml> <ip-lib>... [-o <dir>]",
		long: `Parse the bus configuration and IP catalog files, validate the address
map and pin/IRQ bindings, and write wb_bus.v and bus_addr_map.h to the
output directory (default: current directory).

All validation problems found in one run are reported together.
`,
		run: runGenerate,
	},
	{
		name:  "add",
		short: "Interactively append a slave to a bus configuration",
		usage: "busfab add <bus.yaml> <ip-lib>...",
		long: `Prompt for a new slave (name, IP type, base address, IRQ, pin bindings)
and append it to the configuration file. The file is created if it does
not exist yet.
`,
		run: runAdd,
	},
	{
		name:  "integrate",
		short: "Generate and patch a Caravel user project in place",
		usage: "busfab integrate <project-root> <bus.yaml> <ip-lib>...",
		long: `Run generation, then write verilog/rtl/wb_bus.v, patch the managed
region of verilog/rtl/user_project_wrapper.v, and add the slave modules
to the OpenLane blackbox list.
`,
		run: runIntegrate,
	},
	{
		name:  "patch",
		short: "Replace a marker-delimited region of a file",
		usage: "busfab patch <target> <fragment-file> <begin-marker> <end-marker>",
		long: `Replace the text between the begin and end markers in the target file
with the fragment file's contents. Everything outside the markers is
left untouched; re-running with the same fragment is a no-op.
`,
		run: runPatch,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "busfab — bus fabric generation for IP integration\n\n")
	fmt.Fprintf(w, "Usage:\n  busfab <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'busfab help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "busfab: unknown command %q\n\nRun 'busfab help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'busfab help' for usage.", args[0])
}

// loadCatalog reads the given descriptor files and merges them in argument
// order. Descriptor fetching over the network is deliberately not handled
// here: sources must already be local files.
func loadCatalog(paths []string) (*catalog.Catalog, error) {
	sources := make([]catalog.Source, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		sources = append(sources, catalog.Source{Name: p, Data: data})
	}
	return catalog.Load(sources...)
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func runGenerate(args []string) error {
	outDir := "."
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			outDir = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: busfab generate <bus.yaml> <ip-lib>... [-o <dir>]")
	}

	cfg, err := busconfig.LoadFile(rest[0])
	if err != nil {
		return err
	}
	cat, err := loadCatalog(rest[1:])
	if err != nil {
		return err
	}
	artifacts, err := fabric.Generate(cfg, cat)
	if err != nil {
		return err
	}

	busPath := filepath.Join(outDir, "wb_bus.v")
	headerPath := filepath.Join(outDir, "bus_addr_map.h")
	if err := os.WriteFile(busPath, []byte(artifacts.Interconnect), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", busPath, err)
	}
	if err := os.WriteFile(headerPath, []byte(artifacts.Header), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", headerPath, err)
	}
	fmt.Printf("wrote %s\nwrote %s\n", busPath, headerPath)
	return nil
}

// ---------------------------------------------------------------------------
// add
// ---------------------------------------------------------------------------

func runAdd(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: busfab add <bus.yaml> <ip-lib>...")
	}
	configPath := args[0]

	cat, err := loadCatalog(args[1:])
	if err != nil {
		return err
	}

	cfg := &busconfig.Config{}
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = busconfig.LoadFile(configPath)
		if err != nil {
			return err
		}
	}

	// First round: identity of the new slave. Answers are vetted at the
	// prompt so a typo is fixed in place instead of aborting the round.
	answers, err := promptQuestions([]question{
		{key: "name", prompt: "Slave name", check: func(v string) error {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("name must not be empty")
			}
			return nil
		}},
		{key: "type", prompt: fmt.Sprintf("IP type (%s)", strings.Join(cat.TypeIDs(), ", ")), check: func(v string) error {
			_, err := cat.Lookup(v)
			return err
		}},
		{key: "base", prompt: "Base address (e.g. 0x30000000)", check: func(v string) error {
			_, err := busconfig.ParseBaseAddress(v)
			return err
		}},
		{key: "irq", prompt: "IRQ index (blank for none)", check: func(v string) error {
			if v == "" {
				return nil
			}
			_, err := strconv.Atoi(v)
			return err
		}},
	})
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}

	desc, err := cat.Lookup(answers["type"])
	if err != nil {
		return err
	}
	base, err := busconfig.ParseBaseAddress(answers["base"])
	if err != nil {
		return err
	}

	slave := busconfig.Slave{
		Name:        answers["name"],
		TypeID:      desc.TypeID,
		BaseAddress: base,
		IOPins:      make(map[string]busconfig.PinBinding, len(desc.Pins)),
	}
	if answers["irq"] != "" {
		idx, err := strconv.Atoi(answers["irq"])
		if err != nil {
			return fmt.Errorf("IRQ index must be an integer: %q", answers["irq"])
		}
		slave.IRQ = &idx
	}

	// Second round: one start bit per descriptor pin.
	var pinQuestions []question
	for _, pin := range desc.Pins {
		pinQuestions = append(pinQuestions, question{
			key:    pin.Name,
			prompt: fmt.Sprintf("Start bit for pin %q (%s, width %d)", pin.Name, pin.Direction, pin.Width),
			check: func(v string) error {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					return fmt.Errorf("start bit must be a non-negative integer")
				}
				return nil
			},
		})
	}
	pinAnswers, err := promptQuestions(pinQuestions)
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	for _, pin := range desc.Pins {
		start, err := strconv.Atoi(pinAnswers[pin.Name])
		if err != nil {
			return fmt.Errorf("pin %q: start bit must be an integer: %q", pin.Name, pinAnswers[pin.Name])
		}
		slave.IOPins[pin.Name] = busconfig.PinBinding{Start: start}
	}

	cfg.Slaves = append(cfg.Slaves, slave)
	if err := busconfig.SaveFile(cfg, configPath); err != nil {
		return err
	}
	fmt.Printf("added slave %q to %s\n", slave.Name, configPath)

	// Validate the grown configuration so conflicts show up now, not at
	// generation time. The slave stays in the file either way.
	if _, err := fabric.Generate(cfg, cat); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// integrate
// ---------------------------------------------------------------------------

func runIntegrate(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: busfab integrate <project-root> <bus.yaml> <ip-lib>...")
	}
	root := args[0]

	cfg, err := busconfig.LoadFile(args[1])
	if err != nil {
		return err
	}
	cat, err := loadCatalog(args[2:])
	if err != nil {
		return err
	}
	artifacts, err := fabric.Generate(cfg, cat)
	if err != nil {
		return err
	}

	project, err := caravel.Open(root)
	if err != nil {
		return err
	}
	if err := project.PatchWrapper(artifacts); err != nil {
		return err
	}

	// One blackbox entry per distinct IP type in use.
	seen := make(map[string]bool)
	var types []string
	for _, s := range cfg.Slaves {
		if !seen[s.TypeID] {
			seen[s.TypeID] = true
			types = append(types, s.TypeID)
		}
	}
	if err := project.UpdateOpenLaneConfig(types); err != nil {
		return err
	}

	headerPath := filepath.Join(root, "bus_addr_map.h")
	if err := os.WriteFile(headerPath, []byte(artifacts.Header), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", headerPath, err)
	}
	fmt.Printf("integrated %d slaves into %s\n", len(cfg.Slaves), root)
	return nil
}

// ---------------------------------------------------------------------------
// patch
// ---------------------------------------------------------------------------

func runPatch(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: busfab patch <target> <fragment-file> <begin-marker> <end-marker>")
	}
	target, fragmentPath := args[0], args[1]
	marker := patch.Marker{Begin: args[2], End: args[3]}

	existing, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}
	fragment, err := os.ReadFile(fragmentPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", fragmentPath, err)
	}
	patched, err := patch.Apply(string(existing), string(fragment), marker)
	if err != nil {
		return fmt.Errorf("patch %s: %w", target, err)
	}
	if err := os.WriteFile(target, []byte(patched), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	fmt.Printf("patched %s\n", target)
	return nil
}

// ---------------------------------------------------------------------------
// TUI prompt helpers
// ---------------------------------------------------------------------------

// question is a single interactive prompt. check, when set, vets the answer
// on enter; the prompt does not advance until it returns nil.
type question struct {
	key    string
	prompt string
	check  func(value string) error
}

// promptModel is a bubbletea model that asks one question at a time, showing
// progress through the round and holding on a rejected answer.
type promptModel struct {
	questions []question
	idx       int
	inputs    []textinput.Model
	problem   string
	done      bool
}

func newPromptModel(questions []question) promptModel {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.prompt
		ti.CharLimit = 256
		inputs[i] = ti
	}
	m := promptModel{
		questions: questions,
		inputs:    inputs,
	}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if check := m.questions[m.idx].check; check != nil {
				if err := check(m.inputs[m.idx].Value()); err != nil {
					m.problem = err.Error()
					return m, nil
				}
			}
			m.problem = ""
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	q := m.questions[m.idx]
	s := fmt.Sprintf("[%d/%d] %s: %s\n", m.idx+1, len(m.questions), q.prompt, m.inputs[m.idx].View())
	if m.problem != "" {
		s += "  " + m.problem + "\n"
	}
	return s
}

// promptQuestions runs the TUI and returns answers keyed by question.key.
func promptQuestions(questions []question) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	m := newPromptModel(questions)
	p := tea.NewProgram(m)
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return nil, fmt.Errorf("prompt cancelled")
	}
	answers := make(map[string]string, len(questions))
	for i, q := range questions {
		answers[q.key] = final.inputs[i].Value()
	}
	return answers, nil
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
