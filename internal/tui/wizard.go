// Package tui implements the interactive wizard: form pages for the
// project fields, a permissions page, and a streamed build log.
package tui

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/Grouvya/flatpak-manifest-generator/internal/app"
	"github.com/Grouvya/flatpak-manifest-generator/internal/execstream"
	"github.com/Grouvya/flatpak-manifest-generator/internal/flatpak"
	"github.com/Grouvya/flatpak-manifest-generator/internal/generate"
	"github.com/Grouvya/flatpak-manifest-generator/internal/project"
	"github.com/Grouvya/flatpak-manifest-generator/internal/validate"
)

type page int

const (
	pageBasics page = iota
	pageOptions
	pageDeps
	pagePerms
	pageLog
)

type buildStage int

const (
	stageIdle buildStage = iota
	stageSDKCheck
	stageConfirmSDK
	stageSDKInstall
	stageBuild
	stageDone
	stageFailed
)

type field struct {
	key   string
	label string
}

var basicFields = []field{
	{project.FieldAppID, "App ID"},
	{project.FieldAppName, "App Name"},
	{project.FieldAuthor, "Author"},
	{project.FieldSummary, "Summary"},
	{project.FieldCategory, "Category"},
	{project.FieldExecutable, "Executable"},
}

// Input positions on the basics page.
const (
	inAppID = iota
	inAppName
	inAuthor
)

// chooser cycles through a fixed list of values with the arrow keys.
type chooser struct {
	label   string
	choices []string
	idx     int
}

func (c *chooser) value() string {
	if len(c.choices) == 0 {
		return ""
	}
	return c.choices[c.idx]
}

func (c *chooser) cycle(delta int) {
	if len(c.choices) == 0 {
		return
	}
	c.idx = (c.idx + delta + len(c.choices)) % len(c.choices)
}

func (c *chooser) set(v string) {
	for i, choice := range c.choices {
		if choice == v {
			c.idx = i
			return
		}
	}
}

type permToggle struct {
	key   string
	label string
	on    bool
}

// Model drives the whole wizard.
type Model struct {
	svc    *app.Service
	proj   *project.Project
	refs   *flatpak.Cache
	outDir string

	page  page
	focus int

	inputs     []textinput.Model
	sourceIn   textinput.Model
	iconIn     textinput.Model
	choosers   []chooser
	perms      []permToggle
	deps       textarea.Model
	custom     textarea.Model
	permsFocus int // index into perms, len(perms) = custom textarea

	stage   buildStage
	session *execstream.Session
	log     []logLine
	output  *generate.Output

	status string
	errs   []string
	warned bool
	Err    error
}

// Chooser positions on the options page.
const (
	optRuntime = iota
	optRuntimeVersion
	optSDK
	optSDKVersion
	optBuildSystem
	optSourceType
)

func New(svc *app.Service, proj *project.Project, outDir string) Model {
	refs, _ := svc.Refs(context.Background())
	if refs == nil {
		refs = &flatpak.Cache{}
	}

	inputs := make([]textinput.Model, len(basicFields))
	for i, f := range basicFields {
		ti := textinput.New()
		ti.Placeholder = f.label
		ti.CharLimit = 256
		ti.SetValue(proj.Field(f.key))
		inputs[i] = ti
	}
	inputs[0].Focus()

	sourceIn := textinput.New()
	sourceIn.Placeholder = "Source path"
	sourceIn.CharLimit = 1024
	sourceIn.SetValue(proj.Vars.SourcePath)

	iconIn := textinput.New()
	iconIn.Placeholder = "Icon path (optional)"
	iconIn.CharLimit = 1024
	iconIn.SetValue(proj.Vars.IconPath)

	runtime := proj.Field(project.FieldRuntime)
	choosers := []chooser{
		{label: "Runtime", choices: refs.RuntimeNames()},
		{label: "Runtime Version", choices: refs.Versions(runtime)},
		{label: "SDK", choices: refs.SDKNames()},
		{label: "SDK Version", choices: refs.Versions(flatpak.MatchingSDK(runtime))},
		{label: "Build System", choices: []string{"simple", "meson", "cmake", "cmake-ninja", "autotools", "qmake"}},
		{label: "Source Type", choices: []string{"directory", "archive"}},
	}
	choosers[optRuntime].set(runtime)
	choosers[optRuntimeVersion].set(proj.Field(project.FieldRuntimeVersion))
	choosers[optSDK].set(proj.Field(project.FieldSDK))
	choosers[optSDKVersion].set(proj.Field(project.FieldSDKVersion))
	choosers[optBuildSystem].set(proj.Field(project.FieldBuildSystem))
	choosers[optSourceType].set(string(proj.Vars.SourceType))

	perms := make([]permToggle, 0, len(project.PermKeys()))
	for _, key := range project.PermKeys() {
		perms = append(perms, permToggle{key: key, label: permLabel(key), on: proj.Perm(key)})
	}

	deps := textarea.New()
	deps.Placeholder = "Extra modules (YAML list, optional)"
	deps.SetValue(proj.Field(project.FieldDependencies))

	custom := textarea.New()
	custom.Placeholder = "Custom finish-args, one per line"
	custom.SetValue(proj.Field(project.FieldCustomPerms))

	return Model{
		svc:      svc,
		proj:     proj,
		refs:     refs,
		outDir:   outDir,
		inputs:   inputs,
		sourceIn: sourceIn,
		iconIn:   iconIn,
		choosers: choosers,
		perms:    perms,
		deps:     deps,
		custom:   custom,
		status:   "Fill in the application details.",
	}
}

func permLabel(key string) string {
	switch key {
	case project.PermHome:
		return "Home directory access"
	case project.PermHost:
		return "Full host filesystem"
	case project.PermDRI:
		return "GPU acceleration (dri)"
	case project.PermUSB:
		return "USB devices"
	case project.PermPulseAudio:
		return "PulseAudio"
	case project.PermNetwork:
		return "Network"
	case project.PermX11:
		return "X11 windowing"
	case project.PermWayland:
		return "Wayland windowing"
	}
	return key
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Messages produced by background commands.
type (
	eventMsg   struct{ ev execstream.Event }
	streamDone struct{}

	sdkCheckMsg struct {
		installed bool
		err       error
	}
	generatedMsg struct {
		out *generate.Output
		err error
	}
	sessionMsg struct {
		session *execstream.Session
		err     error
	}
)

func waitEvent(ch <-chan execstream.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamDone{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.svc.Shutdown()
			return m, tea.Quit
		}
		switch m.page {
		case pageBasics:
			return m.updateBasics(msg)
		case pageOptions:
			return m.updateOptions(msg)
		case pageDeps:
			return m.updateDeps(msg)
		case pagePerms:
			return m.updatePerms(msg)
		case pageLog:
			return m.updateLog(msg)
		}
	case generatedMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.errs = []string{msg.err.Error()}
			m.page = pagePerms
			return m, nil
		}
		m.output = msg.out
		m.page = pageLog
		m.stage = stageIdle
		m.appendLog("Files generated in "+msg.out.Dir, SevSuccess)
		m.status = "Press b to build, r to run an installed build, q to quit."
		return m, nil
	case sdkCheckMsg:
		if msg.err != nil {
			m.appendLog(msg.err.Error(), SevError)
			m.stage = stageFailed
			return m, nil
		}
		if msg.installed {
			m.appendLog("SDK already installed.", SevSuccess)
			return m.startBuild()
		}
		m.stage = stageConfirmSDK
		m.status = "SDK not installed. Install it now? (y/n)"
		return m, nil
	case sessionMsg:
		if msg.err != nil {
			m.appendLog(msg.err.Error(), SevError)
			m.stage = stageFailed
			return m, nil
		}
		m.session = msg.session
		m.appendLog("$ "+msg.session.Command, SevCmd)
		return m, waitEvent(msg.session.Events)
	case eventMsg:
		if msg.ev.Line != "" {
			m.appendLog(msg.ev.Line, classifyLine(msg.ev.Line))
		}
		if msg.ev.Final {
			return m.finishStage(msg.ev.ExitCode)
		}
		return m, waitEvent(m.session.Events)
	case streamDone:
		return m, nil
	}
	// Non-key messages (cursor blink ticks) go to the focused widget.
	var cmd tea.Cmd
	switch m.page {
	case pageBasics:
		switch {
		case m.focus < len(m.inputs):
			m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		case m.focus == len(m.inputs):
			m.sourceIn, cmd = m.sourceIn.Update(msg)
		default:
			m.iconIn, cmd = m.iconIn.Update(msg)
		}
	case pageDeps:
		m.deps, cmd = m.deps.Update(msg)
	case pagePerms:
		if m.permsFocus == len(m.perms) {
			m.custom, cmd = m.custom.Update(msg)
		}
	}
	return m, cmd
}

func (m *Model) appendLog(text string, sev Severity) {
	m.log = append(m.log, logLine{text: text, sev: sev})
	if len(m.log) > 500 {
		m.log = m.log[len(m.log)-500:]
	}
}

func (m Model) updateBasics(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	total := len(m.inputs) + 2 // plus source and icon inputs
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyCtrlG:
		author := strings.TrimSpace(m.inputs[inAuthor].Value())
		name := strings.TrimSpace(m.inputs[inAppName].Value())
		id, err := validate.GenerateAppID(author, name)
		if err != nil {
			m.status = errorStyle.Render("Fill in the Author and App Name fields first.")
			return m, nil
		}
		m.inputs[inAppID].SetValue(id)
		m.status = "App ID generated: " + id
		return m, nil
	case tea.KeyEnter, tea.KeyTab, tea.KeyDown:
		if msg.Type == tea.KeyEnter && m.focus == total-1 {
			m.syncBasics()
			m.page = pageOptions
			m.focus = 0
			m.status = "Arrow keys cycle values, enter continues."
			return m, nil
		}
		m.setBasicsFocus((m.focus + 1) % total)
		return m, textinput.Blink
	case tea.KeyShiftTab, tea.KeyUp:
		m.setBasicsFocus((m.focus - 1 + total) % total)
		return m, textinput.Blink
	}
	var cmd tea.Cmd
	switch {
	case m.focus < len(m.inputs):
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	case m.focus == len(m.inputs):
		m.sourceIn, cmd = m.sourceIn.Update(msg)
	default:
		m.iconIn, cmd = m.iconIn.Update(msg)
	}
	return m, cmd
}

func (m *Model) setBasicsFocus(idx int) {
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	m.sourceIn.Blur()
	m.iconIn.Blur()
	m.focus = idx
	switch {
	case idx < len(m.inputs):
		m.inputs[idx].Focus()
	case idx == len(m.inputs):
		m.sourceIn.Focus()
	default:
		m.iconIn.Focus()
	}
}

func (m *Model) syncBasics() {
	for i, f := range basicFields {
		m.proj.SetField(f.key, strings.TrimSpace(m.inputs[i].Value()))
	}
	m.proj.Vars.SourcePath = strings.TrimSpace(m.sourceIn.Value())
	m.proj.Vars.IconPath = strings.TrimSpace(m.iconIn.Value())
}

func (m Model) updateOptions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.page = pageBasics
		m.setBasicsFocus(0)
		return m, textinput.Blink
	case tea.KeyUp:
		m.focus = (m.focus - 1 + len(m.choosers)) % len(m.choosers)
		return m, nil
	case tea.KeyDown, tea.KeyTab:
		m.focus = (m.focus + 1) % len(m.choosers)
		return m, nil
	case tea.KeyLeft:
		m.cycleChooser(-1)
		return m, nil
	case tea.KeyRight:
		m.cycleChooser(1)
		return m, nil
	case tea.KeyEnter:
		m.syncOptions()
		m.page = pageDeps
		m.deps.Focus()
		m.status = "Paste extra modules, ctrl+s scans Python imports, enter on an empty last line continues."
		return m, nil
	}
	return m, nil
}

// cycleChooser advances the focused option; runtime changes re-derive
// the version lists and mirror the matching SDK.
func (m *Model) cycleChooser(delta int) {
	m.choosers[m.focus].cycle(delta)
	if m.focus != optRuntime {
		return
	}
	runtime := m.choosers[optRuntime].value()
	sdk := flatpak.MatchingSDK(runtime)
	m.choosers[optSDK].set(sdk)
	versions := m.refs.Versions(runtime)
	m.choosers[optRuntimeVersion] = chooser{label: "Runtime Version", choices: versions}
	m.choosers[optSDKVersion] = chooser{label: "SDK Version", choices: m.refs.Versions(sdk)}
}

func (m *Model) syncOptions() {
	m.proj.SetField(project.FieldRuntime, m.choosers[optRuntime].value())
	m.proj.SetField(project.FieldRuntimeVersion, m.choosers[optRuntimeVersion].value())
	m.proj.SetField(project.FieldSDK, m.choosers[optSDK].value())
	m.proj.SetField(project.FieldSDKVersion, m.choosers[optSDKVersion].value())
	m.proj.SetField(project.FieldBuildSystem, m.choosers[optBuildSystem].value())
	m.proj.Vars.SourceType = project.SourceType(m.choosers[optSourceType].value())
}

func (m Model) updateDeps(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.deps.Blur()
		m.page = pageOptions
		m.focus = 0
		return m, nil
	case tea.KeyCtrlS:
		res, err := m.svc.ScanDeps(m.proj)
		if err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		if len(res.Requirements) == 0 {
			m.status = "No third-party Python imports detected."
			return m, nil
		}
		if err := m.svc.ApplyDepsModule(m.proj, res.Requirements); err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		m.deps.SetValue(m.proj.Field(project.FieldDependencies))
		m.status = "Added pip module for: " + strings.Join(res.Requirements, ", ")
		return m, nil
	case tea.KeyEnter:
		val := m.deps.Value()
		if val == "" || strings.HasSuffix(val, "\n") {
			m.proj.SetField(project.FieldDependencies, strings.TrimRight(val, "\n"))
			m.deps.Blur()
			m.page = pagePerms
			m.permsFocus = 0
			m.status = "Space toggles a permission, tab reaches the custom lines, enter generates."
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.deps, cmd = m.deps.Update(msg)
	return m, cmd
}

func (m Model) updatePerms(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	customFocused := m.permsFocus == len(m.perms)
	switch msg.Type {
	case tea.KeyEsc:
		m.page = pageDeps
		m.deps.Focus()
		return m, nil
	case tea.KeyUp:
		if !customFocused {
			m.permsFocus = (m.permsFocus - 1 + len(m.perms) + 1) % (len(m.perms) + 1)
			if m.permsFocus == len(m.perms) {
				m.custom.Focus()
			}
			return m, nil
		}
	case tea.KeyDown, tea.KeyTab:
		m.custom.Blur()
		m.permsFocus = (m.permsFocus + 1) % (len(m.perms) + 1)
		if m.permsFocus == len(m.perms) {
			m.custom.Focus()
		}
		return m, nil
	case tea.KeySpace:
		if !customFocused {
			m.perms[m.permsFocus].on = !m.perms[m.permsFocus].on
			return m, nil
		}
	case tea.KeyEnter:
		if !customFocused {
			return m.generate()
		}
		val := m.custom.Value()
		if val == "" || strings.HasSuffix(val, "\n") {
			return m.generate()
		}
	}
	if customFocused {
		var cmd tea.Cmd
		m.custom, cmd = m.custom.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) generate() (tea.Model, tea.Cmd) {
	for _, t := range m.perms {
		m.proj.SetPerm(t.key, t.on)
	}
	m.proj.SetField(project.FieldCustomPerms, strings.TrimRight(m.custom.Value(), "\n"))

	res := m.svc.Validate(m.proj)
	m.errs = append(res.Errors, res.Warnings...)
	if !res.OK() {
		m.warned = false
		m.status = errorStyle.Render("Fix the errors above, then press enter again.")
		return m, nil
	}
	if len(res.Warnings) > 0 && !m.warned {
		m.warned = true
		m.status = warnStyle.Render("Warnings above. Press enter again to proceed anyway.")
		return m, nil
	}

	svc, proj, outDir := m.svc, m.proj, m.outDir
	m.status = "Generating files..."
	return m, func() tea.Msg {
		out, err := svc.Generate(proj, outDir)
		return generatedMsg{out: out, err: err}
	}
}

func (m Model) updateLog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.stage == stageConfirmSDK {
		switch msg.String() {
		case "y", "Y":
			return m.startSDKInstall()
		case "n", "N":
			m.stage = stageIdle
			m.appendLog("SDK install declined.", SevInfo)
			m.appendLog(flatpak.RemediationSDKInstall, SevInfo)
			m.status = "Press b to retry, q to quit."
			return m, nil
		}
		return m, nil
	}
	switch msg.String() {
	case "q":
		if m.stage == stageSDKInstall || m.stage == stageBuild {
			m.svc.Shutdown()
		}
		return m, tea.Quit
	case "b":
		if m.stage == stageIdle || m.stage == stageDone || m.stage == stageFailed {
			return m.startSDKCheck()
		}
	case "r":
		if m.stage == stageDone {
			appID := m.proj.Field(project.FieldAppID)
			if err := m.svc.RunApp(appID); err != nil {
				m.appendLog(err.Error(), SevError)
			} else {
				m.appendLog("Launched "+appID, SevSuccess)
			}
		}
	}
	return m, nil
}

func (m Model) startSDKCheck() (tea.Model, tea.Cmd) {
	m.stage = stageSDKCheck
	m.status = "Checking SDK..."
	svc, proj := m.svc, m.proj
	return m, func() tea.Msg {
		ok, err := svc.CheckSDK(context.Background(), proj)
		return sdkCheckMsg{installed: ok, err: err}
	}
}

func (m Model) startSDKInstall() (tea.Model, tea.Cmd) {
	m.stage = stageSDKInstall
	m.status = "Installing SDK..."
	svc, proj := m.svc, m.proj
	return m, func() tea.Msg {
		session, err := svc.InstallSDK(context.Background(), proj)
		return sessionMsg{session: session, err: err}
	}
}

func (m Model) startBuild() (tea.Model, tea.Cmd) {
	m.stage = stageBuild
	m.status = "Building..."
	svc := m.svc
	appID := m.proj.Field(project.FieldAppID)
	dir := m.outDir
	return m, func() tea.Msg {
		session, err := svc.Build(context.Background(), appID, dir)
		return sessionMsg{session: session, err: err}
	}
}

func (m Model) finishStage(exitCode int) (tea.Model, tea.Cmd) {
	switch m.stage {
	case stageSDKInstall:
		if exitCode != 0 {
			m.stage = stageFailed
			m.appendLog(flatpak.RemediationSDKInstall, SevError)
			m.status = "SDK install failed. Press b to retry, q to quit."
			return m, nil
		}
		m.appendLog("SDK installed.", SevSuccess)
		return m.startBuild()
	case stageBuild:
		if exitCode != 0 {
			m.stage = stageFailed
			m.appendLog(flatpak.RemediationBuild, SevError)
			m.status = "Build failed. Press b to retry, q to quit."
			return m, nil
		}
		m.stage = stageDone
		m.appendLog("Build and install complete.", SevSuccess)
		m.status = "Press r to run the app, q to quit."
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	switch m.page {
	case pageBasics:
		b.WriteString(titleStyle.Render("Application Details") + "\n\n")
		for i, f := range basicFields {
			b.WriteString(m.renderRow(f.label, m.inputs[i].View(), m.focus == i))
		}
		b.WriteString(m.renderRow("Source Path", m.sourceIn.View(), m.focus == len(m.inputs)))
		b.WriteString(m.renderRow("Icon Path", m.iconIn.View(), m.focus == len(m.inputs)+1))
		b.WriteString("\n" + helpStyle.Render("tab/arrows move, ctrl+g derives the App ID, enter on the last field continues, esc quits"))
	case pageOptions:
		b.WriteString(titleStyle.Render("Build Configuration") + "\n\n")
		for i, c := range m.choosers {
			b.WriteString(m.renderRow(c.label, "< "+c.value()+" >", m.focus == i))
		}
		b.WriteString("\n" + helpStyle.Render("left/right cycles, enter continues, esc goes back"))
	case pageDeps:
		b.WriteString(titleStyle.Render("Dependencies") + "\n\n")
		b.WriteString(m.deps.View() + "\n")
		b.WriteString("\n" + helpStyle.Render("ctrl+s scans Python imports, enter on an empty last line continues"))
	case pagePerms:
		b.WriteString(titleStyle.Render("Sandbox Permissions") + "\n\n")
		for i, t := range m.perms {
			mark := "[ ]"
			if t.on {
				mark = "[x]"
			}
			b.WriteString(m.renderRow(mark, t.label, m.permsFocus == i))
		}
		b.WriteString("\n" + labelStyle.Render("Custom finish-args:") + "\n")
		b.WriteString(m.custom.View() + "\n")
		for _, e := range m.errs {
			b.WriteString(errorStyle.Render("! "+e) + "\n")
		}
		b.WriteString("\n" + helpStyle.Render("space toggles, enter generates, esc goes back"))
	case pageLog:
		b.WriteString(titleStyle.Render("Build Output") + "\n")
		if m.output != nil {
			b.WriteString(labelStyle.Render("Manifest: "+m.output.ManifestPath) + "\n")
		}
		b.WriteString("\n")
		start := 0
		if len(m.log) > 30 {
			start = len(m.log) - 30
		}
		for _, l := range m.log[start:] {
			b.WriteString(l.render() + "\n")
		}
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}
	return b.String()
}

func (m Model) renderRow(label, value string, focused bool) string {
	style := labelStyle
	if focused {
		style = focusStyle
	}
	return fmt.Sprintf("%s %s\n", style.Render(fmt.Sprintf("%-16s", label)), value)
}

// Run starts the wizard and blocks until it exits. A crash anywhere in
// the event loop must not leave a build child running.
func Run(svc *app.Service, proj *project.Project, outDir string) (err error) {
	defer recoverCleanup(svc, &err)
	p := tea.NewProgram(New(svc, proj, outDir))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

func recoverCleanup(svc *app.Service, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("wizard crashed")
	svc.Shutdown()
	*err = fmt.Errorf("TUI_PANIC: %v", r)
}
