// Package main provides the CLI entrypoint for electmap.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/electmap/internal/config"
	"github.com/verte-zerg/electmap/internal/election"
	"github.com/verte-zerg/electmap/internal/generator"
	"github.com/verte-zerg/electmap/internal/report"
	"github.com/verte-zerg/electmap/internal/server"
	"github.com/verte-zerg/electmap/internal/store"
	"github.com/verte-zerg/electmap/internal/tally"
	"github.com/verte-zerg/electmap/internal/tui"
	"github.com/verte-zerg/electmap/internal/workspace"
)

const (
	defaultLockTotal = true
	defaultEnvFile   = ".env"
	defaultHistory   = 20
)

var (
	workspaceDir string
	journalPath  string
	envFile      string
	noJournal    bool

	resultsDistricts bool
	resultsSummary   bool

	editSeats int
	editVotes []string

	swingParty     string
	swingPercent   string
	swingDistricts []string
	swingAll       bool
	swingLockTotal bool

	historyLimit int
	historyParty string
	historyPlot  bool

	sampleSeed      int64
	sampleParties   int
	sampleProvinces int
	sampleDistricts int
	sampleMaxVotes  int
	sampleBlank     float64
	sampleOut       string
	sampleImport    bool

	serveListen string
)

// settings is the resolved configuration shared by all commands.
type settings struct {
	workspaceDir string
	journalPath  string
	title        string
	strokeWidth  float64
	lockTotal    bool
	listen       string
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "electmap",
		Short:         "Election map vote tabulation and swing simulation",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runResultsCmd,
	}

	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", config.DefaultWorkspaceDir(), "workspace directory holding the CSV tables")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", config.DefaultJournalPath(), "operation journal database")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file with ELECTMAP_* overrides")
	rootCmd.PersistentFlags().BoolVar(&noJournal, "no-journal", false, "do not record operations")

	rootCmd.Flags().BoolVar(&resultsDistricts, "districts", false, "list every district result")
	rootCmd.Flags().BoolVar(&resultsSummary, "summary", false, "show outcome counts and win ratio statistics")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newDistrictCmd())
	rootCmd.AddCommand(newEditCmd())
	rootCmd.AddCommand(newSwingCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newLegendCmd())
	rootCmd.AddCommand(newBrowseCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newSampleCmd())

	return rootCmd
}

// loadSettings resolves flag > environment > config file > default.
func loadSettings(cmd *cobra.Command) (settings, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return settings{}, err
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return settings{}, fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv(&fileCfg, nil)

	s := settings{
		workspaceDir: workspaceDir,
		journalPath:  journalPath,
		title:        server.DefaultTitle,
		strokeWidth:  server.DefaultStrokeWidth,
		lockTotal:    defaultLockTotal,
		listen:       server.DefaultListen,
	}
	applyStringConfig(cmd, "workspace", &s.workspaceDir, fileCfg.Workspace.Dir)
	applyStringConfig(cmd, "journal", &s.journalPath, fileCfg.Workspace.Journal)
	applyStringConfig(cmd, "listen", &s.listen, fileCfg.Server.Listen)
	applyBoolConfig(cmd, "lock-total", &s.lockTotal, fileCfg.Swing.LockTotal)
	if fileCfg.Render.Title != nil {
		s.title = *fileCfg.Render.Title
	}
	if fileCfg.Render.StrokeWidth != nil {
		s.strokeWidth = *fileCfg.Render.StrokeWidth
	}
	if cmd.Flags().Lookup("listen") != nil && cmd.Flags().Changed("listen") {
		s.listen = serveListen
	}
	if cmd.Flags().Lookup("lock-total") != nil && cmd.Flags().Changed("lock-total") {
		s.lockTotal = swingLockTotal
	}

	if strings.TrimSpace(s.workspaceDir) == "" {
		return settings{}, fmt.Errorf("--workspace must not be empty")
	}
	if s.strokeWidth <= 0 {
		return settings{}, fmt.Errorf("render stroke-width must be > 0")
	}
	return s, nil
}

// openService opens the workspace and, unless disabled, the journal. The
// returned close func releases the journal.
func openService(cmd *cobra.Command, opts ...election.Option) (*election.Service, settings, func(), error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, settings{}, nil, err
	}
	ws, err := workspace.Open(s.workspaceDir)
	if err != nil {
		return nil, settings{}, nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if noJournal || strings.TrimSpace(s.journalPath) == "" {
		return election.New(ws, opts...), s, func() {}, nil
	}
	st, err := store.Open(s.journalPath)
	if err != nil {
		return nil, settings{}, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	closeFn := func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close journal: %v\n", cerr)
		}
	}
	opts = append(opts, election.WithJournal(st))
	return election.New(ws, opts...), s, closeFn, nil
}

func runResultsCmd(cmd *cobra.Command, _ []string) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Results(cmd.Context())
	if err != nil {
		return err
	}
	out := report.New(cmd.OutOrStdout(), false)
	if err := out.Seats(res); err != nil {
		return err
	}
	if resultsDistricts {
		if err := writeBlank(cmd.OutOrStdout()); err != nil {
			return err
		}
		if err := out.Districts(res); err != nil {
			return err
		}
	}
	if resultsSummary {
		if err := writeBlank(cmd.OutOrStdout()); err != nil {
			return err
		}
		if err := out.Summary(tally.Summarize(res)); err != nil {
			return err
		}
	}
	return nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty workspace",
		Args:  cobra.NoArgs,
		RunE:  runInitCmd,
	}
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	ws, err := workspace.Open(s.workspaceDir)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	logErrln("Workspace ready at", ws.Dir())
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the workspace with a legacy wide export",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd,
	}
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	var src io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open export: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				_ = cerr
			}
		}()
		src = f
	}
	summary, err := svc.Import(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", args[0], err)
	}
	logErrf("Imported %d parties, %d districts, %d vote rows\n", summary.Parties, summary.Districts, summary.Rows)
	return nil
}

func newDistrictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "district <id>",
		Short: "Show one district with its votes",
		Args:  cobra.ExactArgs(1),
		RunE:  runDistrictCmd,
	}
}

func runDistrictCmd(cmd *cobra.Command, args []string) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	detail, err := svc.District(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return report.New(cmd.OutOrStdout(), false).Detail(detail)
}

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <district-id>",
		Short: "Set seats and vote counts for one district",
		Args:  cobra.ExactArgs(1),
		RunE:  runEditCmd,
	}
	cmd.Flags().IntVar(&editSeats, "seats", 0, "seats of the district (0 = no election)")
	cmd.Flags().StringArrayVar(&editVotes, "vote", nil, "vote count as PARTY_ID=N (repeatable)")
	return cmd
}

func runEditCmd(cmd *cobra.Command, args []string) error {
	votes, err := parseVotes(editVotes)
	if err != nil {
		return err
	}
	req := election.UpdateRequest{DistrictID: args[0], Votes: votes}
	if cmd.Flags().Changed("seats") {
		seats := editSeats
		req.Seats = &seats
	}
	if req.Seats == nil && len(req.Votes) == 0 {
		return fmt.Errorf("nothing to edit: pass --seats or --vote")
	}

	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.UpdateDistrict(cmd.Context(), req)
	if err != nil {
		return err
	}
	if !res.Updated {
		return fmt.Errorf("district %q is not in the district table", args[0])
	}
	detail, err := svc.District(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return report.New(cmd.OutOrStdout(), false).Detail(detail)
}

func newSwingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swing",
		Short: "Move a share of votes toward or away from a party",
		Args:  cobra.NoArgs,
		RunE:  runSwingCmd,
	}
	cmd.Flags().StringVar(&swingParty, "party", "", "target party id")
	cmd.Flags().StringVar(&swingPercent, "percent", "", "percent of each district's votes to move (negative moves away)")
	cmd.Flags().StringSliceVar(&swingDistricts, "district", nil, "district ids to swing (repeatable or comma separated)")
	cmd.Flags().BoolVar(&swingAll, "all", false, "swing every district")
	cmd.Flags().BoolVar(&swingLockTotal, "lock-total", defaultLockTotal, "keep each district's total vote count")
	return cmd
}

func runSwingCmd(cmd *cobra.Command, _ []string) error {
	if swingAll == (len(swingDistricts) > 0) {
		return fmt.Errorf("pass either --district or --all")
	}
	svc, s, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ids := swingDistricts
	if swingAll {
		res, err := svc.Results(cmd.Context())
		if err != nil {
			return err
		}
		ids = res.Order
	}
	out, err := svc.Swing(cmd.Context(), election.SwingRequest{
		DistrictIDs: ids,
		PartyID:     swingParty,
		Percent:     swingPercent,
		LockTotal:   s.lockTotal,
	})
	if err != nil {
		return err
	}
	return report.New(cmd.OutOrStdout(), false).Swing(out.Changes)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled operations or a party's seat timeline",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", defaultHistory, "number of operations to show (0 = all)")
	cmd.Flags().StringVar(&historyParty, "party", "", "show seat totals of this party after each operation")
	cmd.Flags().BoolVar(&historyPlot, "plot", false, "chart every party's seat totals across operations")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	if noJournal {
		return fmt.Errorf("history needs the journal; drop --no-journal")
	}
	if historyLimit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	out := report.New(cmd.OutOrStdout(), false)
	if historyPlot {
		series, err := seatSeries(cmd.Context(), svc)
		if err != nil {
			return err
		}
		return out.SeatPlot("Seats after each operation", series, 0, 0)
	}
	if historyParty != "" {
		points, err := svc.SeatTimeline(cmd.Context(), historyParty)
		if err != nil {
			return err
		}
		return out.Timeline(points)
	}
	ops, err := svc.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return out.History(ops)
}

// seatSeries collects the seat timeline of every current party.
func seatSeries(ctx context.Context, svc *election.Service) ([]report.SeatSeries, error) {
	res, err := svc.Results(ctx)
	if err != nil {
		return nil, err
	}
	series := make([]report.SeatSeries, 0, len(res.Parties))
	for _, p := range res.Parties {
		points, err := svc.SeatTimeline(ctx, p.PartyID)
		if err != nil {
			return nil, err
		}
		seats := make([]int, 0, len(points))
		for _, pt := range points {
			seats = append(seats, pt.Seats)
		}
		series = append(series, report.SeatSeries{Name: p.Name, Color: p.Color, Seats: seats})
	}
	return series, nil
}

func newLegendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "legend",
		Short: "Show each party's color ramp",
		Args:  cobra.NoArgs,
		RunE:  runLegendCmd,
	}
}

func runLegendCmd(cmd *cobra.Command, _ []string) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ds, err := svc.Dataset(cmd.Context())
	if err != nil {
		return err
	}
	return report.New(cmd.OutOrStdout(), false).Legend(ds.Parties)
}

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse district results and try swings interactively",
		Args:  cobra.NoArgs,
		RunE:  runBrowseCmd,
	}
	cmd.Flags().BoolVar(&swingLockTotal, "lock-total", defaultLockTotal, "keep each district's total vote count")
	return cmd
}

func runBrowseCmd(cmd *cobra.Command, _ []string) error {
	svc, s, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	model := tui.NewModel(svc, tui.Options{Title: s.title, LockTotal: s.lockTotal})
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run browser: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate a synthetic legacy wide export",
		Args:  cobra.NoArgs,
		RunE:  runSampleCmd,
	}
	cmd.Flags().Int64Var(&sampleSeed, "seed", 0, "random seed (0 = time based)")
	cmd.Flags().IntVar(&sampleParties, "parties", generator.DefaultParties, "number of parties")
	cmd.Flags().IntVar(&sampleProvinces, "provinces", generator.DefaultProvinces, "number of provinces")
	cmd.Flags().IntVar(&sampleDistricts, "districts", generator.DefaultDistricts, "number of districts")
	cmd.Flags().IntVar(&sampleMaxVotes, "max-votes", generator.DefaultMaxVotes, "largest district turnout")
	cmd.Flags().Float64Var(&sampleBlank, "blank", 0, "probability of a blank vote cell (0-1)")
	cmd.Flags().StringVar(&sampleOut, "out", "-", "output file (- for stdout)")
	cmd.Flags().BoolVar(&sampleImport, "import", false, "import the sample into the workspace instead of writing it")
	return cmd
}

func runSampleCmd(cmd *cobra.Command, _ []string) error {
	if sampleBlank < 0 || sampleBlank > 1 {
		return fmt.Errorf("--blank must be between 0 and 1")
	}
	gen := generator.NewRandom()
	if sampleSeed != 0 {
		gen = generator.New(sampleSeed)
	}
	opts := generator.Options{
		Parties:   sampleParties,
		Provinces: sampleProvinces,
		Districts: sampleDistricts,
		MaxVotes:  sampleMaxVotes,
		BlankPct:  sampleBlank,
	}

	if sampleImport {
		return importSample(cmd, gen, opts)
	}
	if sampleOut == "-" {
		return gen.Write(cmd.OutOrStdout(), opts)
	}
	f, err := os.Create(sampleOut)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", sampleOut, err)
	}
	if err := gen.Write(f, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", sampleOut, err)
	}
	logErrf("Wrote %s\n", sampleOut)
	return nil
}

func importSample(cmd *cobra.Command, gen *generator.Generator, opts generator.Options) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	pr, pw := io.Pipe()
	defer func() {
		if cerr := pr.Close(); cerr != nil {
			_ = cerr
		}
	}()
	go func() {
		pw.CloseWithError(gen.Write(pw, opts))
	}()
	summary, err := svc.Import(cmd.Context(), pr)
	if err != nil {
		return fmt.Errorf("failed to import sample: %w", err)
	}
	logErrf("Imported %d parties, %d districts, %d vote rows\n", summary.Parties, summary.Districts, summary.Rows)
	return nil
}

// parseVotes reads PARTY_ID=N pairs.
func parseVotes(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	votes := make(map[string]int, len(pairs))
	for _, pair := range pairs {
		pid, raw, ok := strings.Cut(pair, "=")
		pid = strings.TrimSpace(pid)
		if !ok || pid == "" {
			return nil, fmt.Errorf("invalid --vote %q: want PARTY_ID=N", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid --vote %q: %w", pair, err)
		}
		votes[pid] = n
	}
	return votes, nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# electmap configuration
# Uncomment a value to enable it. CLI flags and ELECTMAP_* variables override config values.

[workspace]
# dir = %q
# journal = %q

[render]
# title = %q
# stroke-width = %.1f

[swing]
# lock-total = %t          # Keep each district's total when swinging

[server]
# listen = %q
`,
		config.DefaultWorkspaceDir(),
		config.DefaultJournalPath(),
		server.DefaultTitle,
		server.DefaultStrokeWidth,
		defaultLockTotal,
		server.DefaultListen,
	)
}

func writeBlank(w io.Writer) error {
	if _, err := fmt.Fprintln(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
