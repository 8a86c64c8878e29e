// Package generator renders a validated TableSchema into the two loader
// artifacts: a pgloader configuration and a resumable bash import script.
// Rendering is a pure function of its inputs; file writing is a separate,
// refusable step.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Error wraps a rendering or write failure with the artifact it concerns.
type Error struct {
	Artifact string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generating %s: %v", e.Artifact, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Input carries everything Generate needs. Now is injectable so rendered
// output is reproducible under test; nil means time.Now.
type Input struct {
	Schema      *schema.TableSchema
	CSVPath     string
	DatabaseURL string
	Delimiter   string
	OutputDir   string
	Profile     PerformanceProfile
	DryRun      bool
	Force       bool
	Now         func() time.Time
}

// Result reports the artifact paths and, for preview use, their contents.
type Result struct {
	ConfigPath    string
	ScriptPath    string
	StatePath     string
	LogPath       string
	ConfigContent string
	ScriptContent string
}

var (
	configTmpl = template.Must(template.New("load").Parse(loadConfigTemplate))
	scriptTmpl = template.Must(template.New("script").Parse(importScriptTemplate))
)

// Generate renders both artifacts and, unless DryRun is set, writes them
// under OutputDir. Existing artifacts are never overwritten without Force.
func Generate(in Input) (*Result, error) {
	if in.Schema == nil || len(in.Schema.Columns) == 0 {
		return nil, &Error{Artifact: "loader config", Err: fmt.Errorf("schema has no columns")}
	}
	if err := in.Schema.Validate(); err != nil {
		return nil, &Error{Artifact: "loader config", Err: err}
	}
	if in.Delimiter == "" {
		in.Delimiter = ","
	}
	now := in.Now
	if now == nil {
		now = time.Now
	}

	table := in.Schema.TableName
	res := &Result{
		ConfigPath: filepath.Join(in.OutputDir, table+".load"),
		ScriptPath: filepath.Join(in.OutputDir, table+"_import.sh"),
		StatePath:  filepath.Join(in.OutputDir, table+"_state.json"),
		LogPath:    filepath.Join(in.OutputDir, table+"_import.log"),
	}

	config, err := renderConfig(in)
	if err != nil {
		return nil, &Error{Artifact: "loader config", Err: err}
	}
	res.ConfigContent = config

	script, err := renderScript(in, res, now())
	if err != nil {
		return nil, &Error{Artifact: "import script", Err: err}
	}
	res.ScriptContent = script

	if in.DryRun {
		logging.Info("dry run: skipping writes for %s and %s", res.ConfigPath, res.ScriptPath)
		return res, nil
	}

	if !in.Force {
		for _, p := range []string{res.ConfigPath, res.ScriptPath} {
			if _, err := os.Stat(p); err == nil {
				return nil, &Error{Artifact: p,
					Err: fmt.Errorf("artifact already exists; use --force to overwrite")}
			}
		}
	}

	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, &Error{Artifact: in.OutputDir, Err: err}
	}
	if err := os.WriteFile(res.ConfigPath, []byte(config), 0o644); err != nil {
		return nil, &Error{Artifact: res.ConfigPath, Err: err}
	}
	if err := os.WriteFile(res.ScriptPath, []byte(script), 0o755); err != nil {
		return nil, &Error{Artifact: res.ScriptPath, Err: err}
	}

	logging.Info("generated %s and %s", res.ConfigPath, res.ScriptPath)
	return res, nil
}

type configContext struct {
	TableName          string
	CSVPath            string
	DatabaseURL        string
	Delimiter          string
	Profile            PerformanceProfile
	WorkMem            string
	MaintenanceWorkMem string
	ColumnDDL          []string
	CastRules          []string
	AfterLoad          []string
}

func renderConfig(in Input) (string, error) {
	s := in.Schema
	ctx := configContext{
		TableName:          s.TableName,
		CSVPath:            in.CSVPath,
		DatabaseURL:        in.DatabaseURL,
		Delimiter:          in.Delimiter,
		Profile:            in.Profile,
		WorkMem:            formatMem(in.Profile.WorkMemMB),
		MaintenanceWorkMem: formatMem(in.Profile.MaintenanceWorkMB),
	}

	for _, c := range s.Columns {
		ctx.ColumnDDL = append(ctx.ColumnDDL, columnDDL(c))
		if c.NeedsCast() {
			ctx.CastRules = append(ctx.CastRules,
				fmt.Sprintf("column %s to %s using %s", c.Name, c.PGType, c.CastRule))
		}
	}

	if s.PrimaryKey != "" {
		ctx.AfterLoad = append(ctx.AfterLoad,
			fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);", s.TableName, s.PrimaryKey))
	}
	for _, c := range s.Columns {
		if c.UniqueIndex {
			ctx.AfterLoad = append(ctx.AfterLoad,
				fmt.Sprintf("CREATE UNIQUE INDEX %s_%s_key ON %s (%s);",
					s.TableName, c.Name, s.TableName, c.Name))
		}
	}
	ctx.AfterLoad = append(ctx.AfterLoad, fmt.Sprintf("ANALYZE %s;", s.TableName))

	var sb strings.Builder
	if err := configTmpl.Execute(&sb, ctx); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// columnDDL renders one creation-block entry. The primary key is added post
// load, so no inline PRIMARY KEY ever appears here.
func columnDDL(c schema.ColumnSchema) string {
	parts := []string{c.Name, c.PGType}
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	for _, con := range c.Constraints {
		if strings.EqualFold(strings.TrimSpace(con), "PRIMARY KEY") {
			continue
		}
		parts = append(parts, con)
	}
	return strings.Join(parts, " ")
}

type scriptContext struct {
	TableName   string
	GeneratedAt string
	CSVPath     string
	ConfigPath  string
	StatePath   string
	LogPath     string
}

func renderScript(in Input, res *Result, now time.Time) (string, error) {
	ctx := scriptContext{
		TableName:   in.Schema.TableName,
		GeneratedAt: now.Format("2006-01-02 15:04:05"),
		CSVPath:     in.CSVPath,
		ConfigPath:  absOrSelf(res.ConfigPath),
		StatePath:   absOrSelf(res.StatePath),
		LogPath:     absOrSelf(res.LogPath),
	}
	var sb strings.Builder
	if err := scriptTmpl.Execute(&sb, ctx); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
