package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/lychee-technology/weave"
	"github.com/lychee-technology/weave/factory"
)

// catalogFile is the on-disk shape of a column catalog: schema name to
// table name to column metadata.
type catalogFile map[string]map[string]catalogTable

type catalogTable struct {
	Columns      []string `json:"columns"`
	KeyColumns   []string `json:"keyColumns"`
	StatusColumn string   `json:"statusColumn"`
}

type fileCatalog struct {
	schemas catalogFile
}

func (c *fileCatalog) ColumnSet(schema, table string) (weave.ColumnSet, bool) {
	tables, ok := c.schemas[schema]
	if !ok {
		return weave.ColumnSet{}, false
	}
	t, ok := tables[table]
	if !ok {
		return weave.ColumnSet{}, false
	}
	return weave.ColumnSet{Columns: t.Columns, KeyColumns: t.KeyColumns, StatusColumn: t.StatusColumn}, true
}

func runCompile(args []string) error {
	flags := flag.NewFlagSet("compile", flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		zap.S().Info("Usage: weave-tools compile [options] <file-or-dir>...")
		zap.S().Info("")
		zap.S().Info("Options:")
		flags.PrintDefaults()
	}

	templateName := flags.String("template", "", "Template name to compile")
	catalogPath := flags.String("catalog", "", "Path to the column catalog JSON file")
	execCtx := flags.String("context", "RUNTIME", "Execution context: RUNTIME or WORKSPACE")
	dialectName := flags.String("dialect", "db2", "SQL dialect: db2, postgres or generic")
	runtimeSchema := flags.String("runtime-schema", "", "Schema bound to all roles at runtime")
	baseSchema := flags.String("base-schema", "", "Workspace BASE schema")
	writeSchema := flags.String("write-schema", "", "Workspace WRITE schema")
	readSchema := flags.String("read-schema", "", "Workspace READ schema (defaults to the BASE schema)")
	paramFlags := flags.String("params", "", "Comma-separated NAME=VALUE parameter bindings")
	controlFlags := flags.String("controls", "", "Comma-separated NAME=V1;V2 control bindings")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *templateName == "" {
		return fmt.Errorf("-template is required")
	}
	if *catalogPath == "" {
		return fmt.Errorf("-catalog is required")
	}
	if flags.NArg() == 0 {
		return fmt.Errorf("at least one template file or directory is required")
	}

	catalog, err := loadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	documents, err := readTemplateDocuments(flags.Args())
	if err != nil {
		return err
	}

	config := weave.DefaultConfig()
	config.Bindings = weave.SchemaBindings{
		Runtime: *runtimeSchema,
		Base:    *baseSchema,
		Write:   *writeSchema,
		Read:    *readSchema,
	}

	compiler, report, err := factory.NewCompilerWithConfig(config, documents, catalog)
	if err != nil {
		return err
	}
	if !report.Ok() {
		for source, loadErr := range report.Failed {
			zap.S().Warnf("skipped %s: %v", source, loadErr)
		}
	}

	var dialect weave.Dialect
	switch strings.ToLower(*dialectName) {
	case "db2":
		dialect = weave.DialectDB2()
	case "postgres":
		dialect = weave.DialectPostgres()
	case "generic":
		dialect = weave.DialectGeneric()
	default:
		return fmt.Errorf("unknown dialect %q", *dialectName)
	}

	req := weave.CompileRequest{
		TemplateName: *templateName,
		Context:      weave.ExecutionContext(strings.ToUpper(*execCtx)),
		Dialect:      dialect,
		Binding: weave.BindingContext{
			Parameters: parseBindings(*paramFlags),
			Controls:   parseBindings(*controlFlags),
		},
	}

	stmt, err := compiler.Compile(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Println(stmt.SQL)
	for i, p := range stmt.Parameters {
		fmt.Printf("-- bind %d: %s = %s\n", i+1, p.Name, p.Value.String())
	}
	return nil
}

func loadCatalog(path string) (*fileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var schemas catalogFile
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
	}
	return &fileCatalog{schemas: schemas}, nil
}

// parseBindings turns "NAME=V1;V2,OTHER=V" into inline string bindings.
func parseBindings(s string) map[string]weave.Binding {
	out := make(map[string]weave.Binding)
	if s == "" {
		return out
	}
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		var values []weave.Value
		for _, v := range strings.Split(raw, ";") {
			values = append(values, weave.StringValue(v))
		}
		out[name] = weave.BindValues(values...)
	}
	return out
}
