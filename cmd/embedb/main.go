// Command embedb is a CLI front end over the embedb storage engine: an
// interactive REPL and a batch script runner, both driving the same
// Conn.Query surface a host program would use.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/embedb/embedb"
	"github.com/embedb/embedb/internal/storage"
)

const version = "0.1.0"

var CLI struct {
	DB string `help:"Database file path, or ':memory:' for an in-memory database." default:":memory:"`

	Exec    ExecCmd    `cmd:"" help:"Run SQL statements from a file or stdin and print results."`
	Repl    ReplCmd    `cmd:"" help:"Start an interactive SQL session."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

// ExecCmd runs every statement in a script, one per line, printing each
// statement's result before moving to the next.
type ExecCmd struct {
	Path string `arg:"" optional:"" help:"Script path; reads stdin if omitted." type:"existingfile"`
}

func (c *ExecCmd) Run() error {
	conn, err := embedb.Open(CLI.DB, embedb.Options{})
	if err != nil {
		return fmt.Errorf("open %s: %w", CLI.DB, err)
	}
	defer conn.Close()

	var r io.Reader = os.Stdin
	if c.Path != "" {
		f, err := os.Open(c.Path)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		stmt := strings.TrimSpace(scanner.Text())
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if err := runAndPrint(conn, stmt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReplCmd starts an interactive loop reading statements from stdin.
type ReplCmd struct{}

func (c *ReplCmd) Run() error {
	conn, err := embedb.Open(CLI.DB, embedb.Options{})
	if err != nil {
		return fmt.Errorf("open %s: %w", CLI.DB, err)
	}
	defer conn.Close()

	fmt.Printf("embedb %s connected to %s\n", version, CLI.DB)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt(conn))
		if !scanner.Scan() {
			break
		}
		stmt := strings.TrimSpace(scanner.Text())
		if stmt == "" {
			continue
		}
		if stmt == "quit" || stmt == "exit" {
			break
		}
		if err := runAndPrint(conn, stmt); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return scanner.Err()
}

func prompt(conn *embedb.Conn) string {
	if conn.State() == storage.Active {
		return "embedb*> "
	}
	return "embedb> "
}

// VersionCmd prints the CLI version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("embedb version %s\n", version)
	return nil
}

func runAndPrint(conn *embedb.Conn, stmt string) error {
	res, err := conn.Query(stmt)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *embedb.Result) {
	if res == nil {
		return
	}
	if len(res.Columns) > 0 {
		fmt.Println(strings.Join(res.Columns, " | "))
		for _, row := range res.Rows {
			parts := make([]string, len(row))
			for i, v := range row {
				parts[i] = formatValue(v)
			}
			fmt.Println(strings.Join(parts, " | "))
		}
		return
	}
	if res.Affected > 0 {
		fmt.Printf("(%d row(s) affected)\n", res.Affected)
	}
}

func formatValue(v storage.Value) string {
	if v.IsNull {
		return "NULL"
	}
	if v.Type == storage.TypeVarchar || v.Type == storage.TypeCharacter {
		return string(v.Str)
	}
	return fmt.Sprintf("%v", v.Num)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("embedb"),
		kong.Description("Embeddable SQL database engine CLI."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
