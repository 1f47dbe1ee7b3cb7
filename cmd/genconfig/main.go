// Command genconfig writes config.default.toml: the encoded example config
// with every field annotated from config.ConfigDocs. Fields the encoder
// leaves out (omitempty, zero value) still appear as commented examples.
//
// go generate runs it from internal/config via the directive in config.go.
package main

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/yuncengfeihou/usage-tracker2/internal/config"
)

var cli struct {
	Out string `short:"o" default:"../../config.default.toml" help:"Output file, relative to the working directory."`
}

func main() {
	kong.Parse(&cli, kong.Description("Generate the annotated default config."))

	data, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(cli.Out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", cli.Out)
}

// render encodes cfg and interleaves the docs.
func render(cfg any, docs map[string]config.FieldDoc) ([]byte, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	g := &generator{docs: docs, seen: map[string]bool{}, headers: map[string]bool{}}
	for line := range strings.Lines(raw.String()) {
		if l := strings.TrimSpace(line); strings.HasPrefix(l, "[") {
			g.headers[strings.Trim(l, "[] ")] = true
		}
	}
	g.emit(
		"# ///////////////////////////////////////////////",
		"# usage-tracker configuration",
		"# ///////////////////////////////////////////////",
		"",
	)
	for line := range strings.Lines(raw.String()) {
		g.line(strings.TrimSpace(line))
	}
	g.flushMissing()

	text := strings.TrimRight(strings.Join(g.out, "\n"), "\n") + "\n"
	return []byte(text), nil
}

type generator struct {
	docs map[string]config.FieldDoc
	out  []string
	// table is the dotted path of the open [table] or [[array]], "" at top level.
	table string
	seen  map[string]bool
	// headers holds every [table] and [[array]] path in the encoded output.
	// Those are documented at their header, never as missing fields.
	headers map[string]bool
}

func (g *generator) emit(lines ...string) { g.out = append(g.out, lines...) }

func (g *generator) comment(text string) {
	if text == "" {
		return
	}
	for l := range strings.SplitSeq(text, "\n") {
		g.emit("# " + l)
	}
}

func (g *generator) line(l string) {
	switch {
	case l == "":
		// Spacing is ours, not the encoder's.
	case strings.HasPrefix(l, "[["):
		g.arrayHeader(l)
	case strings.HasPrefix(l, "["):
		g.tableHeader(l)
	case strings.HasPrefix(l, "#") || !strings.Contains(l, "="):
		g.emit(l)
	default:
		g.field(l)
	}
}

func (g *generator) tableHeader(l string) {
	g.flushMissing()
	g.table = strings.Trim(l, "[] ")
	g.emit("", "# ///// "+sectionTitle(g.table)+" /////", "")
	g.comment(g.docs[g.table].Comment)
	g.emit(l)
}

// arrayHeader documents an array of tables once, above its first entry.
func (g *generator) arrayHeader(l string) {
	path := strings.Trim(l, "[] ")
	if path != g.table {
		g.flushMissing()
		g.table = path
	}
	if !g.seen[path] {
		g.seen[path] = true
		g.emit("")
		g.comment(g.docs[path].Comment)
	}
	g.emit(l)
}

func (g *generator) field(l string) {
	key, _, _ := strings.Cut(l, "=")
	path := g.qualify(strings.TrimSpace(key))
	g.seen[path] = true

	doc, ok := g.docs[path]
	if !ok {
		g.emit(l)
		return
	}
	g.comment(doc.Comment)
	g.emit(l)
	for _, alt := range doc.Alternatives {
		g.emit("# " + alt)
	}
}

func (g *generator) qualify(key string) string {
	if g.table == "" {
		return key
	}
	return g.table + "." + key
}

// flushMissing writes commented entries for documented fields of the open
// table that the encoder did not produce, in key order.
func (g *generator) flushMissing() {
	if g.table == "" {
		return
	}
	prefix := g.table + "."
	var missing []string
	for path := range g.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if ok && !strings.Contains(rest, ".") && !g.seen[path] && !g.headers[path] {
			missing = append(missing, path)
		}
	}
	slices.Sort(missing)

	for _, path := range missing {
		doc := g.docs[path]
		g.emit("")
		g.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			g.emit("# " + alt)
		}
		g.seen[path] = true
	}
}

// sectionTitle capitalizes the last segment of a dotted table path.
func sectionTitle(table string) string {
	last := table[strings.LastIndex(table, ".")+1:]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
