// Package cli provides a direct command-line interface to the model metadata
// tools, bypassing the MCP server entirely. Tools are invoked in-process via
// the registry, so no server or network round-trip is needed.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sammcj/mcp-modelmeta/internal/modelmeta"
	"github.com/sammcj/mcp-modelmeta/internal/registry"
	"github.com/sammcj/mcp-modelmeta/internal/tools"
	"github.com/sirupsen/logrus"
)

// OutputFormat controls how results are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates an --output value
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("invalid output format %q (expected text or json)", s)
}

// Runner executes CLI commands against the tool registry.
type Runner struct {
	logger *logrus.Logger
	output OutputFormat
	out    io.Writer
}

// NewRunner creates a Runner that writes to stdout.
func NewRunner(logger *logrus.Logger, output OutputFormat) *Runner {
	return &Runner{logger: logger, output: output, out: os.Stdout}
}

// WithWriter redirects the runner's output.
func (r *Runner) WithWriter(w io.Writer) *Runner {
	r.out = w
	return r
}

// ListTools prints all enabled tools with their titles and descriptions.
func (r *Runner) ListTools() error {
	titles := registry.DisplayNames()

	type entry struct {
		Name        string `json:"name"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	entries := make([]entry, 0, len(titles))
	for name, tool := range registry.GetTools() {
		entries = append(entries, entry{
			Name:        name,
			Title:       titles[name],
			Description: firstLine(tool.Definition().Description),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if r.output == OutputJSON {
		return writeJSON(r.out, entries)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Title, e.Description)
	}
	return w.Flush()
}

// HelpTool prints the schema and usage information for a single tool.
func (r *Runner) HelpTool(name string) error {
	tool, err := lookupTool(name)
	if err != nil {
		return err
	}

	def := tool.Definition()
	var extended *tools.ExtendedHelp
	if provider, ok := tool.(tools.ExtendedHelpProvider); ok {
		extended = provider.ProvideExtendedInfo()
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, struct {
			Tool         mcp.Tool            `json:"tool"`
			ExtendedInfo *tools.ExtendedHelp `json:"extended_info,omitempty"`
		}{def, extended})
	}

	fmt.Fprintf(r.out, "Tool: %s", def.Name)
	if def.Annotations.Title != "" {
		fmt.Fprintf(r.out, " (%s)", def.Annotations.Title)
	}
	fmt.Fprint(r.out, "\n\n")
	if def.Description != "" {
		fmt.Fprintf(r.out, "%s\n\n", def.Description)
	}

	if err := r.writeParameters(def); err != nil {
		return err
	}
	if extended != nil {
		r.writeExtendedHelp(extended)
	}
	return nil
}

func (r *Runner) writeParameters(def mcp.Tool) error {
	props := def.InputSchema.Properties
	if len(props) == 0 {
		fmt.Fprintln(r.out, "No parameters.")
		return nil
	}

	required := make(map[string]bool, len(def.InputSchema.Required))
	for _, name := range def.InputSchema.Required {
		required[name] = true
	}

	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	slices.Sort(names)

	fmt.Fprintln(r.out, "Parameters:")
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, pName := range names {
		pMap, ok := props[pName].(map[string]any)
		if !ok {
			continue
		}
		pType, _ := pMap["type"].(string)
		pDesc, _ := pMap["description"].(string)

		reqMark := ""
		if required[pName] {
			reqMark = " (required)"
		}
		fmt.Fprintf(w, "  --%s\t%s\t%s%s\n", toFlagName(pName), pType, firstLine(pDesc), reqMark)
	}
	return w.Flush()
}

func (r *Runner) writeExtendedHelp(help *tools.ExtendedHelp) {
	if help.WhenToUse != "" {
		fmt.Fprintf(r.out, "\nWhen to use: %s\n", help.WhenToUse)
	}
	if help.WhenNotToUse != "" {
		fmt.Fprintf(r.out, "When not to use: %s\n", help.WhenNotToUse)
	}

	if len(help.Examples) > 0 {
		fmt.Fprintln(r.out, "\nExamples:")
		for _, ex := range help.Examples {
			args, _ := json.Marshal(ex.Arguments)
			fmt.Fprintf(r.out, "  %s\n    %s\n", ex.Description, args)
			if ex.ExpectedResult != "" {
				fmt.Fprintf(r.out, "    -> %s\n", ex.ExpectedResult)
			}
		}
	}

	if len(help.CommonPatterns) > 0 {
		fmt.Fprintln(r.out, "\nCommon patterns:")
		for _, p := range help.CommonPatterns {
			fmt.Fprintf(r.out, "  - %s\n", p)
		}
	}

	if len(help.Troubleshooting) > 0 {
		fmt.Fprintln(r.out, "\nTroubleshooting:")
		for _, tip := range help.Troubleshooting {
			fmt.Fprintf(r.out, "  %s\n    %s\n", tip.Problem, tip.Solution)
		}
	}
}

// RunTool executes a tool by name with the given arguments.
// args can be:
//   - A single JSON string: '{"model_path": "/models/x.safetensors"}'
//   - Flag-style arguments: --model-path=/models/x.safetensors
//   - Mixed, where flags take precedence
func (r *Runner) RunTool(ctx context.Context, name string, args []string) error {
	tool, err := lookupTool(name)
	if err != nil {
		return fmt.Errorf("%w (run 'mcp-modelmeta cli list' to see available tools)", err)
	}

	params, err := parseArgs(args, tool.Definition())
	if err != nil {
		return fmt.Errorf("argument error: %w", err)
	}

	result, err := tool.Execute(ctx, r.logger, params)
	if err != nil {
		return fmt.Errorf("tool error: %w", err)
	}

	return r.renderResult(result)
}

// extractionOutput is the JSON shape of one extract report
type extractionOutput struct {
	Path     string              `json:"path"`
	Variant  modelmeta.Variant   `json:"variant"`
	Log      []string            `json:"log"`
	Metadata *modelmeta.Metadata `json:"metadata"`
	Preview  *string             `json:"preview,omitempty"`
}

// Extract runs the engine directly over each path and prints one report per file.
func (r *Runner) Extract(ctx context.Context, variant modelmeta.Variant, opts modelmeta.Options, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("at least one model path is required")
	}

	extractor, err := modelmeta.New(variant, opts, r.logger)
	if err != nil {
		return err
	}

	outputs := make([]extractionOutput, 0, len(paths))
	for i, path := range paths {
		res := extractor.Extract(ctx, path)

		if r.output == OutputJSON {
			out := extractionOutput{Path: path, Variant: res.Variant, Log: res.Log, Metadata: res.Metadata}
			if res.HasPreview {
				out.Preview = &res.Preview
			}
			outputs = append(outputs, out)
			continue
		}

		if i > 0 {
			fmt.Fprintln(r.out)
		}
		fmt.Fprintln(r.out, res.String())
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, outputs)
	}
	return nil
}

// renderResult formats a CallToolResult for terminal output.
func (r *Runner) renderResult(result *mcp.CallToolResult) error {
	if result == nil {
		return nil
	}

	if r.output == OutputJSON {
		return writeJSON(r.out, result)
	}

	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			fmt.Fprintln(r.out, c.Text)
		default:
			data, err := json.MarshalIndent(c, "", "  ")
			if err != nil {
				fmt.Fprintf(r.out, "%+v\n", c)
			} else {
				fmt.Fprintln(r.out, string(data))
			}
		}
	}

	if result.IsError {
		return fmt.Errorf("tool returned an error")
	}
	return nil
}

// lookupTool finds an enabled tool by name, accepting kebab-case for snake_case names
func lookupTool(name string) (tools.Tool, error) {
	if tool, ok := registry.GetTool(name); ok {
		return tool, nil
	}
	if snakeName := strings.ReplaceAll(name, "-", "_"); snakeName != name {
		if tool, ok := registry.GetTool(snakeName); ok {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	if before, _, found := strings.Cut(s, "\n"); found {
		return before
	}
	return s
}
