package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/bok/internal"
	"github.com/starford/bok/internal/mcpserver"
	"github.com/starford/bok/internal/vis"
)

const version = "0.1.0"

// logLevel is raised or lowered once bok.yaml has been read.
var logLevel = new(slog.LevelVar)

// cliLogger writes JSON to stderr so stdout stays free for command output.
func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// openWorkspace loads bok.yaml from --root and opens the workspace.
func openWorkspace(cmd *cli.Command) (*internal.Workspace, *slog.Logger, error) {
	logger := cliLogger()
	root := cmd.String("root")
	cfg, err := internal.LoadConfig(root, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	logLevel.Set(cfg.App.LogLevel)
	ws, err := internal.Open(root, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return ws, logger, nil
}

func initBook(_ context.Context, cmd *cli.Command) error {
	title := strings.Join(cmd.Args().Slice(), " ")
	id, err := internal.Init(cmd.String("root"), title, cliLogger())
	if err != nil {
		return err
	}
	fmt.Printf("Created %s and starting node %s.\n", internal.ConfigFile, id)
	return nil
}

func nodeAdd(ctx context.Context, cmd *cli.Command) error {
	blurb := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(blurb) == "" {
		return errors.New("node add: blurb is required")
	}
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	node, err := ws.Service.CreateNode(ctx, blurb, blurb, cmd.String("under"), cmd.String("after"))
	if err != nil {
		return err
	}
	fmt.Printf("Created node %s %s\n", node.ID, node.Path)
	return nil
}

func nodeRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("node rm: id is required")
	}
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	node, err := ws.Service.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if err := ws.Service.DeleteNode(ctx, node.ID); err != nil {
		return err
	}
	fmt.Printf("Removed node '%s'\n", node.Path)
	return nil
}

func nodeList(ctx context.Context, cmd *cli.Command) error {
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	forest, err := ws.Service.Tree(ctx, "")
	if err != nil {
		return err
	}
	start := ws.Config.Book.StartingNode
	text, found := vis.Outline(forest, start)
	if start != "" && !found {
		fmt.Fprintf(os.Stderr, "Starting node with id %s not found.\n", start)
	}
	fmt.Print(text)
	return nil
}

func importFile(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("import: file is required")
	}
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	report, err := ws.Service.ImportFile(ctx, path, cmd.String("under"))
	if report != nil {
		fmt.Printf("Imported %d of %d parts from %s.\n", len(report.Created), report.Parts, report.Source)
		for _, f := range report.Failed {
			fmt.Printf("  part %d skipped: %s\n", f.Index, f.Msg)
		}
		if report.Valid {
			fmt.Println("Validation successful: reconstructed content matches the original.")
		} else {
			fmt.Printf("Validation failed: reconstructed content differs at byte %d.\n", report.MismatchAt)
		}
	}
	return err
}

func visD3(ctx context.Context, cmd *cli.Command) error {
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	forest, err := ws.Service.Tree(ctx, "")
	if err != nil {
		return err
	}
	data, err := vis.D3(forest)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func visMermaid(ctx context.Context, cmd *cli.Command) error {
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	forest, err := ws.Service.Tree(ctx, "")
	if err != nil {
		return err
	}
	fmt.Print(vis.Mermaid(forest))
	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search: query is required")
	}
	ws, _, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	// The index may lag behind edits made while nothing was watching.
	if _, err := ws.Service.Sync(ctx); err != nil {
		return err
	}
	results, err := ws.Service.Search(ctx, query, 20)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%s %s\n", r.ID, r.Title)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	root := cmd.String("root")
	cfg, err := internal.LoadConfig(root, cliLogger())
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithRoot(root),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	ws, logger, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer ws.Close()

	if _, err := ws.Service.Sync(ctx); err != nil {
		logger.Warn("mcp: initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("mcp: serving on stdio", slog.String("root", ws.Root))
	return mcpserver.New(ws.Service, version).ServeStdio()
}

func underFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "under",
		Aliases: []string{"u"},
		Usage:   "Parent node id (or unique prefix)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "bok",
		Usage:   "Write books as trees of small, ordered text nodes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "root",
				Aliases:     []string{"r"},
				Usage:       "Book directory",
				DefaultText: ".",
				Value:       ".",
				Sources:     cli.EnvVars("BOK_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Create bok.yaml and the starting node",
				ArgsUsage: "[title]",
				Action:    initBook,
			},
			{
				Name:  "node",
				Usage: "Manage nodes",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create a node whose title and content are the blurb",
						ArgsUsage: "<blurb>",
						Flags: []cli.Flag{
							underFlag(),
							&cli.StringFlag{
								Name:  "after",
								Usage: "Id of the preceding sibling",
							},
						},
						Action: nodeAdd,
					},
					{
						Name:      "rm",
						Usage:     "Remove a node and its subtree",
						ArgsUsage: "<id>",
						Action:    nodeRemove,
					},
					{
						Name:   "ls",
						Usage:  "List the node tree, starting node first",
						Action: nodeList,
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Dissect a Markdown or HTML file into nodes and validate the round trip",
				ArgsUsage: "<file>",
				Flags:     []cli.Flag{underFlag()},
				Action:    importFile,
			},
			{
				Name:  "vis",
				Usage: "Export the tree for visualisation",
				Commands: []*cli.Command{
					{
						Name:   "d3",
						Usage:  "Print every node as D3 JSON",
						Action: visD3,
					},
					{
						Name:   "mermaid",
						Usage:  "Print the tree as a Mermaid flowchart",
						Action: visMermaid,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Full-text search over node titles and content",
				ArgsUsage: "<query>",
				Action:    search,
			},
			{
				Name:   "serve",
				Usage:  "Serve the REST API, change events and the file watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
