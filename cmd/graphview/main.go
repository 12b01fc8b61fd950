// Package main provides the graphview CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	graphview "github.com/saulfrancisco-ruizacevedo/go-graphview"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/config"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/logger/console"
	"github.com/saulfrancisco-ruizacevedo/go-graphview/server"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	infoColor = color.New(color.FgCyan)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphview",
		Short: "graphview - inspect Gremlin and Neo4j query results as graphs",
		Long: `graphview runs queries against Azure Cosmos DB, Apache TinkerPop and
Neo4j servers and normalizes whatever they return into one node/edge graph.

Every command prints JSON on stdout: {raw, nodes, edges} for queries,
{nodes, edges} for offline normalization.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultFile, "Config file")
	flags.StringP("connection", "c", "", "Graph server: Gremlin WebSocket URL or neo4j:// / bolt:// URI")
	flags.StringP("username", "u", "", "SASL user (Gremlin) or basic auth user (Neo4j)")
	flags.StringP("password", "p", "", "SASL or basic auth password")
	flags.String("cosmos-key", "", "Cosmos DB primary key")
	flags.String("cosmos-database", "", "Cosmos DB database")
	flags.String("cosmos-collection", "", "Cosmos DB graph (collection)")
	flags.Duration("timeout", 0, "Query timeout (default from config, 10s)")
	flags.Bool("flatten", false, "Collapse single-valued property lists")
	flags.Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphview v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graphview HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)

	queryCmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Run a query and print the normalized graph",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringToString("bind", nil, "Query bindings (name=value)")
	rootCmd.AddCommand(queryCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "expand <vertex-id>",
		Short: "Print the neighborhood of a vertex",
		Args:  cobra.ExactArgs(1),
		RunE:  runExpand,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "test-connection",
		Short: "Check that the graph server answers a probe query",
		RunE:  runTestConnection,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "normalize [file|-]",
		Short: "Normalize a saved query result without contacting a server",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runNormalize,
	})

	return rootCmd
}

// loadConfig layers command-line flags over the file and environment
// configuration, then starts the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	stringFlags := map[string]*string{
		"connection":        &cfg.Graph.ConnectionString,
		"username":          &cfg.Graph.Username,
		"password":          &cfg.Graph.Password,
		"cosmos-key":        &cfg.Graph.CosmosKey,
		"cosmos-database":   &cfg.Graph.CosmosDatabase,
		"cosmos-collection": &cfg.Graph.CosmosCollection,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("timeout") {
		cfg.Graph.QueryTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("flatten") {
		cfg.Graph.FlattenProperties, _ = flags.GetBool("flatten")
	}
	if flags.Changed("debug") {
		cfg.Log.Debug, _ = flags.GetBool("debug")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Log.Debug,
		JSON:  cfg.Log.Format == "json",
	}))
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	logger.Info("Starting graphview", "version", version, "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(cfg).ListenAndServe(ctx)
}

func runQuery(cmd *cobra.Command, args []string) error {
	binds, _ := cmd.Flags().GetStringToString("bind")
	bindings := make(map[string]interface{}, len(binds))
	for k, v := range binds {
		bindings[k] = v
	}
	return explore(cmd, func(ctx context.Context, e *graphview.Explorer) (any, error) {
		return e.Query(ctx, args[0], bindings)
	})
}

func runExpand(cmd *cobra.Command, args []string) error {
	return explore(cmd, func(ctx context.Context, e *graphview.Explorer) (any, error) {
		return e.Expand(ctx, args[0])
	})
}

// explore connects to the configured server, runs fn and prints its result.
func explore(cmd *cobra.Command, fn func(context.Context, *graphview.Explorer) (any, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn := cfg.Connection()
	if conn.ConnectionString == "" {
		return errors.New("missing connection string: use --connection or GRAPHVIEW_CONNECTION_STRING")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	infoColor.Fprintf(stderr, "Connecting to %s\n", conn.ConnectionString)
	runner, err := graphview.Dial(ctx, conn, cfg.DialOptions())
	if err != nil {
		failColor.Fprintf(stderr, "✗ %v\n", err)
		return err
	}
	explorer := graphview.NewExplorer(runner, cfg.NormalizeOptions())
	defer explorer.Close(context.Background())

	start := time.Now()
	res, err := fn(ctx, explorer)
	if err != nil {
		failColor.Fprintf(stderr, "✗ %v\n", err)
		return err
	}
	okColor.Fprintf(stderr, "✓ Query finished in %s\n", time.Since(start).Round(time.Millisecond))
	return printJSON(cmd.OutOrStdout(), res)
}

func runTestConnection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conn := cfg.Connection()
	if conn.ConnectionString == "" {
		return errors.New("missing connection string: use --connection or GRAPHVIEW_CONNECTION_STRING")
	}

	res := graphview.TestConnection(cmd.Context(), conn, cfg.DialOptions(), cfg.Graph.TestTimeout)
	if !res.Success {
		failColor.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", res.Error)
		return errors.New(res.Error)
	}
	okColor.Fprintf(cmd.ErrOrStderr(), "✓ %s\n", res.Message)
	return printJSON(cmd.OutOrStdout(), res)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	flatten, _ := cmd.Flags().GetBool("flatten")

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open payload: %w", err)
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("could not read payload: %w", err)
	}

	graph, report, err := graphview.NormalizeJSON(data, graphview.Options{FlattenProperties: flatten})
	if err != nil {
		return err
	}
	infoColor.Fprintf(cmd.ErrOrStderr(), "%d records: %d nodes, %d edges, %d synthesized, %d unrecognized\n",
		report.Records, len(graph.Nodes), len(graph.Edges), report.Synthesized, report.Unrecognized)
	return printJSON(cmd.OutOrStdout(), graph)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
