package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-scene/internal/config"
	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/server"
	"github.com/joeblew999/plat-scene/internal/tiles"
)

// Options defines all CLI flags and env vars for the scene server.
// Flags: --host, --port, --data-dir, --web-dir, --log-level, --placeholders, --containers
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory holding scenes/ and the DuckDB index" default:".data"`
	WebDir       string `doc:"Path to web/ directory" default:"web"`
	LogLevel     string `doc:"Log level (debug, info, warn, error)" default:"info"`
	Placeholders string `doc:"Popup placeholder policy (strict, passthrough)" default:"strict"`
	Containers   string `doc:"Comma-separated container ids views may mount into; empty accepts any" default:""`
}

func newServer(opts *Options) (*server.Server, error) {
	policy, ok := scene.ParsePlaceholderPolicy(opts.Placeholders)
	if !ok {
		return nil, fmt.Errorf("unknown placeholder policy %q", opts.Placeholders)
	}
	var containers []string
	for _, c := range strings.Split(opts.Containers, ",") {
		if c = strings.TrimSpace(c); c != "" {
			containers = append(containers, c)
		}
	}
	return server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		WebDir:       opts.WebDir,
		Logger:       ctxlog.New(os.Stderr, opts.LogLevel),
		Placeholders: policy,
		Containers:   containers,
	}), nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var srv *server.Server
		var httpSrv *http.Server

		hooks.OnStart(func() {
			var err error
			if srv, err = newServer(opts); err != nil {
				fatal("Error: %v", err)
			}
			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-scene API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Pages:   %s/viewer, %s/editor\n", baseURL, baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpSrv = &http.Server{Addr: addr, Handler: srv}
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fatal("Server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			if httpSrv != nil {
				httpSrv.Close()
			}
			if srv != nil {
				srv.Close()
			}
		})
	})

	cli.Root().Use = "scene"
	cli.Root().Short = "Map scene builder: views, widgets, overlays and basemaps"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(opts)
			if err != nil {
				fatal("Error: %v", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// validate subcommand: load a scene document and report every problem
	cli.Root().AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a scene document",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sc, err := config.LoadFile(args[0])
			if err != nil {
				fatal("%s: invalid\n%v", args[0], err)
			}
			fmt.Printf("%s: ok (scene %q, %d widgets, %d overlays, %d layers)\n",
				args[0], sc.ID, len(sc.Widgets), len(sc.Overlays), len(sc.Layers))
		},
	})

	// geojson subcommand: export a scene's overlays as a FeatureCollection
	cli.Root().AddCommand(&cobra.Command{
		Use:   "geojson <file>",
		Short: "Export a scene document's overlays as GeoJSON",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sc, err := config.LoadFile(args[0])
			if err != nil {
				fatal("%s: %v", args[0], err)
			}
			output, err := json.MarshalIndent(sc.FeatureCollection(), "", "  ")
			if err != nil {
				fatal("Error marshaling GeoJSON: %v", err)
			}
			fmt.Println(string(output))
		},
	})

	// tiles subcommand: cut a scene document's overlays into z/x/y.mvt files
	tilesCmd := &cobra.Command{
		Use:   "tiles <file>",
		Short: "Write a scene document's overlays as gzipped vector tiles",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sc, err := config.LoadFile(args[0])
			if err != nil {
				fatal("%s: %v", args[0], err)
			}
			outDir, _ := cmd.Flags().GetString("output")
			minZoom, _ := cmd.Flags().GetUint32("min-zoom")
			maxZoom, _ := cmd.Flags().GetUint32("max-zoom")
			if minZoom > maxZoom || maxZoom > tiles.MaxZoom {
				fatal("Invalid zoom range %d-%d (max %d)", minZoom, maxZoom, tiles.MaxZoom)
			}

			pyramid, err := tiles.Pyramid(sc.FeatureCollection(), maptile.Zoom(minZoom), maptile.Zoom(maxZoom))
			if err != nil {
				fatal("Error generating tiles: %v", err)
			}
			for t, data := range pyramid {
				dir := filepath.Join(outDir, fmt.Sprint(t.Z), fmt.Sprint(t.X))
				if err := os.MkdirAll(dir, 0755); err != nil {
					fatal("Error: %v", err)
				}
				if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.mvt", t.Y)), data, 0644); err != nil {
					fatal("Error: %v", err)
				}
			}
			fmt.Printf("%d tiles written to %s/\n", len(pyramid), outDir)
		},
	}
	tilesCmd.Flags().StringP("output", "o", "tiles", "Output directory")
	tilesCmd.Flags().Uint32("min-zoom", 0, "Lowest zoom")
	tilesCmd.Flags().Uint32("max-zoom", 14, "Highest zoom")
	cli.Root().AddCommand(tilesCmd)

	cli.Run()
}
