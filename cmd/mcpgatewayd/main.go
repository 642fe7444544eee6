// Command mcpgatewayd runs the MCP gateway: an HTTP+SSE transport in front
// of the protocol runtime, backed by an upstream tool pipeline.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/slpipeline/mcpgateway/config"
	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/pipeline"
	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/server"
	"github.com/slpipeline/mcpgateway/transport/sse"
)

func main() {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "mcpgatewayd",
		Short: "MCP server over HTTP/SSE, backed by an upstream tool pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "server name reported in the initialize handshake")
	flags.StringVar(&cfg.ServerVersion, "server-version", cfg.ServerVersion, "server version reported in the initialize handshake")
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	flags.StringVar(&cfg.PipelineURL, "pipeline-url", cfg.PipelineURL, "upstream tool pipeline URL")
	flags.StringVar(&cfg.PipelineToken, "pipeline-token", cfg.PipelineToken, "upstream tool pipeline bearer token")
	flags.StringSliceVar(&cfg.SupportedVersions, "protocol-version", cfg.SupportedVersions, "supported protocol versions, most-preferred first")
	flags.BoolVar(&cfg.ToolsListChanged, "tools-list-changed", cfg.ToolsListChanged, "declare the tools.listChanged capability")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "rotate logs to this file instead of stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})

	var pipelineClient *pipeline.Client
	if cfg.PipelineURL != "" {
		pipelineClient = pipeline.New(pipeline.Config{
			URL:         cfg.PipelineURL,
			BearerToken: cfg.PipelineToken,
			Timeout:     cfg.PipelineTimeout,
		})
	}

	caps := protocol.ServerCapabilities{}
	if cfg.LoggingEnabled {
		caps.Logging = &struct{}{}
	}
	caps.Tools = &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{ListChanged: cfg.ToolsListChanged}

	srv := server.New(cfg.ServerName, cfg.ServerVersion,
		server.WithCapabilities(caps),
		server.WithSupportedVersions(cfg.SupportedVersions...),
		server.WithPipeline(pipelineClient),
		server.WithLogger(logger),
	)

	manager := sse.NewManager(srv, sse.Options{Logger: logger})
	srv.AttachBroadcaster(manager)

	logger.Info("mcp gateway listening", "addr", cfg.ListenAddr)
	return http.ListenAndServe(cfg.ListenAddr, manager)
}
