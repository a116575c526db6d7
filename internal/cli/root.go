// Package cli implements the llmcore command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"llmcore/internal/backend"
	"llmcore/internal/config"
	"llmcore/internal/hostbridge"
	"llmcore/internal/manager"
	"llmcore/pkg/types"
)

// Deps are the process resources a command tree runs against. Zero values
// select the real process streams and the llama.cpp backend.
type Deps struct {
	Backend backend.Backend
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

func (d *Deps) defaults() {
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, deps Deps) int {
	deps.defaults()
	root, closeApp := newRootCmd(deps)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	// Runs on failure too; cobra skips post-run hooks after an error.
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(deps.Stderr, "error:", err)
		return 1
	}
	return 0
}

// newRootCmd constructs the cobra command tree. The returned func releases
// whatever the invoked command set up.
func newRootCmd(deps Deps) (*cobra.Command, func() error) {
	var (
		cfgPath     string
		logLevel    string
		logFormat   string
		modelPath   string
		libraryPath string
		contextSize int
		a           *app
	)
	root := &cobra.Command{
		Use:           "llmcore",
		Short:         "On-device chat completion over a local GGUF model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(deps.Stdin)
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Config file (.yaml|.yml|.json|.toml); defaults to $"+config.EnvPath)
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error|off")
	pf.StringVar(&logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&modelPath, "model", "", "Explicit model file, probed before all other locations")
	pf.StringVar(&libraryPath, "lib", "", "Directory holding the llama.cpp shared libraries")
	pf.IntVar(&contextSize, "ctx-size", 0, "Context window in tokens")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptional(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if modelPath != "" {
			cfg.ModelPath = modelPath
		}
		if libraryPath != "" {
			cfg.LibraryPath = libraryPath
		}
		if cmd.Flags().Changed("ctx-size") {
			cfg.ContextSize = contextSize
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		a = newApp(cfg.WithDefaults(), deps.Backend, deps.Stderr)
		return nil
	}
	// app is built in PersistentPreRunE; subcommands reach it through this.
	get := func() *app { return a }

	root.AddCommand(
		newHealthCmd(get),
		newChatCmd(get),
		newPreloadCmd(get),
		newStatusCmd(get),
		newModelsCmd(get),
		newStdioCmd(get),
		newCheckCmd(get),
	)
	closeApp := func() error {
		if a == nil {
			return nil
		}
		err := a.close()
		a = nil
		return err
	}
	return root, closeApp
}

func newHealthCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Load the model if needed and report availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), get().svc.Health(cmd.Context()))
		},
	}
}

func newPreloadCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preload",
		Short: "Load the model into memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := get().svc.Preload(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return err
		},
	}
}

func newStatusCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine state without loading the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), get().svc.Status())
		},
	}
}

func newModelsCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List GGUF model files in the search locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := get().svc.Models()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newChatCmd(get func() *app) *cobra.Command {
	var (
		system      string
		temperature float32
		maxTokens   uint32
		stream      bool
		fromStdin   bool
	)
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Generate one assistant reply",
		Example: "  llmcore chat \"What is a GGUF file?\"\n" +
			"  llmcore chat --system \"Answer briefly.\" --temperature 0 hello\n" +
			"  echo '{\"turns\":[{\"role\":\"user\",\"content\":\"hi\"}]}' | llmcore chat --stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req types.ChatRequest
			switch {
			case fromStdin:
				if err := json.NewDecoder(cmd.InOrStdin()).Decode(&req); err != nil {
					return fmt.Errorf("decode request from stdin: %w", err)
				}
			case len(args) > 0:
				req.Turns = []types.ConversationTurn{{Role: types.RoleUser, Content: strings.Join(args, " ")}}
			default:
				return errors.New("chat requires a message or --stdin")
			}
			if cmd.Flags().Changed("system") {
				req.SystemInstruction = &system
			}
			if cmd.Flags().Changed("temperature") {
				req.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				req.MaxTokens = &maxTokens
			}

			out := cmd.OutOrStdout()
			if !stream {
				resp, err := get().svc.Chat(cmd.Context(), req)
				if err != nil {
					return err
				}
				return writeJSON(out, resp)
			}
			var werr error
			resp, err := get().svc.ChatStream(cmd.Context(), req, func(piece string) {
				if werr == nil {
					_, werr = io.WriteString(out, piece)
				}
			})
			if err != nil {
				return err
			}
			if werr != nil {
				return werr
			}
			_, err = fmt.Fprintf(out, "\n[%d tokens, %s]\n", resp.TokensGenerated, resp.FinishReason)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&system, "system", "", "System instruction placed before the conversation")
	f.Float32Var(&temperature, "temperature", config.DefaultTemperature, "Sampling temperature; 0 is greedy")
	f.Uint32Var(&maxTokens, "max-tokens", config.DefaultMaxTokens, "Maximum tokens to generate")
	f.BoolVar(&stream, "stream", false, "Print fragments as they are generated")
	f.BoolVar(&fromStdin, "stdin", false, "Read a JSON chat request from stdin")
	return cmd
}

func newStdioCmd(get func() *app) *cobra.Command {
	var warm bool
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve NDJSON commands on stdin/stdout for a host application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if warm {
				a.mgr.Warm()
			}
			a.log.Info().Str("event", "bridge_start").Msg("serving on stdio")
			br := hostbridge.New(a.svc, a.log)
			return br.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&warm, "warm", false, "Start loading the model immediately in the background")
	return cmd
}

func newCheckCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Inspect the model artifact without loading it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := get().mgr.Preflight()
			if err := writeJSON(cmd.OutOrStdout(), checks); err != nil {
				return err
			}
			if !manager.PreflightOK(checks) {
				return errors.New("preflight failed")
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
