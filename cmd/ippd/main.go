// Command ippd runs the IPP server: it loads a YAML bootstrap config,
// builds the System and its Printers, and serves until interrupted —
// the same bootstrap-then-serve-until-signal shape as the teacher's
// "tp server" command, rebuilt on cobra for a multi-subcommand CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/OpenPrinting/ippd/advertise"
	"github.com/OpenPrinting/ippd/config"
	"github.com/OpenPrinting/ippd/ippsrv"
)

const shutdownTimeout = 5 * time.Second

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "ippd",
		Short: "IPP/2.x print server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/ippd/ippd.yaml", "path to the bootstrap config file")

	root.AddCommand(serveCmd(), configCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the IPP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "dump every request to the debug directory")
	return cmd
}

func runServe(ctx context.Context, debug bool) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sys, err := config.BuildSystem(f)
	if err != nil {
		return err
	}

	opts := []ippsrv.Option{
		ippsrv.WithDebug(debug || f.Server.Debug),
		ippsrv.WithDumpDir(f.Server.DumpDir),
		ippsrv.WithTransformBinDir(f.Server.TransformBin),
		ippsrv.WithTransformLogLevel(f.Server.LogLevel),
	}
	srv, err := ippsrv.New(sys, f.Server.BaseURI, f.Server.SpoolDir, f.Server.FileURIRoots, opts...)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	var adv advertise.Advertiser
	if f.Advertise.Enabled {
		host, port := "localhost", f.Advertise.Port
		adv = advertise.New(host, port)
		for _, p := range sys.Printers() {
			if err := adv.Register(p); err != nil {
				pterm.Warning.Printfln("failed to advertise %s: %v", p.PrinterName(), err)
			}
		}
	}

	go func() {
		<-ctx.Done()
		if adv != nil {
			adv.Shutdown()
		}
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			pterm.Error.Printfln("error shutting down server: %v", err)
		}
	}()

	pterm.Info.Printfln("listening on %s (%s)", f.Server.Listen, f.Server.BaseURI)
	if err := srv.ListenAndServe(f.Server.Listen); err != nil {
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "inspect and validate the bootstrap config"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "parse the config file and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if _, err := config.BuildSystem(f); err != nil {
				return err
			}
			pterm.Success.Printfln("%s: %d printer(s) configured", configPath, len(f.Printers))
			return nil
		},
	})
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the configured printers without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath)
			if err != nil {
				return err
			}
			sys, err := config.BuildSystem(f)
			if err != nil {
				return err
			}
			tableData := pterm.TableData{{"Printer", "Kind", "Path", "Proxy Group", "Transform"}}
			for _, p := range sys.Printers() {
				tableData = append(tableData, []string{p.PrinterName(), p.Kind, p.PrinterPath(), p.ProxyGroup, p.TransformCmd})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(tableData).Render()
		},
	}
}

