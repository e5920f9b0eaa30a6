package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"syllabuscal/internal/config"
	"syllabuscal/internal/dateextract"
	"syllabuscal/internal/ics"
	appLog "syllabuscal/internal/log"
	"syllabuscal/internal/scan"
	"syllabuscal/internal/source"
	"syllabuscal/internal/store"
	"syllabuscal/internal/web"
)

func extractCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "extract [text]",
		Short: "Print the deadlines found in text as JSON (nothing is stored)",
		Long: `Print the deadlines found in text as JSON. Text comes from the arguments,
from --file (.html files are reduced to their readable text), or from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			text, err := readInput(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			opts, err := cfg.EngineOptions()
			if err != nil {
				return err
			}
			events := dateextract.New(opts...).Extract(source.Normalize(text))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read text from file")
	return cmd
}

func captureCmd() *cobra.Command {
	var (
		file   string
		origin string
	)

	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: "Store the deadlines found in copied syllabus text",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, sc, err := openPipeline()
			if err != nil {
				return err
			}
			defer st.Close()

			text, err := readInput(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}
			if origin == "" {
				origin = "cli"
				if file != "" && file != "-" {
					origin = file
				}
			}

			res, err := sc.CaptureText(cmd.Context(), text, origin)
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Text does not look like a syllabus; nothing captured.")
				return nil
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read text from file")
	cmd.Flags().StringVar(&origin, "source", "", "source recorded on the events (e.g. the page URL)")
	return cmd
}

func scanCmd() *cobra.Command {
	var rendered bool

	cmd := &cobra.Command{
		Use:   "scan [url...]",
		Short: "Scan the given pages, or every configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, sc, err := openPipeline()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if len(args) == 0 {
				sum, err := sc.ScanAll(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d sources (%d failed): %d found, %d new\n",
					sum.Sources, sum.Failed, sum.Found, sum.Added)
				return err
			}

			kind := config.KindPage
			if rendered {
				kind = config.KindRendered
			}
			var errs []error
			for _, u := range args {
				res, err := sc.ScanSource(ctx, config.SourceConfig{ID: u, URL: u, Kind: kind})
				if err != nil {
					errs = append(errs, err)
					continue
				}
				printResult(cmd.OutOrStdout(), res)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&rendered, "rendered", false, "render pages in headless Chromium before reading")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <ics-url>",
		Short: "Import deadlines from an LMS calendar feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, sc, err := openPipeline()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := sc.ImportFeed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var (
		days     int
		typ      string
		upcoming bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now().In(cfg.Location())
			f := store.Filter{Type: typ}
			if upcoming {
				f.From = now
			}
			if days > 0 {
				f.To = now.AddDate(0, 0, days)
			}

			events, err := st.List(cmd.Context(), f)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDUE\tTYPE\tTITLE")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					shortID(ev.ID), ev.Date.In(cfg.Location()).Format("Mon Jan 2 2006 15:04"), ev.Type, ev.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "only events due within this many days")
	cmd.Flags().StringVar(&typ, "type", "", "only events of this type (quiz, exam, ...)")
	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "hide events already past")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func deleteCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored deadline by ID or ID prefix",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if all {
				n, err := st.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events\n", n)
				return nil
			}

			id, err := resolveID(cmd, st, args[0])
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "delete every stored event")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored deadlines as an .ics calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.List(cmd.Context(), store.Filter{})
			if err != nil {
				return err
			}
			body := ics.Export(events, ics.ExportOptions{
				ProductID:     cfg.Export.ProductID,
				EventDuration: time.Duration(cfg.Export.EventMinutes) * time.Minute,
			})

			if out == "" || out == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if err := os.WriteFile(out, []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d events to %s\n", len(events), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled scans and the drop-folder watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, sc, err := openPipeline()
			if err != nil {
				return err
			}
			defer st.Close()

			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("syllabuscal starting",
				"version", version,
				"listen", cfg.Listen,
				"timezone", cfg.Location().String(),
				"db", cfg.DBPath,
				"sources", len(cfg.Sources),
				"refresh", cfg.Scan.Refresh,
				"watch_dir", cfg.WatchDir,
			)

			ctx, cancel := signalContext()
			defer cancel()

			if len(cfg.Sources) > 0 {
				sch, err := scan.NewScheduler(cfg.Scan.Refresh, sc, cfg.Location())
				if err != nil {
					return err
				}
				sch.Start(ctx)
			}

			if cfg.WatchDir != "" {
				w, err := scan.NewWatcher(cfg.WatchDir, sc)
				if err != nil {
					return err
				}
				w.Start(ctx)
				defer w.Close()
			}

			err = web.NewServer(cfg, st, sc).ListenAndServe(ctx)
			appLog.Info("syllabuscal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	return cmd
}

func readInput(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file == "" || file == "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	}

	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(file)) {
	case ".html", ".htm":
		return source.Text(f)
	}
	data, err := io.ReadAll(f)
	return string(data), err
}

// resolveID accepts a full ID or the 8-character prefix list prints.
func resolveID(cmd *cobra.Command, st *store.Store, prefix string) (string, error) {
	if _, err := st.Get(cmd.Context(), prefix); err == nil {
		return prefix, nil
	}
	events, err := st.List(cmd.Context(), store.Filter{})
	if err != nil {
		return "", err
	}
	var match string
	for _, ev := range events {
		if strings.HasPrefix(ev.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous ID prefix %q", prefix)
			}
			match = ev.ID
		}
	}
	if match == "" {
		return "", store.ErrNotFound
	}
	return match, nil
}

func printResult(w io.Writer, res scan.Result) {
	fmt.Fprintf(w, "%s: %d found, %d new\n", res.Source, len(res.Found), len(res.Added))
	for _, ev := range res.Added {
		fmt.Fprintf(w, "  + %s  %s  (%s)\n", ev.Date.Format("Mon Jan 2 2006 15:04"), ev.Title, ev.Type)
	}
}

func shortID(id string) string {
	return id[:min(8, len(id))]
}
