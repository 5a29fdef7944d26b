package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/increp/internal/config"
	"github.com/kalambet/increp/internal/email"
	"github.com/kalambet/increp/internal/host"
	"github.com/kalambet/increp/internal/incident"
	"github.com/kalambet/increp/internal/pdf"
	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/settings"
	"github.com/kalambet/increp/internal/worker"
)

var openAppFn = openApp

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openAppFn(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create a PDF report for every unsent response",
	Long: `Create a PDF report for every response row not yet marked sent.

Each report is a copy of the template document with <<key>> placeholders
filled from the row, exported to PDF in the folder for the current month.
The row gets the PDF link and is marked sent.

Examples:
  increp generate
  increp generate --queue    # leave it to the next 'increp serve' worker
  increp generate --remote   # ask a running 'increp serve' over HTTP`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, _ := cmd.Flags().GetBool("queue")
		remote, _ := cmd.Flags().GetBool("remote")
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			job, err := queueRemote(cmd.Context(), client)
			if err != nil {
				return err
			}
			printSuccess("Job %s is %s; check it with 'increp job %s'", job.ID, job.Status, job.ID)
			return nil
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if queue {
				id, created, err := a.queue.Enqueue("cli")
				if err != nil {
					return err
				}
				if !created {
					printStep("Generation already queued as job %s", id)
					return nil
				}
				printSuccess("Queued job %s", id)
				return nil
			}

			sum, err := a.generator.GenerateReports(ctx)
			printSummary(cmd.OutOrStdout(), sum)
			if err != nil {
				return err
			}
			printSuccess("%d report(s) generated, %d row(s) already sent", sum.Processed, sum.Skipped)
			return nil
		})
	},
}

func init() {
	generateCmd.Flags().Bool("queue", false, "enqueue a job instead of generating in this process")
	generateCmd.Flags().Bool("remote", false, "queue the job on the running server")
	generateCmd.MarkFlagsMutuallyExclusive("queue", "remote")
}

func printSummary(w io.Writer, sum report.Summary) {
	for _, r := range sum.Rows {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Row, r.Name, r.URL)
	}
}

// --- headers ---

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Inspect or prepare the response sheet header row",
}

var headersInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Add the status and link columns if they are missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			added, err := a.headers.EnsureInitialized(ctx)
			if err != nil {
				return err
			}
			cols := a.headers.Columns()
			if !added {
				printStep("Columns %q and %q already present", cols.StatusLabel, cols.LinkLabel)
				return nil
			}
			printSuccess("Added columns %q and %q", cols.StatusLabel, cols.LinkLabel)
			return nil
		})
	},
}

var headersShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List header labels and their placeholder keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			hm, err := a.headers.HeaderMap(ctx)
			if err != nil {
				return err
			}
			if len(hm) == 0 {
				printWarning("The sheet has no header row")
				return nil
			}
			out := cmd.OutOrStdout()
			for i, h := range hm {
				fmt.Fprintf(out, "%d\t%s\t<<%s>>\n", i+1, h.Label, h.Key)
			}
			for _, k := range hm.Duplicates() {
				printWarning("Key %q is used by more than one column; the rightmost value wins", k)
			}
			return nil
		})
	},
}

func init() {
	headersCmd.AddCommand(headersInitCmd)
	headersCmd.AddCommand(headersShowCmd)
}

// --- trigger ---

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Show or switch between automatic and manual generation",
}

func showTrigger(ctx context.Context, a *app, mode settings.Mode) error {
	active, err := a.trigger.Active(ctx)
	if err != nil {
		return err
	}
	printStatus("Mode", "%s", mode)
	if active {
		printStatus("Submission trigger", "registered")
	} else {
		printStatus("Submission trigger", "none")
	}
	return nil
}

var triggerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the trigger mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return showTrigger(ctx, a, a.trigger.Mode())
		})
	},
}

var triggerSetCmd = &cobra.Command{
	Use:       "set <automatic|manual>",
	Short:     "Switch the trigger mode",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(settings.Automatic), string(settings.Manual)},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := settings.ParseMode(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.trigger.SetMode(mode); err != nil {
				return err
			}
			return showTrigger(ctx, a, a.trigger.ActivateCurrentTrigger(ctx))
		})
	},
}

func init() {
	triggerCmd.AddCommand(triggerShowCmd)
	triggerCmd.AddCommand(triggerSetCmd)
}

// --- emails ---

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Manage report notification recipients",
}

var emailsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			addrs := a.settings.Current().EmailAddresses
			if len(addrs) == 0 {
				printStep("No email addresses")
				return nil
			}
			for _, addr := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		})
	},
}

var emailsAddCmd = &cobra.Command{
	Use:   "add <address>[,<address>...]",
	Short: "Add recipients",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			list := email.NewList(a.settings, a.settings.Current().EmailAddresses)
			problems, err := list.Add(strings.Join(args, ","))
			for _, p := range problems {
				printWarning("%s: %s", p.Title(), p.Error())
			}
			if err != nil {
				return err
			}
			printSuccess("%d recipient(s)", len(list.Addresses()))
			return nil
		})
	},
}

var emailsRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			list := email.NewList(a.settings, a.settings.Current().EmailAddresses)
			if err := list.Remove(args[0]); err != nil {
				return err
			}
			printSuccess("Removed %s", args[0])
			return nil
		})
	},
}

func init() {
	emailsCmd.AddCommand(emailsListCmd)
	emailsCmd.AddCommand(emailsAddCmd)
	emailsCmd.AddCommand(emailsRemoveCmd)
}

// --- template ---

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Select the report template document",
}

var templateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected template",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			id := a.settings.Current().TemplateFileID
			if id == "" {
				printWarning("No template selected")
				return nil
			}
			f, err := a.files.GetFile(ctx, id)
			if errors.Is(err, host.ErrNotFound) {
				printWarning("Template %s no longer exists", id)
				return nil
			}
			if err != nil {
				return err
			}
			printStatus("Name", "%s", f.Name)
			printStatus("ID", "%s", f.ID)
			printStatus("URL", "%s", f.URL)
			return nil
		})
	},
}

var templateSelectCmd = &cobra.Command{
	Use:   "select <file-id>",
	Short: "Use an existing document as the template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.panel.LoadSelectedFile(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Template set to %s", args[0])
			return nil
		})
	},
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file.html>",
	Short: "Import an HTML document as the template (local host)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		noSelect, _ := cmd.Flags().GetBool("no-select")

		body, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.isLocal() {
				return errLocalOnly
			}
			f, err := a.drive.ImportDocument(ctx, name, a.rootID, body)
			if err != nil {
				return err
			}
			printSuccess("Imported %q as %s", f.Name, f.ID)
			if noSelect {
				return nil
			}
			if _, err := a.panel.LoadSelectedFile(ctx, f.ID); err != nil {
				return err
			}
			printSuccess("Template set to %s", f.ID)
			return nil
		})
	},
}

var templatePlaceholdersCmd = &cobra.Command{
	Use:   "placeholders",
	Short: "List template placeholders and check them against the sheet (local host)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.isLocal() {
				return errLocalOnly
			}
			id := a.settings.Current().TemplateFileID
			if id == "" {
				return report.ErrNoTemplate
			}
			keys, err := a.localDocs.Placeholders(ctx, id)
			if err != nil {
				return err
			}
			columns, err := a.headers.HeaderKeys(ctx)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "<<%s>>\n", k)
				if !slices.Contains(columns, k) {
					printWarning("<<%s>> matches no column and will stay in the report", k)
				}
			}
			return nil
		})
	},
}

func init() {
	templateImportCmd.Flags().String("name", "", "document name (default: file name without extension)")
	templateImportCmd.Flags().Bool("no-select", false, "import without selecting as template")
	templateCmd.AddCommand(templateShowCmd)
	templateCmd.AddCommand(templateSelectCmd)
	templateCmd.AddCommand(templateImportCmd)
	templateCmd.AddCommand(templatePlaceholdersCmd)
}

// --- filename ---

var filenameCmd = &cobra.Command{
	Use:   "filename",
	Short: "Show or set the report filename pattern",
	Long: `Show or set the report filename pattern.

Tokens written as **key** are replaced with the row's value for that key.
The result is used as the PDF name as is; write the extension in the pattern
if you want one.

Examples:
  increp filename set "Incident **Name** **Timestamp**.pdf"
  increp filename preview --row 2`,
}

var filenameShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the filename pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.settings.Current().ReportFilename)
			return nil
		})
	},
}

var filenameSetCmd = &cobra.Command{
	Use:   "set <pattern>",
	Short: "Set the filename pattern; an empty pattern restores the default",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.panel.SetReportFilename(strings.Join(args, " ")); err != nil {
				return err
			}
			printSuccess("Report filename set to %q", a.settings.Current().ReportFilename)
			return nil
		})
	},
}

var filenamePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the PDF name a row would get",
	RunE: func(cmd *cobra.Command, args []string) error {
		row, _ := cmd.Flags().GetInt("row")
		if row < report.FirstDataRow {
			return fmt.Errorf("--row must be %d or greater", report.FirstDataRow)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			keys, err := a.headers.HeaderKeys(ctx)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				return errors.New("the sheet has no header row")
			}
			values, err := a.sheet.ReadRange(ctx, row, 1, 1, len(keys))
			if err != nil {
				return err
			}
			rec := incident.New(row, values[0], keys)
			fmt.Fprintln(cmd.OutOrStdout(), rec.Filename(a.settings.Current().ReportFilename))
			return nil
		})
	},
}

func init() {
	filenamePreviewCmd.Flags().Int("row", report.FirstDataRow, "sheet row to preview")
	filenameCmd.AddCommand(filenameShowCmd)
	filenameCmd.AddCommand(filenameSetCmd)
	filenameCmd.AddCommand(filenamePreviewCmd)
}

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit <value>...",
	Short: "Append a form response and run the submission trigger",
	Long: `Append a form response row, one argument per column, then act as the
form submission event: in automatic mode the reports are generated right
away, in manual mode nothing else happens.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			a.trigger.ActivateCurrentTrigger(ctx)

			row, err := a.sheet.AppendRow(ctx, args)
			if err != nil {
				return err
			}
			printSuccess("Appended row %d", row)

			id, err := worker.NewDispatcher(a.trigger, a.queue).FormSubmitted(ctx)
			if err != nil {
				return err
			}
			if id == "" {
				printStep("Trigger mode is manual; run 'increp generate' to create reports")
				return nil
			}

			w := worker.NewWorker(a.store, a.generator, 0).WithSettings(a.settings)
			if _, err := w.RunOnce(ctx); err != nil {
				return err
			}
			sum, _ := w.Result(id)
			printSummary(cmd.OutOrStdout(), sum)

			job, err := a.store.GetJob(id)
			if err != nil {
				return err
			}
			if job.Status == "failed" {
				return fmt.Errorf("generating reports: %s", job.LastError)
			}
			printSuccess("%d report(s) generated", sum.Processed)
			return nil
		})
	},
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files [folder-id]",
	Short: "List folders and files in the report store (local host)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.isLocal() {
				return errLocalOnly
			}
			folderID := a.rootID
			if len(args) == 1 {
				folderID = args[0]
			}
			out := cmd.OutOrStdout()

			folders, err := a.drive.ChildFolders(ctx, folderID)
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Fprintf(out, "%s/\t%s\n", f.Name, f.ID)
			}
			files, err := a.drive.ListFolder(ctx, folderID)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintf(out, "%s\t%s\t%s\n", f.Name, f.MimeType, f.URL)
			}
			return nil
		})
	},
}

// --- inspect ---

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.pdf]",
	Short: "Validate a report PDF and print its text",
	Long: `Validate a report PDF and print its text.

Examples:
  increp inspect ./report.pdf
  increp inspect --id 3f1c...   # a PDF in the local report store`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if (id == "") == (len(args) == 0) {
			return errors.New("pass either a file path or --id")
		}

		if id == "" {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading pdf: %w", err)
			}
			return inspectPDF(cmd.OutOrStdout(), data)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if !a.isLocal() {
				return errLocalOnly
			}
			f, data, err := a.drive.Content(ctx, id)
			if err != nil {
				return err
			}
			if f.MimeType != host.MimePDF {
				return fmt.Errorf("%s is %s, not a PDF", f.Name, f.MimeType)
			}
			printStatus("Name", "%s", f.Name)
			return inspectPDF(cmd.OutOrStdout(), data)
		})
	},
}

func init() {
	inspectCmd.Flags().String("id", "", "file id in the local report store")
}

func inspectPDF(w io.Writer, data []byte) error {
	if err := pdf.Validate(data); err != nil {
		return err
	}
	pages, err := pdf.PageCount(data)
	if err != nil {
		return err
	}
	printStatus("Pages", "%d", pages)
	text, err := pdf.ExtractText(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.TrimSpace(text))
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.FilePath())
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}
