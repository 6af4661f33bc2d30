package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/bus"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/tts/wav"
	"github.com/dgnsrekt/chunkvoice/ui"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const watchDebounce = 200 * time.Millisecond

var (
	saveInput  inputOptions
	saveName   string
	saveKeep   bool
	saveWatch  bool
	saveRemote bool
	savePlain  bool

	saveCmd = &cobra.Command{
		Use:   "save [TEXT...]",
		Short: "Synthesize text to a WAV file",
		Long: paragraph(fmt.Sprintf("\n%s text to a WAV file. Files go to the cache directory unless --keep is set, which selects your music directory.", keyword("Render"))),
		Example: paragraph("chunkvoice save \"Hello world.\"\n" +
			"chunkvoice save --keep --name greeting \"Hello world.\"\n" +
			"chunkvoice save --watch --file notes.md"),
		RunE: runSave,
	}
)

func init() {
	addInputFlags(saveCmd, &saveInput)
	saveCmd.Flags().StringVarP(&saveName, "name", "n", "", "file name (sanitized, .wav is added)")
	saveCmd.Flags().BoolVarP(&saveKeep, "keep", "k", false, "save to the music directory instead of the cache")
	saveCmd.Flags().BoolVarP(&saveWatch, "watch", "w", false, "render again whenever --file changes")
	saveCmd.Flags().BoolVar(&saveRemote, "remote", false, "send the request to a running `chunkvoice serve`")
	saveCmd.Flags().BoolVar(&savePlain, "plain", false, "print progress lines instead of the interactive view")
}

func runSave(cmd *cobra.Command, args []string) error {
	if saveWatch && (saveInput.file == "" || saveInput.file == "-") {
		return errors.New("--watch needs --file")
	}

	content, err := loadInput(args, saveInput)
	if err != nil {
		return err
	}
	opts := tts.SaveOptions{IsSaving: tts.Flag(saveKeep), FileName: saveName}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if saveRemote {
		path, err := callRemote(ctx, func(c *bus.Client) (string, error) {
			return c.SynthesizeToFile(ctx, content, cfg.SpeakerID, cfg.Speed, opts)
		})
		if err != nil {
			return err
		}
		// The file lives on the server's filesystem.
		fmt.Fprintln(cmd.OutOrStdout(), success("✓"), path)
		return nil
	}

	rt, err := newRuntime(ctx, cfg, false, log.Default())
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	if err := rt.initialize(); err != nil {
		return err
	}

	render := func(content string) (string, error) {
		return rt.mgr.SynthesizeToFile(content, cfg.SpeakerID, cfg.Speed, opts).Wait(ctx)
	}

	if !saveWatch {
		path, err := present(ctx, tts.ModeFile, rt.mgr, savePlain, func() (string, error) {
			return render(content)
		})
		if errors.Is(err, ui.ErrCanceled) {
			return nil
		}
		if err != nil {
			return err
		}
		return printSaved(cmd.OutOrStdout(), path)
	}

	logProgress(rt.mgr, tts.ModeFile)
	once := func(content string) {
		path, err := render(content)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), failure("✗"), tts.MessageOf(err))
			return
		}
		_ = printSaved(cmd.OutOrStdout(), path)
	}
	once(content)

	return watchFile(ctx, saveInput.file, func() {
		content, err := readInput(nil, saveInput, nil, false)
		if err != nil {
			log.Warn("could not reread file", "file", saveInput.file, "err", err)
			return
		}
		once(content)
	})
}

// printSaved reports a rendered file with its size and length.
func printSaved(w io.Writer, path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to stat %s: %w", path, err)
	}
	detail := humanize.Bytes(uint64(st.Size())) //nolint:gosec
	if h, err := wav.ReadFileHeader(path); err == nil {
		detail += ", " + h.Duration().Round(10*time.Millisecond).String()
	}
	_, err = fmt.Fprintf(w, "%s %s %s\n", success("✓"), path, faint("("+detail+")"))
	return err //nolint:wrapcheck
}

// watchFile calls onChange after writes to file settle, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are noticed.
func watchFile(ctx context.Context, file string, onChange func()) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Info("fsnotify watching dir", "dir", dir, "file", abs)

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			debounce.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		case <-debounce.C:
			onChange()
		}
	}
}
