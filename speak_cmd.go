package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/chunkvoice/internal/bus"
	"github.com/dgnsrekt/chunkvoice/tts"
	"github.com/dgnsrekt/chunkvoice/ui"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var (
	speakInput  inputOptions
	speakRemote bool
	speakPlain  bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT...]",
		Short: "Synthesize text and play it",
		Long: paragraph(fmt.Sprintf("\n%s text as it is synthesized. Each chunk starts playing as soon as it is ready, while the next one is generated.", keyword("Speak"))),
		Example: paragraph("chunkvoice speak \"Hello world.\"\n" +
			"chunkvoice speak --file README.md\n" +
			"echo 'Good morning.' | chunkvoice speak"),
		RunE: runSpeak,
	}
)

func init() {
	addInputFlags(speakCmd, &speakInput)
	speakCmd.Flags().BoolVar(&speakRemote, "remote", false, "send the request to a running `chunkvoice serve`")
	speakCmd.Flags().BoolVar(&speakPlain, "plain", false, "print progress lines instead of the interactive view")
}

func addInputFlags(cmd *cobra.Command, opts *inputOptions) {
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read text from a file (- for stdin)")
	cmd.Flags().BoolVarP(&opts.clipboard, "clipboard", "c", false, "read text from the clipboard")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "strip markdown formatting (implied for .md files)")
	cmd.Flags().BoolVar(&opts.code, "code", false, "read code blocks aloud when stripping markdown")
}

func runSpeak(cmd *cobra.Command, args []string) error {
	content, err := loadInput(args, speakInput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if speakRemote {
		res, err := callRemote(ctx, func(c *bus.Client) (string, error) {
			return c.SynthesizeAndPlay(ctx, content, cfg.SpeakerID, cfg.Speed)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), success("✓"), res)
		return nil
	}

	rt, err := newRuntime(ctx, cfg, true, log.Default())
	if err != nil {
		return err
	}
	defer closeRuntime(rt)

	if err := rt.initialize(); err != nil {
		return err
	}

	res, err := present(ctx, tts.ModePlay, rt.mgr, speakPlain, func() (string, error) {
		res, err := rt.mgr.SynthesizeAndPlay(content, cfg.SpeakerID, cfg.Speed).Wait(ctx)
		if err != nil {
			return "", err
		}
		if err := rt.mgr.Drain(ctx); err != nil {
			return "", err
		}
		return res, nil
	})
	switch {
	case errors.Is(err, ui.ErrCanceled), errors.Is(err, context.Canceled):
		log.Info("speak canceled")
		return rt.mgr.Deinitialize()
	case err != nil:
		return err
	}

	log.Info(res)
	if speakPlain || !isTerminal(os.Stderr) {
		fmt.Fprintln(cmd.OutOrStdout(), success("✓"), res)
	}
	return nil
}

func closeRuntime(rt *runtime) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.Close(ctx); err != nil {
		log.Warn("shutdown", "err", err)
	}
}
